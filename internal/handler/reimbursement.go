package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/auth"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/service"
)

// multipartOverhead is room for the form fields and part headers on top of
// the file itself.
const multipartOverhead = 1 << 20

// ReimbursementHandler serves reimbursement requests and their invoice files.
// Every route requires auth and only ever shows the caller's own records.
type ReimbursementHandler struct {
	reimbursements *service.ReimbursementService
	maxUpload      int64
	logger         *slog.Logger
}

func NewReimbursementHandler(reimbursements *service.ReimbursementService, maxUpload int64, logger *slog.Logger) *ReimbursementHandler {
	return &ReimbursementHandler{
		reimbursements: reimbursements,
		maxUpload:      maxUpload,
		logger:         logger,
	}
}

// reimbursementView adds the decimal amount the frontend displays.
type reimbursementView struct {
	*model.Reimbursement
	Amount string `json:"amount"`
}

func viewOf(r *model.Reimbursement) reimbursementView {
	return reimbursementView{Reimbursement: r, Amount: formatCents(r.AmountCents)}
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}

// HandleCreate → POST /reimbursements (multipart/form-data)
//
// FORM FIELDS: file (required, one), amount, currency, description, invoiceDate.
func (h *ReimbursementHandler) HandleCreate(w http.ResponseWriter, r *http.Request, res auth.Result) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, apperror.ValidationFailed("file", "File is too large"))
			return
		}
		writeError(w, apperror.ValidationFailed("body", "Invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := 0
	for _, fhs := range r.MultipartForm.File {
		files += len(fhs)
	}
	if files > 1 {
		writeError(w, apperror.ValidationFailed("file", "Only one file per request"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "No file uploaded"))
		return
	}
	defer file.Close()

	invoiceDate, err := parseDate("invoiceDate", r.FormValue("invoiceDate"))
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := h.reimbursements.Create(r.Context(), res.User, service.ReimbursementInput{
		Amount:      r.FormValue("amount"),
		Currency:    r.FormValue("currency"),
		Description: r.FormValue("description"),
		InvoiceDate: invoiceDate,
		FileName:    header.Filename,
		File:        file,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":       "Reimbursement request created successfully",
		"reimbursement": viewOf(created),
	})
}

// HandleList → GET /reimbursements?status=pending
func (h *ReimbursementHandler) HandleList(w http.ResponseWriter, r *http.Request, res auth.Result) {
	list, err := h.reimbursements.List(r.Context(), res.User, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]reimbursementView, len(list))
	for i := range list {
		views[i] = viewOf(&list[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reimbursements": views,
		"total":          len(views),
	})
}

// HandleGet → GET /reimbursements/{id}
func (h *ReimbursementHandler) HandleGet(w http.ResponseWriter, r *http.Request, res auth.Result) {
	rb, err := h.reimbursements.Get(r.Context(), res.User, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reimbursement": viewOf(rb)})
}

// HandleFile → GET /reimbursements/{id}/file
// Streams the invoice as an attachment under its original name.
func (h *ReimbursementHandler) HandleFile(w http.ResponseWriter, r *http.Request, res auth.Result) {
	rb, file, err := h.reimbursements.OpenFile(r.Context(), res.User, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		h.logger.Error("stat attachment failed",
			slog.String("id", rb.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", rb.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": rb.FileName,
	}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, rb.FileName, info.ModTime(), file)
}

type updateReimbursementRequest struct {
	Description string `json:"description" validate:"max=1000"`
}

// HandleUpdate → PUT /reimbursements/{id}
// Only the description of a pending request can change.
func (h *ReimbursementHandler) HandleUpdate(w http.ResponseWriter, r *http.Request, res auth.Result) {
	var req updateReimbursementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	rb, err := h.reimbursements.UpdateDescription(r.Context(), res.User, chi.URLParam(r, "id"), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Reimbursement updated successfully",
		"reimbursement": viewOf(rb),
	})
}

// HandleDelete → DELETE /reimbursements/{id}
func (h *ReimbursementHandler) HandleDelete(w http.ResponseWriter, r *http.Request, res auth.Result) {
	if err := h.reimbursements.Delete(r.Context(), res.User, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Reimbursement deleted successfully"})
}

type dashboardAction struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// HandleDashboard → GET /dashboard
// Counts the caller's reimbursements by status.
func (h *ReimbursementHandler) HandleDashboard(w http.ResponseWriter, r *http.Request, res auth.Result) {
	stats, err := h.reimbursements.Stats(r.Context(), res.User)
	if err != nil {
		h.logger.Error("dashboard stats failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Welcome to your reimbursement dashboard!",
		"user":    res.User,
		"stats":   stats,
		"actions": []dashboardAction{
			{Label: "View All Reimbursements", URL: "/reimbursements"},
			{Label: "Create New Reimbursement", URL: "/reimbursements"},
		},
	})
}
