package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blockful/backoffice/internal/auth"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/service"
)

// OOOHandler serves out-of-office records.
//
// Reads use optional auth (the team calendar is public, with less detail);
// writes require a signed-in user and are limited to the record's author.
type OOOHandler struct {
	ooo    *service.OOOService
	logger *slog.Logger
}

func NewOOOHandler(ooo *service.OOOService, logger *slog.Logger) *OOOHandler {
	return &OOOHandler{ooo: ooo, logger: logger}
}

type createOOORequest struct {
	Active           *bool  `json:"active"`
	StartDate        string `json:"startDate" validate:"required"`
	EndDate          string `json:"endDate" validate:"required"`
	Reason           string `json:"reason" validate:"required"`
	Message          string `json:"message" validate:"required"`
	EmergencyContact string `json:"emergencyContact" validate:"max=200"`
}

// HandleCreate → POST /ooo
// REQUEST BODY: {"startDate": "2026-07-01", "endDate": "2026-07-15",
// "reason": "...", "message": "...", "emergencyContact": "...", "active": true}
func (h *OOOHandler) HandleCreate(w http.ResponseWriter, r *http.Request, res auth.Result) {
	var req createOOORequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := h.ooo.Create(r.Context(), res.User, service.OOOInput{
		Active:           req.Active,
		StartDate:        start,
		EndDate:          end,
		Reason:           req.Reason,
		Message:          req.Message,
		EmergencyContact: req.EmergencyContact,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, oooResponse{Message: "OOO request created successfully", OOO: o})
}

// HandleList → GET /ooo?active=true&limit=50&offset=0
func (h *OOOHandler) HandleList(w http.ResponseWriter, r *http.Request, res auth.Result) {
	active, err := queryBool(r, "active")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultOOOListLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.ooo.List(r.Context(), res.User, active, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ooo":   records,
		"total": len(records),
	})
}

// HandleGet → GET /ooo/{id}
func (h *OOOHandler) HandleGet(w http.ResponseWriter, r *http.Request, res auth.Result) {
	o, err := h.ooo.Get(r.Context(), res.User, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, oooResponse{OOO: o})
}

type updateOOORequest struct {
	Active           *bool   `json:"active"`
	StartDate        *string `json:"startDate"`
	EndDate          *string `json:"endDate"`
	Reason           *string `json:"reason"`
	Message          *string `json:"message"`
	EmergencyContact *string `json:"emergencyContact" validate:"omitempty,max=200"`
}

// HandleUpdate → PUT /ooo/{id}
// Every body field is optional; only those present change.
func (h *OOOHandler) HandleUpdate(w http.ResponseWriter, r *http.Request, res auth.Result) {
	var req updateOOORequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	patch := service.OOOPatch{
		Active:           req.Active,
		Reason:           req.Reason,
		Message:          req.Message,
		EmergencyContact: req.EmergencyContact,
	}
	var err error
	if patch.StartDate, err = optionalDate("startDate", req.StartDate); err != nil {
		writeError(w, err)
		return
	}
	if patch.EndDate, err = optionalDate("endDate", req.EndDate); err != nil {
		writeError(w, err)
		return
	}

	o, err := h.ooo.Update(r.Context(), res.User, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, oooResponse{Message: "OOO request updated successfully", OOO: o})
}

// HandleDelete → DELETE /ooo/{id}
func (h *OOOHandler) HandleDelete(w http.ResponseWriter, r *http.Request, res auth.Result) {
	if err := h.ooo.Delete(r.Context(), res.User, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OOO request deleted successfully"})
}

type oooResponse struct {
	Message string     `json:"message,omitempty"`
	OOO     *model.OOO `json:"ooo"`
}

func optionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := parseDate(field, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
