package model

import "time"

// ReimbursementStatus is the review state of a reimbursement request.
type ReimbursementStatus string

const (
	StatusPending  ReimbursementStatus = "pending"
	StatusApproved ReimbursementStatus = "approved"
	StatusRejected ReimbursementStatus = "rejected"
	StatusPaid     ReimbursementStatus = "paid"
)

// Valid reports whether s is one of the known statuses.
func (s ReimbursementStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPaid:
		return true
	}
	return false
}

// Reimbursement is an expense claim with an attached invoice file.
//
// AmountCents stores money as an integer number of cents.
//
// FilePath is the name of the stored attachment inside the upload directory.
// It's never sent to clients; they download through /reimbursements/{id}/file.
type Reimbursement struct {
	ID          string              `json:"id"`
	UserID      string              `json:"userId"`
	AmountCents int64               `json:"amountCents"`
	Currency    string              `json:"currency"`
	Description string              `json:"description,omitempty"`
	InvoiceDate time.Time           `json:"invoiceDate"`
	Status      ReimbursementStatus `json:"status"`
	FilePath    string              `json:"-"`
	FileName    string              `json:"fileName"`
	FileSize    int64               `json:"fileSize"`
	MimeType    string              `json:"mimeType"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// ReimbursementStats counts a user's reimbursements by status.
type ReimbursementStats struct {
	Total    int `json:"totalReimbursements"`
	Pending  int `json:"pendingReimbursements"`
	Approved int `json:"approvedReimbursements"`
	Rejected int `json:"rejectedReimbursements"`
	Paid     int `json:"paidReimbursements"`
}
