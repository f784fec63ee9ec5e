package model

import "time"

// OOO is an out-of-office record.
//
// UserName and UserEmail are copied from the author at creation time so the
// team calendar still reads correctly if the user later changes their name.
type OOO struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	UserName         string    `json:"userName"`
	UserEmail        string    `json:"userEmail"`
	Active           bool      `json:"active"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	Reason           string    `json:"reason"`
	Message          string    `json:"message"`
	EmergencyContact string    `json:"emergencyContact,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
