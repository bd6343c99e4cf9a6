// Package support models member support tickets and reports.
package support

import "time"

// Status values for tickets and reports.
const (
	StatusPending  = "pending"
	StatusReplied  = "replied"
	StatusReviewed = "reviewed"
)

// Ticket is a support request opened by a member.
type Ticket struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UserName  string    `json:"userName,omitempty"`
	UserEmail string    `json:"userEmail,omitempty"`
}

// Report is a titled report filed by a member.
type Report struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Reply     string    `json:"reply,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UserName  string    `json:"userName,omitempty"`
	UserEmail string    `json:"userEmail,omitempty"`
}
