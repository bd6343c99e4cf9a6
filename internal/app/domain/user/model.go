package user

import (
	"fmt"
	"strings"
	"time"
)

// Role gates administrative operations.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Status gates whether a member may act on their own behalf.
type Status string

const (
	StatusActive      Status = "active"
	StatusSuspended   Status = "suspended"
	StatusDeactivated Status = "deactivated"
)

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleUser, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role %q", raw)
	}
}

// ParseStatus validates an account status.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusActive, StatusSuspended, StatusDeactivated:
		return s, nil
	default:
		return "", fmt.Errorf("invalid status %q", raw)
	}
}

// User is a club member or administrator.
type User struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Phone         string     `json:"phone"`
	Address       string     `json:"address,omitempty"`
	DateOfBirth   *time.Time `json:"dateOfBirth,omitempty"`
	Occupation    string     `json:"occupation,omitempty"`
	BankName      string     `json:"bankName,omitempty"`
	AccountName   string     `json:"accountName,omitempty"`
	AccountNumber string     `json:"accountNumber,omitempty"`
	Role          Role       `json:"role"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	ResetTokenHash string     `json:"-"`
	ResetExpiresAt *time.Time `json:"-"`
}

// IsAdmin reports whether the stored role is admin.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsActive reports whether the stored status is active.
func (u User) IsActive() bool { return u.Status == StatusActive }
