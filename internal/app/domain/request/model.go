// Package request models the financial requests members submit for review:
// loans, investments, contributions and withdrawals.
package request

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conthop/backend/internal/money"
)

// Kind identifies the table a financial request lives in.
type Kind string

const (
	KindLoan         Kind = "loan"
	KindInvestment   Kind = "investment"
	KindContribution Kind = "contribution"
	KindWithdrawal   Kind = "withdrawal"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindLoan, KindInvestment, KindContribution, KindWithdrawal}

// Status is the review state of a request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusSuccessful Status = "successful"
	StatusRejected   Status = "rejected"
)

// Action is an administrative decision on a pending request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseKind accepts the singular or plural form ("loan", "loans").
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s"))
	switch k {
	case KindLoan, KindInvestment, KindContribution, KindWithdrawal:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported request kind %q", raw)
	}
}

// ParseAction validates an action name.
func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionApprove, ActionReject:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported action %q", raw)
	}
}

// ParseStatus validates a status name.
func ParseStatus(raw string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(raw))); st {
	case StatusPending, StatusApproved, StatusSuccessful, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unsupported status %q", raw)
	}
}

// Plural returns the collection name used in routes and response bodies.
func (k Kind) Plural() string { return string(k) + "s" }

// Title returns the capitalised kind name.
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// TargetStatus resolves the terminal status an action moves a request of
// this kind to. Investments and contributions are approved as "successful".
func (k Kind) TargetStatus(a Action) Status {
	if a == ActionReject {
		return StatusRejected
	}
	switch k {
	case KindInvestment, KindContribution:
		return StatusSuccessful
	default:
		return StatusApproved
	}
}

// Terminal reports whether s ends the review.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusSuccessful || s == StatusRejected
}

// Request is a financial request of any kind. Kind-specific fields are
// empty for kinds that do not carry them.
type Request struct {
	ID        int64           `json:"id"`
	Kind      Kind            `json:"kind"`
	UserID    int64           `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`

	// loan
	Purpose        string `json:"purpose,omitempty"`
	DurationMonths int    `json:"durationMonths,omitempty"`

	// investment
	ProjectName string           `json:"projectName,omitempty"`
	Returns     *decimal.Decimal `json:"returns,omitempty"`

	// withdrawal
	BankName      string `json:"bankName,omitempty"`
	AccountName   string `json:"accountName,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

// View is a request joined with its owner for admin listings.
type View struct {
	Request
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

// Owner placeholders for requests whose user row no longer exists.
const (
	DeletedUserName  = "Deleted User"
	DeletedUserEmail = "no-email@deleted.com"
)

// Filter narrows request listings.
type Filter struct {
	Status Status
	UserID int64
}

// Validate checks the fields a member supplies when submitting a request.
func (r Request) Validate() error {
	if r.UserID <= 0 {
		return fmt.Errorf("user id is required")
	}
	if r.Amount.IsNegative() || r.Amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}
	if err := money.CheckPrecision(r.Amount); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	switch r.Kind {
	case KindLoan:
		if strings.TrimSpace(r.Purpose) == "" {
			return fmt.Errorf("purpose is required")
		}
		if r.DurationMonths <= 0 {
			return fmt.Errorf("duration must be a positive number of months")
		}
	case KindInvestment:
		if strings.TrimSpace(r.ProjectName) == "" {
			return fmt.Errorf("project name is required")
		}
		if r.Returns != nil {
			if r.Returns.IsNegative() {
				return fmt.Errorf("returns must not be negative")
			}
			if err := money.CheckPrecision(*r.Returns); err != nil {
				return fmt.Errorf("returns: %w", err)
			}
		}
	case KindWithdrawal:
		if strings.TrimSpace(r.BankName) == "" || strings.TrimSpace(r.AccountName) == "" || strings.TrimSpace(r.AccountNumber) == "" {
			return fmt.Errorf("bank name, account name and account number are required")
		}
	case KindContribution:
	default:
		return fmt.Errorf("unsupported request kind %q", r.Kind)
	}
	return nil
}

// ReturnsOrZero is the stored returns value; absent counts as zero.
func (r Request) ReturnsOrZero() decimal.Decimal {
	if r.Returns == nil {
		return decimal.Zero
	}
	return *r.Returns
}

// Summary totals a member's requests per kind.
type Summary struct {
	TotalContributions decimal.Decimal `json:"totalContributions"`
	TotalInvestments   decimal.Decimal `json:"totalInvestments"`
	TotalWithdrawals   decimal.Decimal `json:"totalWithdrawals"`
	TotalLoans         decimal.Decimal `json:"totalLoans"`
}
