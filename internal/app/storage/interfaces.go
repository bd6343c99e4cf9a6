package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conthop/backend/internal/app/domain/notification"
	"github.com/conthop/backend/internal/app/domain/plan"
	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/app/domain/support"
	"github.com/conthop/backend/internal/app/domain/user"
)

var (
	// ErrNotFound is returned when no row matched.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a unique constraint was violated.
	ErrConflict = errors.New("storage: conflict")
)

// UserStore persists members and administrators.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id int64) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	ListAdmins(ctx context.Context) ([]user.User, error)
	DeleteUser(ctx context.Context, id int64) (user.User, error)
	SetUserStatus(ctx context.Context, id int64, status user.Status) (user.User, error)
	SetUserRole(ctx context.Context, id int64, role user.Role) (user.User, error)
	SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error
	// ResetPassword replaces the hash for the user holding an unexpired
	// token and clears the token.
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (user.User, error)
}

// RequestStore persists financial requests of every kind.
type RequestStore interface {
	CreateRequest(ctx context.Context, req request.Request) (request.Request, error)
	GetRequest(ctx context.Context, kind request.Kind, id int64) (request.Request, error)
	// UpdateRequestStatus sets the status in one statement. With
	// requirePending the row must still be pending. ErrNotFound when no row
	// was updated.
	UpdateRequestStatus(ctx context.Context, kind request.Kind, id int64, status request.Status, requirePending bool) (request.Request, error)
	ListRequests(ctx context.Context, kind request.Kind, filter request.Filter) ([]request.View, error)
	SumRequests(ctx context.Context, kind request.Kind, userID int64) (decimal.Decimal, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	ListNotifications(ctx context.Context, userID int64) ([]notification.Notification, error)
	// MarkNotificationRead flips the flag only on a notification owned by userID.
	MarkNotificationRead(ctx context.Context, id, userID int64) (notification.Notification, error)
}

// PlanStore persists plans and memberships.
type PlanStore interface {
	UpsertPlan(ctx context.Context, p plan.Plan) (plan.Plan, error)
	GetPlanByCode(ctx context.Context, code string) (plan.Plan, error)
	ListPlans(ctx context.Context) ([]plan.Plan, error)
	LinkUserPlan(ctx context.Context, userID, planID int64) error
	HasPlanMembership(ctx context.Context, userID int64, code string) (bool, error)
	ListUserPlans(ctx context.Context, userID int64) ([]plan.Plan, error)
}

// CommunityStore persists plan community messages.
type CommunityStore interface {
	CreateCommunityMessage(ctx context.Context, msg plan.Message) (plan.Message, error)
	ListCommunityMessages(ctx context.Context, planID int64) ([]plan.Message, error)
}

// SupportStore persists support tickets.
type SupportStore interface {
	CreateTicket(ctx context.Context, t support.Ticket) (support.Ticket, error)
	ListTickets(ctx context.Context) ([]support.Ticket, error)
	ReplyTicket(ctx context.Context, id int64, reply string) (support.Ticket, error)
}

// ReportStore persists member reports.
type ReportStore interface {
	CreateReport(ctx context.Context, r support.Report) (support.Report, error)
	ListReports(ctx context.Context) ([]support.Report, error)
	ReplyReport(ctx context.Context, id int64, reply string) (support.Report, error)
}

// Stats are the admin dashboard counters.
type Stats struct {
	TotalUsers           int64 `json:"totalUsers" db:"total_users"`
	TotalLoans           int64 `json:"totalLoans" db:"total_loans"`
	TotalInvestments     int64 `json:"totalInvestments" db:"total_investments"`
	TotalContributions   int64 `json:"totalContributions" db:"total_contributions"`
	TotalWithdrawals     int64 `json:"totalWithdrawals" db:"total_withdrawals"`
	PendingLoans         int64 `json:"pendingLoans" db:"pending_loans"`
	PendingInvestments   int64 `json:"pendingInvestments" db:"pending_investments"`
	PendingContributions int64 `json:"pendingContributions" db:"pending_contributions"`
	PendingWithdrawals   int64 `json:"pendingWithdrawals" db:"pending_withdrawals"`
}

// PendingTotal sums the pending counters.
func (s Stats) PendingTotal() int64 {
	return s.PendingLoans + s.PendingInvestments + s.PendingContributions + s.PendingWithdrawals
}

// StatsStore computes dashboard counters.
type StatsStore interface {
	Stats(ctx context.Context) (Stats, error)
}

// Store aggregates every store the application needs.
type Store interface {
	UserStore
	RequestStore
	NotificationStore
	PlanStore
	CommunityStore
	SupportStore
	ReportStore
	StatsStore
}
