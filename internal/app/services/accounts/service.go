package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/conthop/backend/internal/app/auth"
	"github.com/conthop/backend/internal/app/domain/plan"
	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/app/domain/user"
	"github.com/conthop/backend/internal/app/storage"
	svcerrors "github.com/conthop/backend/internal/errors"
	"github.com/conthop/backend/internal/logging"
)

const (
	minPasswordLength = 8
	minimumAge        = 18
)

// Mailer sends a one-off email to a user and reports failure.
type Mailer interface {
	Email(ctx context.Context, recipientID int64, subject, message string) error
}

// Stores groups the persistence dependencies of the service.
type Stores struct {
	Users    storage.UserStore
	Plans    storage.PlanStore
	Requests storage.RequestStore
	Stats    storage.StatsStore
}

// Service manages registration, credentials, profiles and admin user
// operations.
type Service struct {
	users    storage.UserStore
	plans    storage.PlanStore
	requests storage.RequestStore
	stats    storage.StatsStore
	tokens   *auth.TokenIssuer
	mailer   Mailer
	resetURL string
	log      *logging.Logger
	now      func() time.Time
}

// New creates an accounts service. resetURL is the page members open to
// choose a new password; the token is appended as a query parameter.
func New(stores Stores, tokens *auth.TokenIssuer, mailer Mailer, resetURL string, log *logging.Logger) *Service {
	if log == nil {
		log = logging.New("accounts", "info", "json")
	}
	return &Service{
		users:    stores.Users,
		plans:    stores.Plans,
		requests: stores.Requests,
		stats:    stores.Stats,
		tokens:   tokens,
		mailer:   mailer,
		resetURL: resetURL,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Password      string   `json:"password"`
	Phone         string   `json:"phone"`
	Address       string   `json:"address"`
	DateOfBirth   string   `json:"dateOfBirth"`
	Occupation    string   `json:"occupation"`
	BankName      string   `json:"bankName"`
	AccountName   string   `json:"accountName"`
	AccountNumber string   `json:"accountNumber"`
	Plans         []string `json:"plans"`
}

// Session is a signed-in user with a bearer token.
type Session struct {
	User      user.User `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Register creates a member, links the chosen plans and signs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return Session{}, svcerrors.InvalidArgument("Name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil || in.Email == "" {
		return Session{}, svcerrors.InvalidFormat("email", "a valid email address")
	}
	if len(in.Password) < minPasswordLength {
		return Session{}, svcerrors.InvalidArgument(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if len(in.Plans) == 0 {
		return Session{}, svcerrors.InvalidArgument("Please select at least one plan.")
	}
	if strings.TrimSpace(in.DateOfBirth) == "" {
		return Session{}, svcerrors.InvalidArgument("Date of birth is required.")
	}
	dob, err := time.Parse("2006-01-02", strings.TrimSpace(in.DateOfBirth))
	if err != nil {
		return Session{}, svcerrors.InvalidFormat("dateOfBirth", "YYYY-MM-DD")
	}
	if age(dob, s.now()) < minimumAge {
		return Session{}, svcerrors.InvalidArgument("You must be at least 18 years old.")
	}

	chosen := make([]plan.Plan, 0, len(in.Plans))
	for _, code := range in.Plans {
		p, err := s.plans.GetPlanByCode(ctx, strings.ToLower(strings.TrimSpace(code)))
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, svcerrors.InvalidArgument("Invalid plan selection.").WithDetails("plan", code)
		}
		if err != nil {
			return Session{}, svcerrors.Internal("Registration failed", err)
		}
		chosen = append(chosen, p)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Session{}, svcerrors.Internal("Registration failed", err)
	}

	created, err := s.users.CreateUser(ctx, user.User{
		Name:          in.Name,
		Email:         in.Email,
		PasswordHash:  hash,
		Phone:         strings.TrimSpace(in.Phone),
		Address:       strings.TrimSpace(in.Address),
		DateOfBirth:   &dob,
		Occupation:    strings.TrimSpace(in.Occupation),
		BankName:      strings.TrimSpace(in.BankName),
		AccountName:   strings.TrimSpace(in.AccountName),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		Role:          user.RoleUser,
		Status:        user.StatusActive,
	})
	if errors.Is(err, storage.ErrConflict) {
		return Session{}, svcerrors.Conflict("User already exists.")
	}
	if err != nil {
		return Session{}, svcerrors.Internal("Registration failed", err)
	}

	for _, p := range chosen {
		if err := s.plans.LinkUserPlan(ctx, created.ID, p.ID); err != nil {
			if _, delErr := s.users.DeleteUser(ctx, created.ID); delErr != nil {
				s.log.WithContext(ctx).WithError(delErr).WithField("user_id", created.ID).Error("rollback of partial registration failed")
			}
			return Session{}, svcerrors.Internal("Registration failed", err)
		}
	}

	s.log.WithContext(ctx).WithField("user_id", created.ID).WithField("plans", len(chosen)).Info("member registered")
	return s.session(created)
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, svcerrors.InvalidArgument("Email and password are required.")
	}
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Session{}, svcerrors.Internal("Login failed", err)
	}
	if err != nil || !auth.CheckPassword(u.PasswordHash, password) {
		s.log.LogSecurityEvent(ctx, "login_failed", map[string]interface{}{"email": email})
		return Session{}, svcerrors.Unauthorized("Invalid email or password")
	}
	return s.session(u)
}

func (s *Service) session(u user.User) (Session, error) {
	token, expires, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, svcerrors.Internal("Could not issue token", err)
	}
	return Session{User: u, Token: token, ExpiresAt: expires}, nil
}

// ForgotPassword stores a reset token for the account and emails the link.
// Unknown addresses succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return svcerrors.InvalidArgument("Email is required")
	}
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.LogSecurityEvent(ctx, "password_reset_unknown_email", map[string]interface{}{"email": email})
		return nil
	}
	if err != nil {
		return svcerrors.Internal("Could not start password reset", err)
	}

	raw, hash, err := auth.NewResetToken()
	if err != nil {
		return svcerrors.Internal("Could not start password reset", err)
	}
	if err := s.users.SetResetToken(ctx, u.ID, hash, s.now().Add(auth.ResetTokenTTL)); err != nil {
		return svcerrors.Internal("Could not start password reset", err)
	}

	if s.mailer != nil {
		msg := fmt.Sprintf("Use this link to reset your password. It expires in %d minutes: %s",
			int(auth.ResetTokenTTL.Minutes()), s.resetLink(raw))
		if err := s.mailer.Email(ctx, u.ID, "Password Reset", msg); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("user_id", u.ID).Warn("password reset email failed")
		}
	}
	return nil
}

func (s *Service) resetLink(raw string) string {
	base := s.resetURL
	if base == "" {
		base = "http://localhost:3000/reset-password"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(raw)
}

// ResetPassword sets a new password for the holder of an unexpired token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return svcerrors.InvalidArgument("Reset token is required")
	}
	if len(password) < minPasswordLength {
		return svcerrors.InvalidArgument(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return svcerrors.Internal("Could not reset password", err)
	}
	u, err := s.users.ResetPassword(ctx, auth.HashResetToken(token), hash, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		return svcerrors.InvalidArgument("Invalid or expired reset token")
	}
	if err != nil {
		return svcerrors.Internal("Could not reset password", err)
	}
	s.log.LogSecurityEvent(ctx, "password_reset", map[string]interface{}{"user_id": u.ID})
	return nil
}

// Profile is a member with their plans.
type Profile struct {
	User  user.User   `json:"user"`
	Plans []plan.Plan `json:"plans"`
}

// Profile returns the caller's profile.
func (s *Service) Profile(ctx context.Context, id int64) (Profile, error) {
	u, err := s.getUser(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	plans, err := s.plans.ListUserPlans(ctx, id)
	if err != nil {
		return Profile{}, svcerrors.Internal("Failed to load profile", err)
	}
	return Profile{User: u, Plans: plans}, nil
}

// FinancialSummary totals the member's requests per kind.
func (s *Service) FinancialSummary(ctx context.Context, userID int64) (request.Summary, error) {
	var sum request.Summary
	for _, kind := range request.Kinds {
		total, err := s.requests.SumRequests(ctx, kind, userID)
		if err != nil {
			return request.Summary{}, svcerrors.Internal("Failed to load financial summary", err)
		}
		switch kind {
		case request.KindLoan:
			sum.TotalLoans = total
		case request.KindInvestment:
			sum.TotalInvestments = total
		case request.KindContribution:
			sum.TotalContributions = total
		case request.KindWithdrawal:
			sum.TotalWithdrawals = total
		}
	}
	return sum, nil
}

func (s *Service) getUser(ctx context.Context, id int64) (user.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, svcerrors.NotFound("User")
	}
	if err != nil {
		return user.User{}, svcerrors.Internal("Failed to load user", err)
	}
	return u, nil
}

func age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}
