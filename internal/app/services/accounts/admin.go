package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/conthop/backend/internal/app/auth"
	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/app/domain/user"
	"github.com/conthop/backend/internal/app/storage"
	svcerrors "github.com/conthop/backend/internal/errors"
)

// UserDetail is a user with every request they submitted.
type UserDetail struct {
	User     user.User                 `json:"user"`
	Requests map[string][]request.View `json:"requests"`
}

// ListUsers returns every user, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]user.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, svcerrors.Internal("Server error fetching users", err)
	}
	return users, nil
}

// UserDetail returns a user and their requests of every kind.
func (s *Service) UserDetail(ctx context.Context, id int64) (UserDetail, error) {
	u, err := s.getUser(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}
	detail := UserDetail{User: u, Requests: make(map[string][]request.View, len(request.Kinds))}
	for _, kind := range request.Kinds {
		views, err := s.requests.ListRequests(ctx, kind, request.Filter{UserID: id})
		if err != nil {
			return UserDetail{}, svcerrors.Internal("Failed to load user requests", err)
		}
		detail.Requests[kind.Plural()] = views
	}
	return detail, nil
}

// DeleteUser removes a user. Their requests remain and list with a
// placeholder owner.
func (s *Service) DeleteUser(ctx context.Context, id, actorID int64) (user.User, error) {
	if id == actorID {
		return user.User{}, svcerrors.InvalidArgument("Admins cannot delete their own account")
	}
	deleted, err := s.users.DeleteUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, svcerrors.NotFound("User")
	}
	if err != nil {
		return user.User{}, svcerrors.Internal("Failed to delete user", err)
	}
	s.log.LogSecurityEvent(ctx, "user_deleted", map[string]interface{}{"user_id": id, "actor_id": actorID})
	return deleted, nil
}

// SetStatus activates, suspends or deactivates a user.
func (s *Service) SetStatus(ctx context.Context, id int64, rawStatus string) (user.User, error) {
	status, err := user.ParseStatus(rawStatus)
	if err != nil {
		return user.User{}, svcerrors.InvalidArgument("Status must be active, suspended or deactivated")
	}
	updated, err := s.users.SetUserStatus(ctx, id, status)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, svcerrors.NotFound("User")
	}
	if err != nil {
		return user.User{}, svcerrors.Internal("Failed to update user status", err)
	}
	s.log.LogSecurityEvent(ctx, "user_status_changed", map[string]interface{}{"user_id": id, "status": status})
	return updated, nil
}

// SetRole changes a user's role.
func (s *Service) SetRole(ctx context.Context, id int64, rawRole string) (user.User, error) {
	role, err := user.ParseRole(rawRole)
	if err != nil {
		return user.User{}, svcerrors.InvalidArgument("Role must be user or admin")
	}
	updated, err := s.users.SetUserRole(ctx, id, role)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, svcerrors.NotFound("User")
	}
	if err != nil {
		return user.User{}, svcerrors.Internal("Failed to update user role", err)
	}
	s.log.LogSecurityEvent(ctx, "user_role_changed", map[string]interface{}{"user_id": id, "role": role})
	return updated, nil
}

// NotifyUser emails a user an ad-hoc message. Delivery failure is returned.
func (s *Service) NotifyUser(ctx context.Context, id int64, subject, message string) (user.User, error) {
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if subject == "" || message == "" {
		return user.User{}, svcerrors.InvalidArgument("Subject and message are required")
	}
	u, err := s.getUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if s.mailer == nil {
		return user.User{}, svcerrors.Internal("Failed to send email", fmt.Errorf("no mailer configured"))
	}
	if err := s.mailer.Email(ctx, id, subject, message); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("user_id", id).Error("admin email failed")
		return user.User{}, svcerrors.Internal("Failed to send email", err)
	}
	return u, nil
}

// Stats returns dashboard counters.
func (s *Service) Stats(ctx context.Context) (storage.Stats, error) {
	st, err := s.stats.Stats(ctx)
	if err != nil {
		return storage.Stats{}, svcerrors.Internal("Server error fetching stats", err)
	}
	return st, nil
}

// EnsureAdmin creates an administrator with email and password, or promotes
// and reactivates the existing account with that email.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < minPasswordLength {
		return user.User{}, svcerrors.InvalidArgument("Admin email and a password of at least 8 characters are required")
	}
	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.IsAdmin() && existing.IsActive() {
			return existing, nil
		}
		if _, err := s.users.SetUserRole(ctx, existing.ID, user.RoleAdmin); err != nil {
			return user.User{}, svcerrors.Internal("Failed to promote admin", err)
		}
		promoted, err := s.users.SetUserStatus(ctx, existing.ID, user.StatusActive)
		if err != nil {
			return user.User{}, svcerrors.Internal("Failed to promote admin", err)
		}
		s.log.LogSecurityEvent(ctx, "admin_promoted", map[string]interface{}{"user_id": promoted.ID})
		return promoted, nil
	case !errors.Is(err, storage.ErrNotFound):
		return user.User{}, svcerrors.Internal("Failed to look up admin", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return user.User{}, svcerrors.Internal("Failed to create admin", err)
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	created, err := s.users.CreateUser(ctx, user.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		Status:       user.StatusActive,
	})
	if err != nil {
		return user.User{}, svcerrors.Internal("Failed to create admin", err)
	}
	s.log.LogSecurityEvent(ctx, "admin_created", map[string]interface{}{"user_id": created.ID})
	return created, nil
}
