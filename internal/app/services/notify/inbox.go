package notify

import (
	"context"
	"errors"

	"github.com/conthop/backend/internal/app/domain/notification"
	"github.com/conthop/backend/internal/app/storage"
	svcerrors "github.com/conthop/backend/internal/errors"
)

// Inbox returns the in-app notifications of userID, newest first.
func (s *Service) Inbox(ctx context.Context, userID int64) ([]notification.Notification, error) {
	notes, err := s.notes.ListNotifications(ctx, userID)
	if err != nil {
		return nil, svcerrors.Internal("Failed to load notifications", err)
	}
	if notes == nil {
		notes = []notification.Notification{}
	}
	return notes, nil
}

// MarkRead flags notification id as read. Notifications owned by another
// user are reported as missing.
func (s *Service) MarkRead(ctx context.Context, id, userID int64) (notification.Notification, error) {
	n, err := s.notes.MarkNotificationRead(ctx, id, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return notification.Notification{}, svcerrors.NotFound("Notification")
	}
	if err != nil {
		return notification.Notification{}, svcerrors.Internal("Failed to update notification", err)
	}
	return n, nil
}
