package postgres

import (
	"context"
	"time"

	"github.com/conthop/backend/internal/app/domain/notification"
)

type notificationRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Read      bool      `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}

const notificationColumns = `id, user_id, title, message, read, created_at`

func (r notificationRow) toNotification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		Message:   r.Message,
		Read:      r.Read,
		CreatedAt: r.CreatedAt,
	}
}

// --- NotificationStore --------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO notifications (user_id, title, message, read, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING `+notificationColumns, n.UserID, n.Title, n.Message, s.now())
	if err != nil {
		return notification.Notification{}, mapErr(err)
	}
	return row.toNotification(), nil
}

func (s *Store) ListNotifications(ctx context.Context, userID int64) ([]notification.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toNotification())
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID int64) (notification.Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID)
	if err != nil {
		return notification.Notification{}, mapErr(err)
	}
	return row.toNotification(), nil
}
