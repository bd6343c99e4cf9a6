package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/app/domain/support"
)

type ticketRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Message   string    `db:"message"`
	Reply     string    `db:"reply"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

func (r ticketRow) toTicket() support.Ticket {
	return support.Ticket{
		ID: r.ID, UserID: r.UserID, Message: r.Message, Reply: r.Reply,
		Status: r.Status, CreatedAt: r.CreatedAt,
	}
}

type ticketViewRow struct {
	ticketRow
	owner
}

type reportRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	Reply     string    `db:"reply"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

func (r reportRow) toReport() support.Report {
	return support.Report{
		ID: r.ID, UserID: r.UserID, Title: r.Title, Content: r.Content, Reply: r.Reply,
		Status: r.Status, CreatedAt: r.CreatedAt,
	}
}

type reportViewRow struct {
	reportRow
	owner
}

const (
	ticketColumns = `id, user_id, message, reply, status, created_at`
	reportColumns = `id, user_id, title, content, reply, status, created_at`
)

var ownerColumns = fmt.Sprintf(`COALESCE(u.name, '%s') AS user_name, COALESCE(u.email, '%s') AS user_email`,
	request.DeletedUserName, request.DeletedUserEmail)

// --- SupportStore -------------------------------------------------------------

func (s *Store) CreateTicket(ctx context.Context, t support.Ticket) (support.Ticket, error) {
	var row ticketRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO support_tickets (user_id, message, reply, status, created_at)
		VALUES ($1, $2, '', 'pending', $3)
		RETURNING `+ticketColumns, t.UserID, t.Message, s.now())
	if err != nil {
		return support.Ticket{}, mapErr(err)
	}
	return row.toTicket(), nil
}

func (s *Store) ListTickets(ctx context.Context) ([]support.Ticket, error) {
	var rows []ticketViewRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+prefixed("t", []string{"id", "user_id", "message", "reply", "status", "created_at"})+`, `+ownerColumns+`
		FROM support_tickets t
		LEFT JOIN users u ON u.id = t.user_id
		ORDER BY t.created_at DESC, t.id DESC
	`)
	if err != nil {
		return nil, err
	}
	out := make([]support.Ticket, 0, len(rows))
	for _, r := range rows {
		t := r.toTicket()
		t.UserName, t.UserEmail = r.UserName, r.UserEmail
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) ReplyTicket(ctx context.Context, id int64, reply string) (support.Ticket, error) {
	var row ticketRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE support_tickets SET reply = $2, status = 'replied'
		WHERE id = $1
		RETURNING `+ticketColumns, id, reply)
	if err != nil {
		return support.Ticket{}, mapErr(err)
	}
	return row.toTicket(), nil
}

// --- ReportStore --------------------------------------------------------------

func (s *Store) CreateReport(ctx context.Context, r support.Report) (support.Report, error) {
	var row reportRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO reports (user_id, title, content, reply, status, created_at)
		VALUES ($1, $2, $3, '', 'pending', $4)
		RETURNING `+reportColumns, r.UserID, r.Title, r.Content, s.now())
	if err != nil {
		return support.Report{}, mapErr(err)
	}
	return row.toReport(), nil
}

func (s *Store) ListReports(ctx context.Context) ([]support.Report, error) {
	var rows []reportViewRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+prefixed("r", []string{"id", "user_id", "title", "content", "reply", "status", "created_at"})+`, `+ownerColumns+`
		FROM reports r
		LEFT JOIN users u ON u.id = r.user_id
		ORDER BY r.created_at DESC, r.id DESC
	`)
	if err != nil {
		return nil, err
	}
	out := make([]support.Report, 0, len(rows))
	for _, r := range rows {
		rep := r.toReport()
		rep.UserName, rep.UserEmail = r.UserName, r.UserEmail
		out = append(out, rep)
	}
	return out, nil
}

func (s *Store) ReplyReport(ctx context.Context, id int64, reply string) (support.Report, error) {
	var row reportRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE reports SET reply = $2, status = 'reviewed'
		WHERE id = $1
		RETURNING `+reportColumns, id, reply)
	if err != nil {
		return support.Report{}, mapErr(err)
	}
	return row.toReport(), nil
}
