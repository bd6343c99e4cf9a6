package postgres

import (
	"context"
	"time"

	"github.com/conthop/backend/internal/app/domain/plan"
	"github.com/conthop/backend/internal/app/domain/request"
)

type planRow struct {
	ID   int64  `db:"id"`
	Code string `db:"code"`
	Name string `db:"name"`
}

func (r planRow) toPlan() plan.Plan {
	return plan.Plan{ID: r.ID, Code: r.Code, Name: r.Name}
}

type communityMessageRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	PlanID    int64     `db:"plan_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	UserName  string    `db:"user_name"`
}

func (r communityMessageRow) toMessage() plan.Message {
	return plan.Message{
		ID:        r.ID,
		UserID:    r.UserID,
		PlanID:    r.PlanID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		UserName:  r.UserName,
	}
}

// --- PlanStore ----------------------------------------------------------------

func (s *Store) UpsertPlan(ctx context.Context, p plan.Plan) (plan.Plan, error) {
	var row planRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO plans (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, code, name
	`, p.Code, p.Name)
	if err != nil {
		return plan.Plan{}, mapErr(err)
	}
	return row.toPlan(), nil
}

func (s *Store) GetPlanByCode(ctx context.Context, code string) (plan.Plan, error) {
	var row planRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, code, name FROM plans WHERE code = $1`, code); err != nil {
		return plan.Plan{}, mapErr(err)
	}
	return row.toPlan(), nil
}

func (s *Store) ListPlans(ctx context.Context) ([]plan.Plan, error) {
	return s.selectPlans(ctx, `SELECT id, code, name FROM plans ORDER BY id`)
}

func (s *Store) ListUserPlans(ctx context.Context, userID int64) ([]plan.Plan, error) {
	return s.selectPlans(ctx, `
		SELECT p.id, p.code, p.name
		FROM plans p
		JOIN user_plans up ON up.plan_id = p.id
		WHERE up.user_id = $1
		ORDER BY p.id
	`, userID)
}

func (s *Store) selectPlans(ctx context.Context, query string, args ...interface{}) ([]plan.Plan, error) {
	var rows []planRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]plan.Plan, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toPlan())
	}
	return out, nil
}

func (s *Store) LinkUserPlan(ctx context.Context, userID, planID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_plans (user_id, plan_id) VALUES ($1, $2)
		ON CONFLICT (user_id, plan_id) DO NOTHING
	`, userID, planID)
	return mapErr(err)
}

func (s *Store) HasPlanMembership(ctx context.Context, userID int64, code string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM user_plans up
			JOIN plans p ON p.id = up.plan_id
			WHERE up.user_id = $1 AND p.code = $2
		)
	`, userID, code)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// --- CommunityStore -----------------------------------------------------------

func (s *Store) CreateCommunityMessage(ctx context.Context, msg plan.Message) (plan.Message, error) {
	var row communityMessageRow
	err := s.db.GetContext(ctx, &row, `
		WITH inserted AS (
			INSERT INTO community_messages (user_id, plan_id, content, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, user_id, plan_id, content, created_at
		)
		SELECT i.id, i.user_id, i.plan_id, i.content, i.created_at,
			COALESCE(u.name, '`+request.DeletedUserName+`') AS user_name
		FROM inserted i
		LEFT JOIN users u ON u.id = i.user_id
	`, msg.UserID, msg.PlanID, msg.Content, s.now())
	if err != nil {
		return plan.Message{}, mapErr(err)
	}
	return row.toMessage(), nil
}

func (s *Store) ListCommunityMessages(ctx context.Context, planID int64) ([]plan.Message, error) {
	var rows []communityMessageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT m.id, m.user_id, m.plan_id, m.content, m.created_at,
			COALESCE(u.name, '`+request.DeletedUserName+`') AS user_name
		FROM community_messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.plan_id = $1
		ORDER BY m.created_at, m.id
	`, planID)
	if err != nil {
		return nil, err
	}
	out := make([]plan.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toMessage())
	}
	return out, nil
}
