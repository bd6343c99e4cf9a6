package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/conthop/backend/internal/app/domain/request"
	"github.com/conthop/backend/internal/app/storage"
)

// --- row shapes ---------------------------------------------------------------

type loanRow struct {
	ID             int64           `db:"id"`
	UserID         int64           `db:"user_id"`
	Amount         decimal.Decimal `db:"amount"`
	Purpose        string          `db:"purpose"`
	DurationMonths int             `db:"duration_months"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
}

func (r loanRow) toRequest() request.Request {
	return request.Request{
		ID: r.ID, Kind: request.KindLoan, UserID: r.UserID, Amount: r.Amount,
		Status: request.Status(r.Status), CreatedAt: r.CreatedAt,
		Purpose: r.Purpose, DurationMonths: r.DurationMonths,
	}
}

type investmentRow struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	Amount      decimal.Decimal `db:"amount"`
	ProjectName string          `db:"project_name"`
	Returns     decimal.Decimal `db:"returns"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
}

func (r investmentRow) toRequest() request.Request {
	return request.Request{
		ID: r.ID, Kind: request.KindInvestment, UserID: r.UserID, Amount: r.Amount,
		Status: request.Status(r.Status), CreatedAt: r.CreatedAt,
		ProjectName: r.ProjectName, Returns: &r.Returns,
	}
}

type contributionRow struct {
	ID        int64           `db:"id"`
	UserID    int64           `db:"user_id"`
	Amount    decimal.Decimal `db:"amount"`
	Status    string          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r contributionRow) toRequest() request.Request {
	return request.Request{
		ID: r.ID, Kind: request.KindContribution, UserID: r.UserID, Amount: r.Amount,
		Status: request.Status(r.Status), CreatedAt: r.CreatedAt,
	}
}

type withdrawalRow struct {
	ID            int64           `db:"id"`
	UserID        int64           `db:"user_id"`
	Amount        decimal.Decimal `db:"amount"`
	BankName      string          `db:"bank_name"`
	AccountName   string          `db:"account_name"`
	AccountNumber string          `db:"account_number"`
	Status        string          `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r withdrawalRow) toRequest() request.Request {
	return request.Request{
		ID: r.ID, Kind: request.KindWithdrawal, UserID: r.UserID, Amount: r.Amount,
		Status: request.Status(r.Status), CreatedAt: r.CreatedAt,
		BankName: r.BankName, AccountName: r.AccountName, AccountNumber: r.AccountNumber,
	}
}

type owner struct {
	UserName  string `db:"user_name"`
	UserEmail string `db:"user_email"`
}

type loanViewRow struct {
	loanRow
	owner
}

type investmentViewRow struct {
	investmentRow
	owner
}

type contributionViewRow struct {
	contributionRow
	owner
}

type withdrawalViewRow struct {
	withdrawalRow
	owner
}

func (r loanViewRow) toView() request.View         { return view(r.loanRow, r.owner) }
func (r investmentViewRow) toView() request.View   { return view(r.investmentRow, r.owner) }
func (r contributionViewRow) toView() request.View { return view(r.contributionRow, r.owner) }
func (r withdrawalViewRow) toView() request.View   { return view(r.withdrawalRow, r.owner) }

type requestRow interface {
	toRequest() request.Request
}

type viewRow interface {
	toView() request.View
}

func view(r requestRow, o owner) request.View {
	return request.View{Request: r.toRequest(), UserName: o.UserName, UserEmail: o.UserEmail}
}

func getRequestRow[R requestRow](ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (request.Request, error) {
	var row R
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		return request.Request{}, mapErr(err)
	}
	return row.toRequest(), nil
}

func selectViewRows[R viewRow](ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) ([]request.View, error) {
	var rows []R
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]request.View, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toView())
	}
	return out, nil
}

// --- tables -------------------------------------------------------------------

type requestTable struct {
	name    string
	extra   []string
	args    func(request.Request) []interface{}
	getRow  func(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (request.Request, error)
	getView func(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) ([]request.View, error)
}

func (t requestTable) columns() []string {
	cols := []string{"id", "user_id", "amount"}
	cols = append(cols, t.extra...)
	return append(cols, "status", "created_at")
}

func (t requestTable) returning() string {
	return strings.Join(t.columns(), ", ")
}

var requestTables = map[request.Kind]requestTable{
	request.KindLoan: {
		name:  "loans",
		extra: []string{"purpose", "duration_months"},
		args: func(r request.Request) []interface{} {
			return []interface{}{r.Purpose, r.DurationMonths}
		},
		getRow:  getRequestRow[loanRow],
		getView: selectViewRows[loanViewRow],
	},
	request.KindInvestment: {
		name:  "investments",
		extra: []string{"project_name", "returns"},
		args: func(r request.Request) []interface{} {
			return []interface{}{r.ProjectName, r.ReturnsOrZero()}
		},
		getRow:  getRequestRow[investmentRow],
		getView: selectViewRows[investmentViewRow],
	},
	request.KindContribution: {
		name:    "contributions",
		args:    func(request.Request) []interface{} { return nil },
		getRow:  getRequestRow[contributionRow],
		getView: selectViewRows[contributionViewRow],
	},
	request.KindWithdrawal: {
		name:  "withdrawals",
		extra: []string{"bank_name", "account_name", "account_number"},
		args: func(r request.Request) []interface{} {
			return []interface{}{r.BankName, r.AccountName, r.AccountNumber}
		},
		getRow:  getRequestRow[withdrawalRow],
		getView: selectViewRows[withdrawalViewRow],
	},
}

func tableFor(kind request.Kind) (requestTable, error) {
	t, ok := requestTables[kind]
	if !ok {
		return requestTable{}, fmt.Errorf("unsupported request kind %q", kind)
	}
	return t, nil
}

// --- RequestStore -------------------------------------------------------------

func (s *Store) CreateRequest(ctx context.Context, req request.Request) (request.Request, error) {
	t, err := tableFor(req.Kind)
	if err != nil {
		return request.Request{}, err
	}
	if req.Status == "" {
		req.Status = request.StatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}

	cols := append([]string{"user_id", "amount"}, t.extra...)
	cols = append(cols, "status", "created_at")
	args := append([]interface{}{req.UserID, req.Amount}, t.args(req)...)
	args = append(args, string(req.Status), req.CreatedAt)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s`,
		t.name, strings.Join(cols, ", "), strings.Join(placeholders, ", "), t.returning())
	return t.getRow(ctx, s.db, query, args...)
}

func (s *Store) GetRequest(ctx context.Context, kind request.Kind, id int64) (request.Request, error) {
	t, err := tableFor(kind)
	if err != nil {
		return request.Request{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, t.returning(), t.name)
	return t.getRow(ctx, s.db, query, id)
}

func (s *Store) UpdateRequestStatus(ctx context.Context, kind request.Kind, id int64, status request.Status, requirePending bool) (request.Request, error) {
	t, err := tableFor(kind)
	if err != nil {
		return request.Request{}, err
	}
	where := "id = $1"
	if requirePending {
		where += " AND status = 'pending'"
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $2 WHERE %s RETURNING %s`, t.name, where, t.returning())
	return t.getRow(ctx, s.db, query, id, string(status))
}

func (s *Store) ListRequests(ctx context.Context, kind request.Kind, filter request.Filter) ([]request.View, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s,
			COALESCE(u.name, '%s') AS user_name,
			COALESCE(u.email, '%s') AS user_email
		FROM %s r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE ($1 = '' OR r.status = $1) AND ($2 = 0 OR r.user_id = $2)
		ORDER BY r.created_at DESC, r.id DESC
	`, prefixed("r", t.columns()), request.DeletedUserName, request.DeletedUserEmail, t.name)
	return t.getView(ctx, s.db, query, string(filter.Status), filter.UserID)
}

func (s *Store) SumRequests(ctx context.Context, kind request.Kind, userID int64) (decimal.Decimal, error) {
	t, err := tableFor(kind)
	if err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	query := fmt.Sprintf(`SELECT COALESCE(SUM(amount), 0) FROM %s WHERE user_id = $1`, t.name)
	if err := s.db.GetContext(ctx, &total, query, userID); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// --- StatsStore ---------------------------------------------------------------

func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	var st storage.Stats
	err := s.db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COUNT(*) FROM loans) AS total_loans,
			(SELECT COUNT(*) FROM investments) AS total_investments,
			(SELECT COUNT(*) FROM contributions) AS total_contributions,
			(SELECT COUNT(*) FROM withdrawals) AS total_withdrawals,
			(SELECT COUNT(*) FROM loans WHERE status = 'pending') AS pending_loans,
			(SELECT COUNT(*) FROM investments WHERE status = 'pending') AS pending_investments,
			(SELECT COUNT(*) FROM contributions WHERE status = 'pending') AS pending_contributions,
			(SELECT COUNT(*) FROM withdrawals WHERE status = 'pending') AS pending_withdrawals
	`)
	if err != nil {
		return storage.Stats{}, err
	}
	return st, nil
}
