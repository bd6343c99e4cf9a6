package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/conthop/backend/internal/app/domain/user"
	"github.com/conthop/backend/internal/app/storage"
)

type userRow struct {
	ID             int64      `db:"id"`
	Name           string     `db:"name"`
	Email          string     `db:"email"`
	PasswordHash   string     `db:"password_hash"`
	Phone          string     `db:"phone"`
	Address        string     `db:"address"`
	DateOfBirth    *time.Time `db:"date_of_birth"`
	Occupation     string     `db:"occupation"`
	BankName       string     `db:"bank_name"`
	AccountName    string     `db:"account_name"`
	AccountNumber  string     `db:"account_number"`
	Role           string     `db:"role"`
	Status         string     `db:"status"`
	ResetTokenHash string     `db:"reset_token_hash"`
	ResetExpiresAt *time.Time `db:"reset_expires_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

const userColumns = `id, name, email, password_hash, phone, address, date_of_birth, occupation,
	bank_name, account_name, account_number, role, status, reset_token_hash, reset_expires_at,
	created_at, updated_at`

func (r userRow) toUser() user.User {
	return user.User{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		PasswordHash:   r.PasswordHash,
		Phone:          r.Phone,
		Address:        r.Address,
		DateOfBirth:    r.DateOfBirth,
		Occupation:     r.Occupation,
		BankName:       r.BankName,
		AccountName:    r.AccountName,
		AccountNumber:  r.AccountNumber,
		Role:           user.Role(r.Role),
		Status:         user.Status(r.Status),
		ResetTokenHash: r.ResetTokenHash,
		ResetExpiresAt: r.ResetExpiresAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (s *Store) getUser(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return user.User{}, mapErr(err)
	}
	return row.toUser(), nil
}

func (s *Store) selectUsers(ctx context.Context, query string, args ...interface{}) ([]user.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]user.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toUser())
	}
	return out, nil
}

// --- UserStore ----------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.Role == "" {
		u.Role = user.RoleUser
	}
	if u.Status == "" {
		u.Status = user.StatusActive
	}
	now := s.now()
	return s.getUser(ctx, `
		INSERT INTO users (name, email, password_hash, phone, address, date_of_birth, occupation,
			bank_name, account_name, account_number, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING `+userColumns,
		u.Name, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash, u.Phone, u.Address, u.DateOfBirth,
		u.Occupation, u.BankName, u.AccountName, u.AccountNumber, string(u.Role), string(u.Status), now)
}

func (s *Store) GetUser(ctx context.Context, id int64) (user.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.selectUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id DESC`)
}

func (s *Store) ListAdmins(ctx context.Context) ([]user.User, error) {
	return s.selectUsers(ctx, `SELECT `+userColumns+` FROM users WHERE role = 'admin' ORDER BY id DESC`)
}

// DeleteUser removes the user and their plan links. Financial requests keep
// the dangling owner id and render with placeholder owner details.
func (s *Store) DeleteUser(ctx context.Context, id int64) (user.User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return user.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_plans WHERE user_id = $1`, id); err != nil {
		return user.User{}, err
	}
	var row userRow
	if err := tx.GetContext(ctx, &row, `DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id); err != nil {
		return user.User{}, mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return user.User{}, err
	}
	return row.toUser(), nil
}

func (s *Store) SetUserStatus(ctx context.Context, id int64, status user.Status) (user.User, error) {
	return s.getUser(ctx, `
		UPDATE users SET status = $2, updated_at = $3 WHERE id = $1
		RETURNING `+userColumns, id, string(status), s.now())
}

func (s *Store) SetUserRole(ctx context.Context, id int64, role user.Role) (user.User, error) {
	return s.getUser(ctx, `
		UPDATE users SET role = $2, updated_at = $3 WHERE id = $1
		RETURNING `+userColumns, id, string(role), s.now())
}

func (s *Store) SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET reset_token_hash = $2, reset_expires_at = $3, updated_at = $4 WHERE id = $1
	`, id, tokenHash, expiresAt, s.now())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (user.User, error) {
	return s.getUser(ctx, `
		UPDATE users
		SET password_hash = $2, reset_token_hash = '', reset_expires_at = NULL, updated_at = $3
		WHERE reset_token_hash = $1 AND reset_token_hash <> '' AND reset_expires_at > $3
		RETURNING `+userColumns, tokenHash, passwordHash, now)
}
