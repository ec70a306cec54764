package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"phonestore/internal/domain"
)

const accountCols = `id,email,name,password_hash,role,reset_code,reset_code_expires,created_at,last_login_at`

type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

func (r *UserRepo) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.DB.ExecContext(ctx, r.DB.Rebind(`
		INSERT INTO users(id,email,name,password_hash,role,created_at)
		VALUES(?,?,?,?,?,?)`), a.ID, a.Email, a.Name, a.Hash, a.Role, a.CreatedAt)
	return mapErr(err)
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var a domain.Account
	err := r.DB.GetContext(ctx, &a, r.DB.Rebind(`SELECT `+accountCols+` FROM users WHERE LOWER(email)=LOWER(?)`), email)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *UserRepo) ByID(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	err := r.DB.GetContext(ctx, &a, r.DB.Rebind(`SELECT `+accountCols+` FROM users WHERE id=?`), id)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *UserRepo) List(ctx context.Context) ([]domain.Account, error) {
	out := []domain.Account{}
	err := r.DB.SelectContext(ctx, &out, `SELECT `+accountCols+` FROM users ORDER BY created_at, email`)
	return out, mapErr(err)
}

func (r *UserRepo) SetRole(ctx context.Context, id string, role domain.Role) error {
	return rowsOrNotFound(r.DB.ExecContext(ctx, r.DB.Rebind(`UPDATE users SET role=? WHERE id=?`), role, id))
}

// SetPassword replaces the hash and drops any pending reset code.
func (r *UserRepo) SetPassword(ctx context.Context, id, hash string) error {
	return rowsOrNotFound(r.DB.ExecContext(ctx, r.DB.Rebind(`
		UPDATE users SET password_hash=?, reset_code=NULL, reset_code_expires=NULL WHERE id=?`), hash, id))
}

func (r *UserRepo) TouchLogin(ctx context.Context, id string, at int64) error {
	_, err := r.DB.ExecContext(ctx, r.DB.Rebind(`UPDATE users SET last_login_at=? WHERE id=?`), at, id)
	return err
}

// SetResetCode stores code and expiry in one statement, replacing any
// earlier code.
func (r *UserRepo) SetResetCode(ctx context.Context, id, code string, expires int64) error {
	return rowsOrNotFound(r.DB.ExecContext(ctx, r.DB.Rebind(`
		UPDATE users SET reset_code=?, reset_code_expires=? WHERE id=?`), code, expires, id))
}

// ConsumeResetCode swaps the password hash only while code is still the
// pending, unexpired code. It reports false when nothing matched.
func (r *UserRepo) ConsumeResetCode(ctx context.Context, id, code string, now int64, hash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(`
		UPDATE users
		SET password_hash=?, reset_code=NULL, reset_code_expires=NULL
		WHERE id=? AND reset_code=? AND reset_code_expires >= ?`), hash, id, code, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SessionUser returns the account bound to an unexpired session.
func (r *UserRepo) SessionUser(ctx context.Context, sid string, now int64) (*domain.Account, error) {
	var a domain.Account
	err := r.DB.GetContext(ctx, &a, r.DB.Rebind(`
		SELECT u.id,u.email,u.name,u.password_hash,u.role,u.reset_code,u.reset_code_expires,u.created_at,u.last_login_at
		FROM sessions s
		JOIN users u ON u.id=s.user_id
		WHERE s.id=? AND s.expires_at > ?`), sid, now)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *UserRepo) UnbindSession(ctx context.Context, sid string) error {
	_, err := r.DB.ExecContext(ctx, r.DB.Rebind(`UPDATE sessions SET user_id=NULL WHERE id=?`), sid)
	return err
}

func (r *UserRepo) PurgeSessions(ctx context.Context, now int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
