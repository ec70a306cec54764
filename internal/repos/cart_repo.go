package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"phonestore/internal/domain"
)

type CartRepo struct{ db *sqlx.DB }

func NewCartRepo(db *sqlx.DB) *CartRepo { return &CartRepo{db: db} }

// Add inserts the line or increments an existing one in a single statement.
// With maxQty > 0 the increment is skipped when the result would exceed
// it, and Add returns domain.ErrValidation.
func (r *CartRepo) Add(ctx context.Context, l domain.CartLine, maxQty int) error {
	q := `
		INSERT INTO cart_items(owner,product_id,quantity,title,price,image_url,added_at,updated_at)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(owner,product_id) DO UPDATE
		SET quantity = cart_items.quantity + excluded.quantity, updated_at = excluded.updated_at`
	args := []any{l.Owner, l.ProductID, l.Quantity, l.Title, l.Price, l.ImageURL, l.AddedAt, l.AddedAt}
	if maxQty > 0 {
		q += ` WHERE cart_items.quantity + excluded.quantity <= ?`
		args = append(args, maxQty)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrValidation
	}
	return nil
}

func (r *CartRepo) Count(ctx context.Context, owner string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM cart_items WHERE owner=?`), owner)
	return n, err
}

func (r *CartRepo) Lines(ctx context.Context, owner string) ([]domain.CartLine, error) {
	out := []domain.CartLine{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT owner,product_id,quantity,title,price,image_url,added_at,updated_at
		FROM cart_items WHERE owner=?
		ORDER BY added_at, product_id`), owner)
	return out, err
}

func (r *CartRepo) SetQty(ctx context.Context, owner string, productID int64, qty int, now int64) error {
	return rowsOrNotFound(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE cart_items SET quantity=?, updated_at=? WHERE owner=? AND product_id=?`), qty, now, owner, productID))
}

func (r *CartRepo) Remove(ctx context.Context, owner string, productID int64) error {
	return rowsOrNotFound(r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM cart_items WHERE owner=? AND product_id=?`), owner, productID))
}

func (r *CartRepo) Clear(ctx context.Context, owner string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM cart_items WHERE owner=?`), owner)
	return err
}

// MergeResult reports what MergeForLogin did.
type MergeResult struct {
	// Moved is the number of anonymous lines re-keyed to the account.
	Moved int64
	// Clamped is the number of merged lines cut back to the quantity cap.
	Clamped int64
}

// capQty wraps a quantity expression so it never exceeds a bound passed as
// two positional args.
func capQty(expr string) string {
	return `CASE WHEN ` + expr + ` > CAST(? AS INTEGER) THEN CAST(? AS INTEGER) ELSE ` + expr + ` END`
}

// MergeForLogin moves the anonymous cart of fromSID onto the account,
// summing quantities of products present in both and clamping each line to
// maxQty when it is positive. It drops any session stored under fromSID and
// binds the freshly minted newSID to the account. Everything happens in one
// transaction.
func (r *CartRepo) MergeForLogin(ctx context.Context, userID, fromSID, newSID string, now, sessionExpires int64, maxQty int) (MergeResult, error) {
	var out MergeResult
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer func() { _ = tx.Rollback() }()

	from, to := domain.AnonKey(fromSID), domain.AccountKey(userID)
	if maxQty > 0 {
		if err := tx.GetContext(ctx, &out.Clamped, tx.Rebind(`
			SELECT COUNT(*) FROM cart_items a
			LEFT JOIN cart_items b ON b.owner=? AND b.product_id=a.product_id
			WHERE a.owner=? AND a.quantity + COALESCE(b.quantity, 0) > ?`),
			to, from, maxQty); err != nil {
			return out, err
		}
	}

	insQty, updQty := "quantity", "cart_items.quantity + excluded.quantity"
	args := []any{to}
	if maxQty > 0 {
		insQty, updQty = capQty(insQty), capQty(updQty)
		args = append(args, maxQty, maxQty)
	}
	args = append(args, now, from)
	if maxQty > 0 {
		args = append(args, maxQty, maxQty)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cart_items(owner,product_id,quantity,title,price,image_url,added_at,updated_at)
		SELECT CAST(? AS TEXT), product_id, `+insQty+`, title, price, image_url, added_at, CAST(? AS BIGINT)
		FROM cart_items WHERE owner=?
		ON CONFLICT(owner,product_id) DO UPDATE
		SET quantity = `+updQty+`, updated_at = excluded.updated_at`),
		args...); err != nil {
		return out, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cart_items WHERE owner=?`), from)
	if err != nil {
		return out, err
	}
	if out.Moved, err = res.RowsAffected(); err != nil {
		return out, err
	}
	if fromSID != "" && fromSID != newSID {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sessions WHERE id=?`), fromSID); err != nil {
			return out, err
		}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO sessions(id,user_id,created_at,expires_at) VALUES(?,?,?,?)`),
		newSID, userID, now, sessionExpires); err != nil {
		return out, mapErr(err)
	}
	return out, tx.Commit()
}
