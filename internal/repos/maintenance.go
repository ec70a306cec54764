package repos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"phonestore/internal/domain"
)

// LegacyReport summarizes a NormalizeLegacy run.
type LegacyReport struct {
	EmailsLowered  int64
	SpecsRewritten int
}

// NormalizeLegacy rewrites rows imported from older data: mixed-case
// emails and specs stored as free text. Safe to run repeatedly.
func NormalizeLegacy(ctx context.Context, db *sqlx.DB) (LegacyReport, error) {
	var rep LegacyReport
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE users SET email = LOWER(email) WHERE email <> LOWER(email)`)
	if err != nil {
		return rep, mapErr(err)
	}
	if rep.EmailsLowered, err = res.RowsAffected(); err != nil {
		return rep, err
	}

	var rows []struct {
		ID    int64          `db:"id"`
		Specs sql.NullString `db:"specs"`
	}
	if err := tx.SelectContext(ctx, &rows, `SELECT id, specs FROM products`); err != nil {
		return rep, err
	}
	for _, row := range rows {
		canon := domain.ParseSpecs(row.Specs.String)
		v, err := canon.Value()
		if err != nil {
			return rep, err
		}
		if row.Specs.Valid && row.Specs.String == v.(string) {
			continue
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE products SET specs=? WHERE id=?`), v, row.ID); err != nil {
			return rep, err
		}
		rep.SpecsRewritten++
	}
	return rep, tx.Commit()
}
