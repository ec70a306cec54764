package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"phonestore/internal/domain"
)

type ConversationRepo struct{ db *sqlx.DB }

func NewConversationRepo(db *sqlx.DB) *ConversationRepo { return &ConversationRepo{db: db} }

func (r *ConversationRepo) History(ctx context.Context, key string) ([]domain.Turn, error) {
	out := []domain.Turn{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT role,text FROM conversation_turns WHERE session_key=? ORDER BY seq`), key)
	return out, err
}

// Append adds turns after the current tail of the conversation and marks
// it as recently used.
func (r *ConversationRepo) Append(ctx context.Context, key string, now int64, turns ...domain.Turn) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO conversations(session_key,updated_at) VALUES(?,?)
		ON CONFLICT(session_key) DO UPDATE SET updated_at=excluded.updated_at`), key, now); err != nil {
		return err
	}
	var seq int64
	if err := tx.GetContext(ctx, &seq, tx.Rebind(`
		SELECT COALESCE(MAX(seq),0) FROM conversation_turns WHERE session_key=?`), key); err != nil {
		return err
	}
	for _, t := range turns {
		seq++
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO conversation_turns(session_key,seq,role,text,created_at) VALUES(?,?,?,?,?)`),
			key, seq, t.Role, t.Text, now); err != nil {
			return mapErr(err)
		}
	}
	return tx.Commit()
}

// Evict drops conversations idle since before cutoff and returns how many
// were removed.
func (r *ConversationRepo) Evict(ctx context.Context, cutoff int64) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM conversation_turns
		WHERE session_key IN (SELECT session_key FROM conversations WHERE updated_at < ?)`), cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM conversations WHERE updated_at < ?`), cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
