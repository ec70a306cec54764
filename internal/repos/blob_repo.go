package repos

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"phonestore/internal/domain"
)

// BlobRepo keeps binary assets in the database itself, next to the rows
// that reference them.
type BlobRepo struct{ db *sqlx.DB }

func NewBlobRepo(db *sqlx.DB) *BlobRepo { return &BlobRepo{db: db} }

func (r *BlobRepo) Put(ctx context.Context, data []byte, mime string) (string, error) {
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	ref := uuid.NewString()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO blobs(id,mime,size,data,created_at) VALUES(?,?,?,?,?)`),
		ref, mime, len(data), data, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (r *BlobRepo) Get(ctx context.Context, ref string) (*domain.Blob, error) {
	var row struct {
		Mime string `db:"mime"`
		Data []byte `db:"data"`
	}
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT mime,data FROM blobs WHERE id=?`), ref); err != nil {
		return nil, mapErr(err)
	}
	return &domain.Blob{Ref: ref, Mime: row.Mime, Data: row.Data}, nil
}

func (r *BlobRepo) Delete(ctx context.Context, ref string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM blobs WHERE id=?`), ref)
	return err
}
