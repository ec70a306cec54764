// Package blobs holds binary assets (product images) outside the catalog
// rows. Callers only ever keep the opaque reference returned by Put.
package blobs

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"phonestore/internal/config"
	"phonestore/internal/domain"
	"phonestore/internal/repos"
)

type Store interface {
	Put(ctx context.Context, data []byte, mime string) (string, error)
	// Get returns domain.ErrNotFound for unknown references.
	Get(ctx context.Context, ref string) (*domain.Blob, error)
	Delete(ctx context.Context, ref string) error
}

// New picks the backend named by cfg.Backend.
func New(ctx context.Context, cfg config.BlobConfig, db *sqlx.DB) (Store, error) {
	switch cfg.Backend {
	case "", "db":
		return repos.NewBlobRepo(db), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
}
