package main

import (
	"context"

	"github.com/jmoiron/sqlx"

	"phonestore/internal/blobs"
	"phonestore/internal/config"
	"phonestore/internal/repos"
	"phonestore/internal/services"
)

// env holds the services the commands work through.
type env struct {
	db      *sqlx.DB
	auth    *services.AuthService
	catalog *services.CatalogService
}

func openEnv(ctx context.Context, cfg config.Config) (*env, error) {
	db, err := repos.OpenDB(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	store, err := blobs.New(ctx, cfg.Blob, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &env{
		db: db,
		auth: &services.AuthService{
			Users:      repos.NewUserRepo(db),
			Carts:      repos.NewCartRepo(db),
			Secret:     []byte(cfg.SessionSecret),
			SessionTTL: cfg.SessionTTL,
			MaxLineQty: cfg.CartMaxLineQty,
		},
		catalog: &services.CatalogService{Products: repos.NewProductRepo(db), Blobs: store},
	}, nil
}

func (e *env) Close() error { return e.db.Close() }
