package repos

import (
	"context"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"phonestore/internal/domain"
)

// SeedDemo inserts demo accounts and a small phone catalog. It is
// idempotent and never overwrites existing rows.
func SeedDemo(ctx context.Context, db *sqlx.DB) error {
	now := time.Now().Unix()
	type u struct {
		ID, Email, Name, Pass string
		Role                  domain.Role
	}
	users := []u{
		{"u-alice", "alice@phonestore.test", "Alice", "Passw0rd!", domain.RoleUser},
		{"u-bob", "bob@phonestore.test", "Bob", "Passw0rd!", domain.RoleUser},
		{"u-admin", "admin@phonestore.test", "Admin", "Passw0rd!", domain.RoleAdmin},
	}
	products := []domain.Product{
		{ID: 1, Title: "Galaxy A15", Price: 199.99, Category: "Samsung", Description: "Entry level 6.5\" phone",
			Specs: domain.Specs{"RAM": "4GB", "Storage": "128GB", "Battery": "5000mAh"}},
		{ID: 3, Title: "Redmi Note 13", Price: 229.00, Category: "Xiaomi", Description: "AMOLED display, 108MP camera",
			Specs: domain.Specs{"RAM": "8GB", "Storage": "256GB"}},
		{ID: 7, Title: "iPhone 12 (refurbished)", Price: 299.99, Category: "Apple", Description: "Grade A refurbished",
			Specs: domain.Specs{"Storage": "64GB", "Screen": "6.1\""}},
		{ID: 12, Title: "Pixel 8", Price: 599.00, Category: "Google", Description: "Tensor G3, 7 years of updates",
			Specs: domain.Specs{"RAM": "8GB", "Storage": "128GB"}},
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	for _, x := range users {
		if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM users WHERE LOWER(email)=LOWER(?)`), x.Email); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		h, err := bcrypt.GenerateFromPassword([]byte(x.Pass), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO users(id,email,name,password_hash,role,created_at)
			VALUES(?,?,?,?,?,?)
			ON CONFLICT(id) DO NOTHING`), x.ID, x.Email, x.Name, string(h), x.Role, now); err != nil {
			return err
		}
	}
	for _, p := range products {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO products(id,title,price,category,description,specs,created_at,updated_at)
			VALUES(?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO NOTHING`), p.ID, p.Title, p.Price, p.Category, p.Description, p.Specs, now, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Println("[seed] demo accounts and products ensured")
	return nil
}
