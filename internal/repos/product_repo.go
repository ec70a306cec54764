package repos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"phonestore/internal/domain"
)

const productCols = `id,title,price,category,description,specs,image_ref,created_at,updated_at`

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

// ProductFilter narrows List. Zero value lists everything.
type ProductFilter struct {
	Category string
	Q        string
}

func (r *ProductRepo) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.Category != "" {
		where = append(where, "LOWER(category) = LOWER(?)")
		args = append(args, f.Category)
	}
	if f.Q != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		like := "%" + strings.ToLower(f.Q) + "%"
		args = append(args, like, like)
	}
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT `+productCols+` FROM products WHERE `+
		strings.Join(where, " AND ")+` ORDER BY id`), args...)
	return out, err
}

func (r *ProductRepo) Get(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT `+productCols+` FROM products WHERE id=?`), id); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// Categories lists the distinct category names in use.
func (r *ProductRepo) Categories(ctx context.Context) ([]string, error) {
	out := []string{}
	err := r.db.SelectContext(ctx, &out, `SELECT DISTINCT category FROM products ORDER BY category`)
	return out, err
}

// Upsert creates or overwrites the product with p.ID. A nil ImageRef keeps
// whatever reference the stored row already has.
func (r *ProductRepo) Upsert(ctx context.Context, p *domain.Product) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO products(id,title,price,category,description,specs,image_ref,created_at,updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		  title=excluded.title,
		  price=excluded.price,
		  category=excluded.category,
		  description=excluded.description,
		  specs=excluded.specs,
		  image_ref=COALESCE(excluded.image_ref, products.image_ref),
		  updated_at=excluded.updated_at`),
		p.ID, p.Title, p.Price, p.Category, p.Description, p.Specs, p.ImageRef, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

// ProductPatch holds the fields of a partial update; nil means unchanged.
type ProductPatch struct {
	Title       *string
	Price       *float64
	Category    *string
	Description *string
	Specs       domain.Specs
	ImageRef    *string
}

func (r *ProductRepo) Update(ctx context.Context, id int64, p ProductPatch, now int64) error {
	var specs any
	if p.Specs != nil {
		specs = p.Specs
	}
	return rowsOrNotFound(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE products SET
		  title=COALESCE(?, title),
		  price=COALESCE(?, price),
		  category=COALESCE(?, category),
		  description=COALESCE(?, description),
		  specs=COALESCE(?, specs),
		  image_ref=COALESCE(?, image_ref),
		  updated_at=?
		WHERE id=?`),
		p.Title, p.Price, p.Category, p.Description, specs, p.ImageRef, now, id))
}

// Delete removes the product and returns its image reference, if any.
// Deleting a missing product is not an error.
func (r *ProductRepo) Delete(ctx context.Context, id int64) (*string, error) {
	var ref *string
	err := r.db.GetContext(ctx, &ref, r.db.Rebind(`DELETE FROM products WHERE id=? RETURNING image_ref`), id)
	if err != nil {
		if err = mapErr(err); err == domain.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return ref, nil
}
