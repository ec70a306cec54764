package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"phonestore/internal/blobs"
	"phonestore/internal/domain"
	applog "phonestore/internal/log"
	"phonestore/internal/repos"
	"phonestore/internal/validate"
)

type CatalogService struct {
	Products *repos.ProductRepo
	Blobs    blobs.Store
	Now      func() time.Time
}

// ProductInput carries admin supplied fields as raw text. Nil means the
// field was not sent. Specs may be a mapping, JSON text or "key: value"
// lines.
type ProductInput struct {
	ID          *string
	Title       *string
	Price       *string
	Category    *string
	Description *string
	Specs       any
}

type ImageUpload struct {
	Data []byte
	Mime string
}

func (s *CatalogService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CatalogService) List(ctx context.Context, f repos.ProductFilter) ([]domain.Product, error) {
	ps, err := s.Products.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range ps {
		ps[i] = ps[i].WithImageURL()
	}
	return ps, nil
}

func (s *CatalogService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.Products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := p.WithImageURL()
	return &out, nil
}

func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	return s.Products.Categories(ctx)
}

func blank(p *string) bool { return p == nil || strings.TrimSpace(*p) == "" }

// maxPrice bounds admin-supplied prices so every stored price stays a
// finite float that JSON and decimal arithmetic accept.
var maxPrice = decimal.NewFromInt(1_000_000_000)

func parsePrice(raw string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: price must be numeric", domain.ErrValidation)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
	}
	if d.GreaterThan(maxPrice) {
		return 0, fmt.Errorf("%w: price must be at most %s", domain.ErrValidation, maxPrice)
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: price must be a finite number", domain.ErrValidation)
	}
	return f, nil
}

// Create upserts by id. Re-creating an existing id overwrites its fields
// and keeps its image unless a new one is supplied.
func (s *CatalogService) Create(ctx context.Context, in ProductInput, img *ImageUpload) (*domain.Product, error) {
	if blank(in.ID) || blank(in.Title) || blank(in.Price) || blank(in.Category) {
		return nil, fmt.Errorf("%w: id, title, price and category are required", domain.ErrValidation)
	}
	id, ok := validate.ProductID(*in.ID)
	if !ok {
		return nil, fmt.Errorf("%w: id must be a positive integer", domain.ErrValidation)
	}
	price, err := parsePrice(*in.Price)
	if err != nil {
		return nil, err
	}
	category, ok := validate.Category(*in.Category)
	if !ok {
		return nil, fmt.Errorf("%w: invalid category", domain.ErrValidation)
	}
	now := s.now().Unix()
	p := &domain.Product{
		ID:        id,
		Title:     strings.TrimSpace(*in.Title),
		Price:     price,
		Category:  category,
		Specs:     domain.ParseSpecs(in.Specs),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}

	var oldRef *string
	if img != nil {
		if prev, err := s.Products.Get(ctx, id); err == nil {
			oldRef = prev.ImageRef
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		ref, err := s.Blobs.Put(ctx, img.Data, img.Mime)
		if err != nil {
			return nil, err
		}
		p.ImageRef = &ref
	}
	if err := s.Products.Upsert(ctx, p); err != nil {
		if p.ImageRef != nil {
			s.dropBlob(ctx, *p.ImageRef)
		}
		return nil, err
	}
	if oldRef != nil {
		s.dropBlob(ctx, *oldRef)
	}
	return s.Get(ctx, id)
}

// Update applies only the supplied fields. A new image replaces the
// reference; otherwise the existing one stays.
func (s *CatalogService) Update(ctx context.Context, id int64, in ProductInput, img *ImageUpload) (*domain.Product, error) {
	prev, err := s.Products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var patch repos.ProductPatch
	if in.Title != nil {
		if blank(in.Title) {
			return nil, fmt.Errorf("%w: title must not be empty", domain.ErrValidation)
		}
		t := strings.TrimSpace(*in.Title)
		patch.Title = &t
	}
	if in.Price != nil {
		price, err := parsePrice(*in.Price)
		if err != nil {
			return nil, err
		}
		patch.Price = &price
	}
	if in.Category != nil {
		c, ok := validate.Category(*in.Category)
		if !ok {
			return nil, fmt.Errorf("%w: invalid category", domain.ErrValidation)
		}
		patch.Category = &c
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		patch.Description = &d
	}
	if in.Specs != nil {
		patch.Specs = domain.ParseSpecs(in.Specs)
	}
	if img != nil {
		ref, err := s.Blobs.Put(ctx, img.Data, img.Mime)
		if err != nil {
			return nil, err
		}
		patch.ImageRef = &ref
	}
	if err := s.Products.Update(ctx, id, patch, s.now().Unix()); err != nil {
		if patch.ImageRef != nil {
			s.dropBlob(ctx, *patch.ImageRef)
		}
		return nil, err
	}
	if patch.ImageRef != nil && prev.ImageRef != nil {
		s.dropBlob(ctx, *prev.ImageRef)
	}
	return s.Get(ctx, id)
}

// Delete is idempotent.
func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	ref, err := s.Products.Delete(ctx, id)
	if err != nil {
		return err
	}
	if ref != nil {
		s.dropBlob(ctx, *ref)
	}
	return nil
}

// Image returns the product's image bytes or domain.ErrNotFound.
func (s *CatalogService) Image(ctx context.Context, id int64) (*domain.Blob, error) {
	p, err := s.Products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ImageRef == nil || *p.ImageRef == "" {
		return nil, domain.ErrNotFound
	}
	return s.Blobs.Get(ctx, *p.ImageRef)
}

func (s *CatalogService) dropBlob(ctx context.Context, ref string) {
	if err := s.Blobs.Delete(ctx, ref); err != nil {
		applog.Error(nil, "blob.delete.fail", err, map[string]any{"ref": ref})
	}
}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	Imported int        `json:"imported"`
	Errors   []RowError `json:"errors"`
}

// Import upserts products from the first sheet of an .xlsx workbook. The
// first row names the columns: id, title, price, category, description,
// specs. Bad rows are reported and skipped.
func (s *CatalogService) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	res := ImportResult{Errors: []RowError{}}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return res, fmt.Errorf("%w: not a spreadsheet: %v", domain.ErrValidation, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return res, fmt.Errorf("%w: workbook has no sheets", domain.ErrValidation)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return res, err
	}
	if len(rows) < 2 {
		return res, nil
	}
	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"id", "title", "price", "category"} {
		if _, ok := col[need]; !ok {
			return res, fmt.Errorf("%w: missing column %q", domain.ErrValidation, need)
		}
	}

	for n, row := range rows[1:] {
		cell := func(name string) *string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return nil
			}
			v := row[i]
			return &v
		}
		in := ProductInput{
			ID:          cell("id"),
			Title:       cell("title"),
			Price:       cell("price"),
			Category:    cell("category"),
			Description: cell("description"),
		}
		if sp := cell("specs"); sp != nil {
			in.Specs = *sp
		}
		if _, err := s.Create(ctx, in, nil); err != nil {
			res.Errors = append(res.Errors, RowError{Row: n + 2, Message: err.Error()})
			continue
		}
		res.Imported++
	}
	return res, nil
}
