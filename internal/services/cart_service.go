package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"phonestore/internal/domain"
	"phonestore/internal/repos"
)

type CartService struct {
	Carts    *repos.CartRepo
	Products *repos.ProductRepo
	// AllowAnonymous lets shoppers without an account keep a cart.
	AllowAnonymous bool
	// MaxLineQty caps one line's quantity; 0 means no cap.
	MaxLineQty int
	Now        func() time.Time
}

type CartView struct {
	Items []domain.CartLine `json:"cart_items"`
	Total float64           `json:"total"`
	// Count is the number of distinct lines, not units.
	Count int `json:"count"`
}

func (s *CartService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CartService) owner(who domain.ShopperIdentity) (string, bool) {
	if who.IsZero() || (!who.Authenticated() && !s.AllowAnonymous) {
		return "", false
	}
	return who.Key(), true
}

func (s *CartService) checkQty(qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}
	if s.MaxLineQty > 0 && qty > s.MaxLineQty {
		return fmt.Errorf("%w: at most %d per item", domain.ErrValidation, s.MaxLineQty)
	}
	return nil
}

// Add puts qty units of the product in the cart, snapshotting title, price
// and image on the first add. It returns the number of distinct lines.
func (s *CartService) Add(ctx context.Context, who domain.ShopperIdentity, productID int64, qty int) (int, error) {
	owner, ok := s.owner(who)
	if !ok {
		return 0, domain.ErrUnauthenticated
	}
	if err := s.checkQty(qty); err != nil {
		return 0, err
	}
	p, err := s.Products.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	line := domain.CartLine{
		Owner:     owner,
		ProductID: p.ID,
		Quantity:  qty,
		Title:     p.Title,
		Price:     p.Price,
		AddedAt:   s.now().Unix(),
	}
	if url := p.WithImageURL().ImageURL; url != "" {
		line.ImageURL = &url
	}
	if err := s.Carts.Add(ctx, line, s.MaxLineQty); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return 0, fmt.Errorf("%w: at most %d per item", domain.ErrValidation, s.MaxLineQty)
		}
		return 0, err
	}
	return s.Carts.Count(ctx, owner)
}

// Get never fails for callers without a cart identity; they see an empty
// cart.
func (s *CartService) Get(ctx context.Context, who domain.ShopperIdentity) (CartView, error) {
	owner, ok := s.owner(who)
	if !ok {
		return CartView{Items: []domain.CartLine{}}, nil
	}
	return s.view(ctx, owner)
}

func (s *CartService) view(ctx context.Context, owner string) (CartView, error) {
	lines, err := s.Carts.Lines(ctx, owner)
	if err != nil {
		return CartView{}, err
	}
	return CartView{Items: lines, Total: Total(lines), Count: len(lines)}, nil
}

// Total sums price snapshots times quantity, rounded to cents.
func Total(lines []domain.CartLine) float64 {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum.Round(2).InexactFloat64()
}

// Update sets the quantity of an existing line.
func (s *CartService) Update(ctx context.Context, who domain.ShopperIdentity, productID int64, qty int) (CartView, error) {
	owner, ok := s.owner(who)
	if !ok {
		return CartView{}, domain.ErrUnauthenticated
	}
	if err := s.checkQty(qty); err != nil {
		return CartView{}, err
	}
	if err := s.Carts.SetQty(ctx, owner, productID, qty, s.now().Unix()); err != nil {
		return CartView{}, err
	}
	return s.view(ctx, owner)
}

func (s *CartService) Remove(ctx context.Context, who domain.ShopperIdentity, productID int64) (CartView, error) {
	owner, ok := s.owner(who)
	if !ok {
		return CartView{}, domain.ErrUnauthenticated
	}
	if err := s.Carts.Remove(ctx, owner, productID); err != nil {
		return CartView{}, err
	}
	return s.view(ctx, owner)
}

func (s *CartService) Clear(ctx context.Context, who domain.ShopperIdentity) (CartView, error) {
	owner, ok := s.owner(who)
	if !ok {
		return CartView{}, domain.ErrUnauthenticated
	}
	if err := s.Carts.Clear(ctx, owner); err != nil {
		return CartView{}, err
	}
	return s.view(ctx, owner)
}
