package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"phonestore/internal/domain"
	"phonestore/internal/services"
	"phonestore/internal/validate"
)

type CartHandler struct {
	Cart *services.CartService
}

type cartRequest struct {
	ProductID json.Number `json:"product_id" form:"product_id"`
	Quantity  json.Number `json:"quantity" form:"quantity"`
}

// parse reads product_id and, when wantQty, quantity. A missing quantity
// defaults to defQty; 0 means it is required.
func (h *CartHandler) parse(c *fiber.Ctx, wantQty bool, defQty int) (int64, int, error) {
	var in cartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return 0, 0, fmt.Errorf("%w: malformed request body", domain.ErrValidation)
		}
	}
	pid, valid := validate.ProductID(in.ProductID.String())
	if !valid {
		return 0, 0, fmt.Errorf("%w: product_id is required", domain.ErrValidation)
	}
	if !wantQty {
		return pid, 0, nil
	}
	if in.Quantity == "" {
		if defQty == 0 {
			return 0, 0, fmt.Errorf("%w: quantity is required", domain.ErrValidation)
		}
		return pid, defQty, nil
	}
	qty, valid := validate.Qty(in.Quantity.String())
	if !valid {
		return 0, 0, fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}
	return pid, qty, nil
}

func cartJSON(cv services.CartView, msg string) fiber.Map {
	return fiber.Map{
		"message":    msg,
		"cart_items": cv.Items,
		"total":      cv.Total,
		"count":      cv.Count,
	}
}

// POST /api/cart/add
func (h *CartHandler) Add(c *fiber.Ctx) error {
	pid, qty, err := h.parse(c, true, 1)
	if err != nil {
		return fail(c, err)
	}
	n, err := h.Cart.Add(c.UserContext(), ShopperOf(c), pid, qty)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"message": "Added to cart", "cart_count": n})
}

// GET /api/cart/get
func (h *CartHandler) Get(c *fiber.Ctx) error {
	cv, err := h.Cart.Get(c.UserContext(), ShopperOf(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, cartJSON(cv, ""))
}

// POST /api/cart/update
func (h *CartHandler) Update(c *fiber.Ctx) error {
	pid, qty, err := h.parse(c, true, 0)
	if err != nil {
		return fail(c, err)
	}
	cv, err := h.Cart.Update(c.UserContext(), ShopperOf(c), pid, qty)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, cartJSON(cv, "Quantity updated"))
}

// POST /api/cart/remove
func (h *CartHandler) Remove(c *fiber.Ctx) error {
	pid, _, err := h.parse(c, false, 0)
	if err != nil {
		return fail(c, err)
	}
	cv, err := h.Cart.Remove(c.UserContext(), ShopperOf(c), pid)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, cartJSON(cv, "Item removed from cart"))
}

// POST /api/cart/clear
func (h *CartHandler) Clear(c *fiber.Ctx) error {
	cv, err := h.Cart.Clear(c.UserContext(), ShopperOf(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, cartJSON(cv, "Cart cleared"))
}

// GET /cart
func (h *CartHandler) View(c *fiber.Ctx) error {
	cv, err := h.Cart.Get(c.UserContext(), ShopperOf(c))
	if err != nil {
		return err
	}
	return render(c, "cart", fiber.Map{"Cart": cv})
}
