package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"phonestore/internal/domain"
	applog "phonestore/internal/log"
	"phonestore/internal/services"
)

type AdminHandler struct {
	Auth *services.AuthService
}

// GET /api/admin/users
func (h *AdminHandler) Users(c *fiber.Ctx) error {
	users, err := h.Auth.ListAccounts(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{"users": users})
}

// POST /api/admin/users/:id/role
func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	id := c.Params("id")
	var in struct {
		Role string `json:"role" form:"role"`
	}
	if err := c.BodyParser(&in); err != nil {
		return fail(c, fmt.Errorf("%w: role is required", domain.ErrValidation))
	}
	if u := UserOf(c); u != nil && u.ID == id && domain.Role(in.Role) != domain.RoleAdmin {
		return fail(c, fmt.Errorf("%w: admins cannot demote themselves", domain.ErrValidation))
	}
	if err := h.Auth.SetRole(c.UserContext(), id, domain.Role(in.Role)); err != nil {
		return fail(c, err)
	}
	applog.Audit(c, "admin.user.role", map[string]any{"target": id, "role": in.Role})
	return ok(c, fiber.Map{"message": "Role updated"})
}
