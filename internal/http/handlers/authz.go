package handlers

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	applog "phonestore/internal/log"
)

// RequireUser lets logged in shoppers through. API callers get a 401,
// pages redirect to the login page and come back afterwards.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserOf(c) != nil {
			return c.Next()
		}
		if strings.HasPrefix(c.Path(), "/api/") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Please log in first"})
		}
		return c.Redirect("/login?next=" + url.QueryEscape(c.OriginalURL()))
	}
}

func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := UserOf(c)
		if !u.IsAdmin() {
			applog.Security(c, "access.denied.admin", nil)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Admin access required"})
		}
		return c.Next()
	}
}
