package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"phonestore/internal/domain"
	applog "phonestore/internal/log"
)

func render(c *fiber.Ctx, tmpl string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	if u := UserOf(c); u != nil {
		data["User"] = u
	}
	return c.Render(tmpl, data)
}

// notFound renders the not-found page. The payload slot is always present
// and nil so templates can branch on it.
func notFound(c *fiber.Ctx, msg string) error {
	c.Status(fiber.StatusNotFound)
	return render(c, "notfound", fiber.Map{"Message": msg, "Product": nil})
}

func ok(c *fiber.Ctx, m fiber.Map) error {
	if m == nil {
		m = fiber.Map{}
	}
	m["success"] = true
	return c.JSON(m)
}

var taxonomy = []struct {
	err    error
	status int
}{
	{domain.ErrValidation, fiber.StatusBadRequest},
	{domain.ErrConflict, fiber.StatusBadRequest},
	{domain.ErrInvalidCode, fiber.StatusBadRequest},
	{domain.ErrInvalidCredentials, fiber.StatusUnauthorized},
	{domain.ErrUnauthenticated, fiber.StatusUnauthorized},
	{domain.ErrUnauthorized, fiber.StatusUnauthorized},
	{domain.ErrNotFound, fiber.StatusNotFound},
}

// fail writes {success:false, message} for err. Anything outside the
// taxonomy is logged and reported as a generic 500.
func fail(c *fiber.Ctx, err error) error {
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return c.Status(t.status).JSON(fiber.Map{"success": false, "message": message(err, t.err)})
		}
	}
	applog.Error(c, "request.fail", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "Something went wrong. Please try again.",
	})
}

// message strips the sentinel prefix from a wrapped error so callers see
// "price must be numeric" rather than "validation error: price must be numeric".
func message(err, sentinel error) string {
	s := err.Error()
	if rest, found := strings.CutPrefix(s, sentinel.Error()+": "); found && rest != "" {
		return rest
	}
	return s
}

// ErrorHandler catches errors escaping handlers: JSON for /api, the
// not-found page otherwise.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= 500 {
		applog.Error(c, "server.error", err, nil)
	}
	if strings.HasPrefix(c.Path(), "/api/") {
		msg := "Something went wrong. Please try again."
		if fe != nil && code < 500 {
			msg = fe.Message
		}
		return c.Status(code).JSON(fiber.Map{"success": false, "message": msg})
	}
	c.Status(code)
	if rerr := render(c, "notfound", fiber.Map{"Message": "Something went wrong. Please try again.", "Product": nil}); rerr != nil {
		return c.SendString("Something went wrong. Please try again.")
	}
	return nil
}
