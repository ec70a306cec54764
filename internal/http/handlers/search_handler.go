package handlers

import (
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"phonestore/internal/log"
	"phonestore/internal/repos"
	"phonestore/internal/services"
)

type SearchHandler struct {
	Catalog *services.CatalogService
}

// GET /search?q=
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return render(c, "index", fiber.Map{"Q": "", "Products": []any{}})
	}
	if utf8.RuneCountInString(q) > 80 {
		log.Security(c, "validation.fail", map[string]any{"field": "q"})
		c.Status(fiber.StatusBadRequest)
		return render(c, "index", fiber.Map{"Q": "", "Products": []any{}, "Err": "Search terms are too long"})
	}
	products, err := h.Catalog.List(c.UserContext(), repos.ProductFilter{Q: q})
	if err != nil {
		log.Error(c, "search.error", err, nil)
		return c.Status(fiber.StatusInternalServerError).Render("notfound", fiber.Map{"Message": "Could not load results. Please retry.", "Product": nil})
	}
	return render(c, "index", fiber.Map{"Q": q, "Products": products})
}
