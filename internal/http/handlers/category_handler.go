package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"phonestore/internal/log"
	"phonestore/internal/repos"
	"phonestore/internal/services"
)

type CategoryHandler struct {
	Catalog *services.CatalogService
}

// GET /?category=
func (h *CategoryHandler) Home(c *fiber.Ctx) error {
	cats, err := h.Catalog.Categories(c.UserContext())
	if err != nil {
		log.Error(c, "catalog.categories.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).Render("notfound", fiber.Map{"Message": "Could not load the catalog", "Product": nil})
	}
	current := strings.TrimSpace(c.Query("category"))
	products, err := h.Catalog.List(c.UserContext(), repos.ProductFilter{Category: current})
	if err != nil {
		log.Error(c, "catalog.list.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).Render("notfound", fiber.Map{"Message": "Could not load the catalog", "Product": nil})
	}
	return render(c, "index", fiber.Map{"Categories": cats, "Category": current, "Products": products})
}
