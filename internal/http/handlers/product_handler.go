package handlers

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/zeebo/blake3"

	"phonestore/internal/domain"
	"phonestore/internal/log"
	"phonestore/internal/repos"
	"phonestore/internal/services"
	"phonestore/internal/validate"
)

const maxImageBytes = 5 << 20

type ProductHandler struct {
	Catalog *services.CatalogService
}

func productID(c *fiber.Ctx) (int64, error) {
	id, valid := validate.ProductID(c.Params("id"))
	if !valid {
		return 0, fmt.Errorf("%w: invalid product id", domain.ErrNotFound)
	}
	return id, nil
}

// GET /api/products
func (h *ProductHandler) List(c *fiber.Ctx) error {
	ps, err := h.Catalog.List(c.UserContext(), repos.ProductFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Q:        strings.TrimSpace(c.Query("q")),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ps)
}

// GET /api/products/:id
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Catalog.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

// POST /api/products
func (h *ProductHandler) Create(c *fiber.Ctx) error {
	in, img, err := parseProduct(c)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Catalog.Create(c.UserContext(), in, img)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			log.Security(c, "validation.fail", map[string]any{"reason": message(err, domain.ErrValidation)})
		}
		return fail(c, err)
	}
	log.Audit(c, "product.create", map[string]any{"product": p.ID, "image": img != nil})
	return ok(c, fiber.Map{"product": p})
}

// PUT /api/products/:id
func (h *ProductHandler) Update(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return fail(c, err)
	}
	in, img, err := parseProduct(c)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Catalog.Update(c.UserContext(), id, in, img)
	if err != nil {
		return fail(c, err)
	}
	log.Audit(c, "product.update", map[string]any{"product": id, "image": img != nil})
	return ok(c, fiber.Map{"product": p})
}

// DELETE /api/products/:id
func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Catalog.Delete(c.UserContext(), id); err != nil {
		return fail(c, err)
	}
	log.Audit(c, "product.delete", map[string]any{"product": id})
	return ok(c, fiber.Map{"message": "Product deleted"})
}

// POST /api/products/import
func (h *ProductHandler) Import(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, fmt.Errorf("%w: upload an .xlsx file as \"file\"", domain.ErrValidation))
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, err)
	}
	defer f.Close()
	res, err := h.Catalog.Import(c.UserContext(), f)
	if err != nil {
		return fail(c, err)
	}
	log.Audit(c, "product.import", map[string]any{"imported": res.Imported, "errors": len(res.Errors)})
	return ok(c, fiber.Map{"imported": res.Imported, "errors": res.Errors})
}

// GET /api/products/:id/image
func (h *ProductHandler) Image(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return fail(c, err)
	}
	b, err := h.Catalog.Image(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	sum := blake3.Sum256(b.Data)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	c.Set(fiber.HeaderETag, etag)
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}
	c.Set(fiber.HeaderContentType, b.Mime)
	return c.Send(b.Data)
}

// GET /product/:id
func (h *ProductHandler) Detail(c *fiber.Ctx) error {
	id, valid := validate.ProductID(c.Params("id"))
	if !valid {
		log.Security(c, "validation.fail", map[string]any{"field": "product"})
		return notFound(c, "This item is no longer available")
	}
	p, err := h.Catalog.Get(c.UserContext(), id)
	if err != nil {
		return notFound(c, "This item is no longer available")
	}
	return render(c, "product", fiber.Map{"Product": p})
}

// parseProduct reads product fields from a JSON body or a (multipart)
// form. Absent fields stay nil so updates only touch what was sent.
func parseProduct(c *fiber.Ctx) (services.ProductInput, *services.ImageUpload, error) {
	var in services.ProductInput
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		raw := map[string]any{}
		dec := json.NewDecoder(bytes.NewReader(c.Body()))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return in, nil, fmt.Errorf("%w: malformed JSON body", domain.ErrValidation)
		}
		in.ID = jsonText(raw, "id")
		in.Title = jsonText(raw, "title")
		in.Price = jsonText(raw, "price")
		in.Category = jsonText(raw, "category")
		in.Description = jsonText(raw, "description")
		if v, found := raw["specs"]; found && v != nil {
			in.Specs = v
		}
		return in, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		// Plain url-encoded form.
		args := c.Request().PostArgs()
		field := func(k string) *string {
			if !args.Has(k) {
				return nil
			}
			v := string(args.Peek(k))
			return &v
		}
		in.ID, in.Title, in.Price = field("id"), field("title"), field("price")
		in.Category, in.Description = field("category"), field("description")
		if s := field("specs"); s != nil {
			in.Specs = *s
		}
		return in, nil, nil
	}
	field := func(k string) *string {
		vs, found := form.Value[k]
		if !found || len(vs) == 0 {
			return nil
		}
		return &vs[0]
	}
	in.ID, in.Title, in.Price = field("id"), field("title"), field("price")
	in.Category, in.Description = field("category"), field("description")
	if s := field("specs"); s != nil {
		in.Specs = *s
	}
	var img *services.ImageUpload
	if files := form.File["imageFile"]; len(files) > 0 {
		img, err = readImage(files[0])
		if err != nil {
			return in, nil, err
		}
	}
	return in, img, nil
}

func jsonText(raw map[string]any, key string) *string {
	v, found := raw[key]
	if !found || v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

func readImage(fh *multipart.FileHeader) (*services.ImageUpload, error) {
	if fh.Size > maxImageBytes {
		return nil, fmt.Errorf("%w: image is larger than %d MB", domain.ErrValidation, maxImageBytes>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: imageFile must be an image", domain.ErrValidation)
	}
	return &services.ImageUpload{Data: data, Mime: mime}, nil
}
