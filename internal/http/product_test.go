package handlers_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"phonestore/internal/http/handlers"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

type multipartBody struct {
	buf   bytes.Buffer
	ctype string
}

func newMultipart(t *testing.T, fields map[string]string, fileField, fileName string, file []byte) *multipartBody {
	t.Helper()
	mb := &multipartBody{}
	w := multipart.NewWriter(&mb.buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(file); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	mb.ctype = w.FormDataContentType()
	return mb
}

func adminClient(t *testing.T, ta *testApp) *client {
	c := ta.client(t)
	c.login("admin@phonestore.test", demoPassword)
	return c
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	c := ta.client(t)
	c.login("alice@phonestore.test", demoPassword)

	var r result
	logs := captureLogs(t, func() {
		r = c.do("POST", "/api/products", map[string]any{"id": 50, "title": "X", "price": 1, "category": "Phones"})
	})
	expectStatus(t, r, http.StatusUnauthorized)
	e := findLog(logs, "access.denied.admin")
	if e == nil || e.Level != "WARN" || e.UserID == "" {
		t.Fatalf("denied admin access not logged: %+v", logs)
	}

	anon := ta.client(t)
	expectStatus(t, anon.do("DELETE", "/api/products/7", nil), http.StatusUnauthorized)
	expectStatus(t, anon.do("GET", "/api/admin/users", nil), http.StatusUnauthorized)
	expectStatus(t, anon.do("GET", "/api/products/7", nil), http.StatusOK)
}

func TestCreateProductRejectsNonNumericPrice(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	admin := adminClient(t, ta)

	r := admin.do("POST", "/api/products", map[string]any{"id": 42, "title": "Nokia 3310", "price": "abc", "category": "Nokia"})
	expectStatus(t, r, http.StatusBadRequest)
	if r.body["success"] != false || !strings.Contains(r.body["message"].(string), "price") {
		t.Fatalf("body: %s", r.raw)
	}
	expectStatus(t, admin.do("GET", "/api/products/42", nil), http.StatusNotFound)
}

func TestOutOfRangePriceIsRejected(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	admin := adminClient(t, ta)

	r := admin.do("POST", "/api/products", map[string]any{"id": "99", "title": "Overflow", "price": "1e400", "category": "Nokia"})
	expectStatus(t, r, http.StatusBadRequest)
	expectStatus(t, admin.do("GET", "/api/products/99", nil), http.StatusNotFound)

	r = admin.do("PUT", "/api/products/7", map[string]any{"price": "1e400"})
	expectStatus(t, r, http.StatusBadRequest)

	r = admin.do("GET", "/api/products", nil)
	expectStatus(t, r, http.StatusOK)
	shopper := ta.client(t)
	expectStatus(t, shopper.do("POST", "/api/cart/add", map[string]any{"product_id": 7}), http.StatusOK)
	if _, total := cartState(t, shopper); total != 299.99 {
		t.Fatalf("price of product 7 changed: total=%v", total)
	}
}

func TestProductCRUDWithImage(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	admin := adminClient(t, ta)

	form := newMultipart(t, map[string]string{
		"id": "42", "title": "Nokia 3310", "price": "49.90", "category": "Nokia",
		"specs": "Battery: 1000mAh\nWeight: 133g",
	}, "imageFile", "nokia.png", pngBytes)
	r := admin.do("POST", "/api/products", form)
	expectStatus(t, r, http.StatusOK)
	p := r.body["product"].(map[string]any)
	if p["image_url"] != "/api/products/42/image" {
		t.Fatalf("image_url: %v", p)
	}
	if specs := p["specs"].(map[string]any); specs["Battery"] != "1000mAh" {
		t.Fatalf("specs not normalized: %v", p["specs"])
	}

	shopper := ta.client(t)
	img := shopper.do("GET", "/api/products/42/image", nil)
	expectStatus(t, img, http.StatusOK)
	if !bytes.Equal(img.raw, pngBytes) || img.header.Get("Content-Type") != "image/png" {
		t.Fatalf("image bytes/type mismatch: %q", img.header.Get("Content-Type"))
	}
	if cc := img.header.Get("Cache-Control"); !strings.Contains(cc, "max-age=86400") {
		t.Fatalf("cache-control %q", cc)
	}
	etag := img.header.Get("ETag")
	if etag == "" {
		t.Fatal("missing etag")
	}
	req := httptest.NewRequest("GET", "/api/products/42/image", nil)
	req.Header.Set("If-None-Match", etag)
	expectStatus(t, shopper.send(req), http.StatusNotModified)

	// JSON update keeps the image.
	r = admin.do("PUT", "/api/products/42", map[string]any{"price": 39.5, "specs": map[string]any{"Battery": "1200mAh"}})
	expectStatus(t, r, http.StatusOK)
	p = r.body["product"].(map[string]any)
	if p["price"] != 39.5 || p["title"] != "Nokia 3310" || p["image_url"] == nil {
		t.Fatalf("after update: %v", p)
	}
	again := shopper.do("GET", "/api/products/42/image", nil)
	if again.header.Get("ETag") != etag {
		t.Fatal("image changed without a new upload")
	}

	expectStatus(t, admin.do("PUT", "/api/products/404", map[string]any{"title": "x"}), http.StatusNotFound)

	expectStatus(t, admin.do("DELETE", "/api/products/42", nil), http.StatusOK)
	expectStatus(t, admin.do("DELETE", "/api/products/42", nil), http.StatusOK)
	expectStatus(t, shopper.do("GET", "/api/products/42/image", nil), http.StatusNotFound)
	expectStatus(t, shopper.do("GET", "/api/products/42", nil), http.StatusNotFound)
}

func TestUploadRejectsNonImage(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	admin := adminClient(t, ta)
	form := newMultipart(t, map[string]string{"id": "43", "title": "X", "price": "1", "category": "Nokia"},
		"imageFile", "x.png", []byte("#!/bin/sh\necho hi\n"))
	expectStatus(t, admin.do("POST", "/api/products", form), http.StatusBadRequest)
}

func TestProductListFilters(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	c := ta.client(t)

	r := c.do("GET", "/api/products?category=Apple", nil)
	expectStatus(t, r, http.StatusOK)
	var list []map[string]any
	if err := jsonUnmarshal(r.raw, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0]["id"] != 7.0 {
		t.Fatalf("category filter: %s", r.raw)
	}
}

func TestImportWorkbook(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	admin := adminClient(t, ta)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"id", "title", "price", "category", "specs"},
		{100, "Moto G", 149, "Motorola", "RAM: 4GB"},
		{101, "Bad", "n/a", "Motorola", ""},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	var r result
	logs := captureLogs(t, func() {
		r = admin.do("POST", "/api/products/import", newMultipart(t, nil, "file", "catalog.xlsx", buf.Bytes()))
	})
	expectStatus(t, r, http.StatusOK)
	if r.body["imported"] != 1.0 {
		t.Fatalf("import: %s", r.raw)
	}
	if errs, _ := r.body["errors"].([]any); len(errs) != 1 {
		t.Fatalf("expected one row error: %s", r.raw)
	}
	if findLog(logs, "product.import") == nil {
		t.Fatal("import not audited")
	}
	expectStatus(t, admin.do("GET", "/api/products/100", nil), http.StatusOK)
}
