package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type line struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Kind   string         `json:"kind"`
	Action string         `json:"action"`
	Path   string         `json:"path"`
	UserID string         `json:"user_id"`
	Err    string         `json:"err"`
	Fields map[string]any `json:"fields"`
}

func decode(t *testing.T, buf *bytes.Buffer) []line {
	t.Helper()
	var out []line
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var e line
		if err := json.Unmarshal([]byte(l), &e); err != nil {
			t.Fatalf("not json: %q", l)
		}
		out = append(out, e)
	}
	return out
}

func TestWrite_WithoutContext(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Error(nil, "mail.send.fail", errors.New("dial tcp: refused"), map[string]any{"to": "a@b.c"})

	got := decode(t, &buf)
	if len(got) != 1 {
		t.Fatalf("want 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.Level != "ERROR" || e.Kind != "error" || e.Action != "mail.send.fail" || e.Msg != "mail.send.fail" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.Err == "" || e.Fields["to"] != "a@b.c" {
		t.Fatalf("missing err/fields: %+v", e)
	}
}

func TestWrite_RequestScoped(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	app := fiber.New()
	app.Get("/x", func(c *fiber.Ctx) error {
		c.Locals(UserIDKey, "u-1")
		Audit(c, "thing.done", nil)
		Security(c, "thing.denied", nil)
		return c.SendStatus(fiber.StatusNoContent)
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	got := decode(t, &buf)
	if len(got) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got))
	}
	if got[0].Kind != "audit" || got[0].Path != "/x" || got[0].UserID != "u-1" {
		t.Fatalf("bad audit entry %+v", got[0])
	}
	if got[1].Kind != "security" || got[1].Level != "WARN" {
		t.Fatalf("bad security entry %+v", got[1])
	}
}
