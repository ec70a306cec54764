package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"phonestore/internal/config"
	"phonestore/internal/http/handlers"
	applog "phonestore/internal/log"
	"phonestore/internal/repos"
)

const demoPassword = "Passw0rd!"

type testApp struct {
	app  *fiber.App
	deps *handlers.Deps
}

// newTestApp builds the real application over a seeded in-memory store.
func newTestApp(t *testing.T, col handlers.Collaborators, tweak func(*config.Config)) *testApp {
	t.Helper()
	db, err := repos.OpenDB(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := repos.SeedDemo(context.Background(), db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg := config.Default()
	cfg.TemplatesDir = "../../web/templates"
	cfg.SessionSecret = "test-secret"
	cfg.LoginRateMax = 100
	if tweak != nil {
		tweak(&cfg)
	}
	deps := handlers.NewDeps(db, cfg, col)
	return &testApp{app: handlers.NewApp(deps), deps: deps}
}

// client carries the sid cookie and an optional bearer token between
// requests, like a browser would.
type client struct {
	t     *testing.T
	ta    *testApp
	sid   string
	token string
}

func (ta *testApp) client(t *testing.T) *client { return &client{t: t, ta: ta} }

type result struct {
	status int
	header http.Header
	raw    []byte
	body   map[string]any
}

func (c *client) do(method, path string, body any) result {
	c.t.Helper()
	var rd io.Reader
	ctype := ""
	switch b := body.(type) {
	case nil:
	case *multipartBody:
		rd, ctype = bytes.NewReader(b.buf.Bytes()), b.ctype
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rd, ctype = bytes.NewReader(raw), fiber.MIMEApplicationJSON
	}
	req := httptest.NewRequest(method, path, rd)
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	return c.send(req)
}

func (c *client) send(req *http.Request) result {
	c.t.Helper()
	if c.sid != "" {
		req.AddCookie(&http.Cookie{Name: handlers.SIDCookie, Value: c.sid})
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.ta.app.Test(req, -1)
	if err != nil {
		c.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	for _, ck := range resp.Cookies() {
		if ck.Name == handlers.SIDCookie {
			c.sid = ck.Value
		}
	}
	raw, _ := io.ReadAll(resp.Body)
	r := result{status: resp.StatusCode, header: resp.Header, raw: raw}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		_ = json.Unmarshal(raw, &r.body)
	}
	return r
}

func (c *client) login(email, password string) result {
	c.t.Helper()
	r := c.do("POST", "/api/login", map[string]string{"email": email, "password": password})
	if r.status != http.StatusOK {
		c.t.Fatalf("login %s: %d %s", email, r.status, r.raw)
	}
	return r
}

func expectStatus(t *testing.T, r result, want int) {
	t.Helper()
	if r.status != want {
		t.Fatalf("expected %d, got %d: %s", want, r.status, r.raw)
	}
}

type logEntry struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	Kind   string         `json:"kind"`
	UserID string         `json:"user_id"`
	Fields map[string]any `json:"fields"`
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// captureLogs redirects the structured log to a buffer while fn runs.
func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	var lb lockedBuffer
	applog.SetOutput(&lb)
	defer applog.SetOutput(os.Stdout)

	fn()

	var out []logEntry
	for _, line := range strings.Split(strings.TrimSpace(lb.buf.String()), "\n") {
		var e logEntry
		if json.Unmarshal([]byte(line), &e) == nil {
			out = append(out, e)
		}
	}
	return out
}

func findLog(entries []logEntry, action string) *logEntry {
	for i := range entries {
		if entries[i].Action == action {
			return &entries[i]
		}
	}
	return nil
}

func jsonUnmarshal(raw []byte, v any) error { return json.Unmarshal(raw, v) }
