package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"phonestore/internal/config"
	"phonestore/internal/http/handlers"
)

func TestRegisterLoginCheckAuth(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	c := ta.client(t)

	r := c.do("GET", "/api/check-auth", nil)
	expectStatus(t, r, http.StatusOK)
	if r.body["authenticated"] != false {
		t.Fatalf("anonymous shopper reported as authenticated: %s", r.raw)
	}
	if c.sid == "" {
		t.Fatal("first request should mint a sid cookie")
	}

	r = c.do("POST", "/api/register", map[string]string{"name": "Dana", "email": "Dana@Example.com", "password": "s3cret!"})
	expectStatus(t, r, http.StatusOK)
	if r.body["success"] != true {
		t.Fatalf("register: %s", r.raw)
	}

	r = c.do("POST", "/api/register", map[string]string{"name": "Dana 2", "email": "dana@EXAMPLE.com", "password": "x"})
	expectStatus(t, r, http.StatusBadRequest)
	if r.body["success"] != false || r.body["message"] == "" {
		t.Fatalf("duplicate register should fail with a message: %s", r.raw)
	}

	r = c.do("POST", "/api/register", map[string]string{"name": "", "email": "e@x.io", "password": "x"})
	expectStatus(t, r, http.StatusBadRequest)

	r = c.login("dana@example.com", "s3cret!")
	if r.body["name"] != "Dana" || r.body["role"] != "user" {
		t.Fatalf("login payload: %s", r.raw)
	}
	token, _ := r.body["token"].(string)
	if token == "" {
		t.Fatal("login should return a bearer token")
	}

	r = c.do("GET", "/api/check-auth", nil)
	if r.body["authenticated"] != true || r.body["email"] != "dana@example.com" {
		t.Fatalf("check-auth via cookie: %s", r.raw)
	}

	// The bearer token works without the cookie.
	api := ta.client(t)
	api.token = token
	r = api.do("GET", "/api/check-auth", nil)
	if r.body["authenticated"] != true || r.body["name"] != "Dana" {
		t.Fatalf("check-auth via bearer: %s", r.raw)
	}

	r = c.do("POST", "/api/logout", nil)
	expectStatus(t, r, http.StatusOK)
	r = api.do("GET", "/api/check-auth", nil)
	if r.body["authenticated"] != false {
		t.Fatalf("token should be revoked by logout: %s", r.raw)
	}
}

func TestLoginFailureIsLoggedAndThrottled(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, func(cfg *config.Config) { cfg.LoginRateMax = 3 })
	c := ta.client(t)

	var r result
	logs := captureLogs(t, func() {
		r = c.do("POST", "/api/login", map[string]string{"email": "alice@phonestore.test", "password": "wrong"})
	})
	expectStatus(t, r, http.StatusUnauthorized)
	if r.body["success"] != false {
		t.Fatalf("failure body: %s", r.raw)
	}
	e := findLog(logs, "auth.login.fail")
	if e == nil || e.Kind != "security" || e.Fields["email"] != "alice@phonestore.test" {
		t.Fatalf("auth.login.fail not logged as a security event: %+v", logs)
	}

	logs = captureLogs(t, func() {
		r = c.login("ALICE@phonestore.test", demoPassword)
	})
	if e := findLog(logs, "auth.login.success"); e == nil || e.Kind != "audit" {
		t.Fatalf("auth.login.success not audited: %+v", logs)
	}

	c.do("POST", "/api/login", map[string]string{"email": "alice@phonestore.test", "password": "wrong"})
	logs = captureLogs(t, func() {
		r = c.do("POST", "/api/login", map[string]string{"email": "alice@phonestore.test", "password": "wrong"})
	})
	expectStatus(t, r, http.StatusTooManyRequests)
	if findLog(logs, "rate.login.hit") == nil {
		t.Fatal("throttled login not logged")
	}
}

func TestLoginPageSanitizesNext(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	c := ta.client(t)

	r := c.do("GET", "/login?next=/cart", nil)
	expectStatus(t, r, http.StatusOK)
	if !strings.Contains(string(r.raw), `data-next="/cart"`) {
		t.Fatalf("next path missing: %s", r.raw)
	}
	r = c.do("GET", "/login?next=https://evil.example/", nil)
	if strings.Contains(string(r.raw), "evil.example") {
		t.Fatal("absolute next url must not be echoed")
	}
}

func TestLoginRotatesSessionID(t *testing.T) {
	ta := newTestApp(t, handlers.Collaborators{}, nil)
	const planted = "attacker-chosen-sid"
	victim, attacker := ta.client(t), ta.client(t)
	victim.sid, attacker.sid = planted, planted

	victim.login("alice@phonestore.test", demoPassword)
	if victim.sid == planted || victim.sid == "" {
		t.Fatalf("login kept the pre-login sid %q", victim.sid)
	}
	if r := victim.do("GET", "/api/check-auth", nil); r.body["authenticated"] != true {
		t.Fatalf("victim not signed in: %s", r.raw)
	}
	r := attacker.do("GET", "/api/check-auth", nil)
	expectStatus(t, r, http.StatusOK)
	if r.body["authenticated"] != false {
		t.Fatalf("pre-login sid became authenticated: %s", r.raw)
	}
}
