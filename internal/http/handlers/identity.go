package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"phonestore/internal/domain"
	applog "phonestore/internal/log"
	"phonestore/internal/services"
)

const (
	SIDCookie   = "sid"
	identityKey = "identity"
	userKey     = "user"
)

// Identity resolves every request to a shopper identity, in order: a
// bearer token still bound to its session, a sid cookie bound to an
// account, a bare sid cookie, or a freshly minted sid.
func Identity(auth *services.AuthService, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if tok, found := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "); found && tok != "" {
			u, sid, err := auth.TokenUser(ctx, strings.TrimSpace(tok))
			if err == nil {
				setIdentity(c, domain.AccountIdentity(u.ID, sid), u)
				return c.Next()
			}
			applog.Security(c, "auth.token.invalid", nil)
		}

		sid := c.Cookies(SIDCookie)
		if sid != "" {
			if u, err := auth.CurrentUser(ctx, sid); err == nil {
				setIdentity(c, domain.AccountIdentity(u.ID, sid), u)
				return c.Next()
			}
			setIdentity(c, domain.Anonymous(sid), nil)
			return c.Next()
		}

		sid = uuid.NewString()
		setSIDCookie(c, sid, ttl)
		setIdentity(c, domain.Anonymous(sid), nil)
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, who domain.ShopperIdentity, u *domain.Account) {
	c.Locals(identityKey, who)
	if u != nil {
		c.Locals(userKey, u)
		c.Locals(applog.UserIDKey, u.ID)
	}
}

func setSIDCookie(c *fiber.Ctx, sid string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     SIDCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func clearSIDCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     SIDCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(-time.Hour),
	})
}

// ShopperOf returns the identity resolved for this request.
func ShopperOf(c *fiber.Ctx) domain.ShopperIdentity {
	who, _ := c.Locals(identityKey).(domain.ShopperIdentity)
	return who
}

// UserOf returns the logged in account, or nil.
func UserOf(c *fiber.Ctx) *domain.Account {
	u, _ := c.Locals(userKey).(*domain.Account)
	return u
}
