package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"phonestore/internal/domain"
	"phonestore/internal/log"
	"phonestore/internal/services"
)

type AuthHandler struct {
	Auth       *services.AuthService
	Recovery   *services.RecoveryService
	SessionTTL time.Duration
}

type credentials struct {
	Name        string `json:"name" form:"name"`
	Email       string `json:"email" form:"email"`
	Password    string `json:"password" form:"password"`
	Code        string `json:"code" form:"code"`
	NewPassword string `json:"newPassword" form:"newPassword"`
}

func parseCredentials(c *fiber.Ctx) (credentials, error) {
	var in credentials
	if len(c.Body()) == 0 {
		return in, nil
	}
	if err := c.BodyParser(&in); err != nil {
		return in, fmt.Errorf("%w: malformed request body", domain.ErrValidation)
	}
	return in, nil
}

// POST /api/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	in, err := parseCredentials(c)
	if err != nil {
		return fail(c, err)
	}
	a, err := h.Auth.Register(c.UserContext(), in.Name, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Security(c, "auth.register.duplicate", map[string]any{"email": strings.ToLower(in.Email)})
		}
		return fail(c, err)
	}
	log.Audit(c, "auth.register", map[string]any{"user": a.ID})
	return ok(c, fiber.Map{"message": "Registration successful. You can now log in."})
}

// POST /api/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	in, err := parseCredentials(c)
	if err != nil {
		return fail(c, err)
	}
	sid := ShopperOf(c).AnonToken
	if sid == "" {
		sid = c.Cookies(SIDCookie)
	}
	sess, err := h.Auth.Login(c.UserContext(), sid, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			log.Security(c, "auth.login.fail", map[string]any{"email": strings.ToLower(in.Email)})
		}
		return fail(c, err)
	}
	c.Locals(log.UserIDKey, sess.Account.ID)
	setSIDCookie(c, sess.SID, h.SessionTTL)
	if sess.MergedLines > 0 {
		log.Audit(c, "cart.merge", map[string]any{"lines": sess.MergedLines, "clamped": sess.ClampedLines})
	}
	log.Audit(c, "auth.login.success", map[string]any{"email": sess.Account.Email})
	return ok(c, fiber.Map{
		"name":  sess.Account.Name,
		"role":  sess.Account.Role,
		"token": sess.Token,
	})
}

// POST /api/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sid := c.Cookies(SIDCookie)
	if sid == "" {
		sid = ShopperOf(c).AnonToken
	}
	if err := h.Auth.Logout(c.UserContext(), sid); err != nil {
		log.Error(c, "auth.logout.fail", err, nil)
	}
	clearSIDCookie(c)
	log.Audit(c, "auth.logout", nil)
	return ok(c, fiber.Map{"message": "Logged out"})
}

// GET /api/check-auth
func (h *AuthHandler) CheckAuth(c *fiber.Ctx) error {
	u := UserOf(c)
	if u == nil {
		return c.JSON(fiber.Map{"authenticated": false})
	}
	return c.JSON(fiber.Map{
		"authenticated": true,
		"name":          u.Name,
		"email":         u.Email,
		"role":          u.Role,
	})
}

// POST /api/forgot-password answers the same way whether or not the email
// is registered.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	in, err := parseCredentials(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Recovery.RequestReset(c.UserContext(), in.Email); err != nil {
		log.Error(c, "auth.reset.request.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Unable to process the request right now. Please try again later.",
		})
	}
	log.Audit(c, "auth.reset.requested", nil)
	return ok(c, fiber.Map{"message": "If that email is registered, a reset code has been sent."})
}

// POST /api/verify-reset-code
func (h *AuthHandler) VerifyResetCode(c *fiber.Ctx) error {
	in, err := parseCredentials(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Recovery.VerifyCode(c.UserContext(), in.Email, in.Code); err != nil {
		if errors.Is(err, domain.ErrInvalidCode) {
			log.Security(c, "auth.reset.code.fail", nil)
		}
		return fail(c, err)
	}
	return ok(c, fiber.Map{"message": "Code verified"})
}

// POST /api/reset-password
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	in, err := parseCredentials(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Recovery.ResetPassword(c.UserContext(), in.Email, in.Code, in.NewPassword); err != nil {
		if errors.Is(err, domain.ErrInvalidCode) {
			log.Security(c, "auth.reset.code.fail", nil)
		}
		return fail(c, err)
	}
	log.Audit(c, "auth.reset.password", nil)
	return ok(c, fiber.Map{"message": "Password reset successful"})
}

// GET /login
func (h *AuthHandler) LoginPage(c *fiber.Ctx) error {
	next := c.Query("next")
	if u, err := url.Parse(next); err != nil || u.IsAbs() || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/"
	}
	return render(c, "login", fiber.Map{"Next": next})
}
