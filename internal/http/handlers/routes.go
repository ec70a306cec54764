package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	html "github.com/gofiber/template/html/v2"

	applog "phonestore/internal/log"
)

// NewApp builds the fiber application with middleware and every route.
func NewApp(d *Deps) *fiber.App {
	cfg := d.Cfg
	engine := html.New(cfg.TemplatesDir, ".html")

	app := fiber.New(fiber.Config{
		Views:        engine,
		BodyLimit:    cfg.BodyLimit,
		ErrorHandler: ErrorHandler,
	})

	// ---------- Middlewares ----------
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(cors.New(cors.Config{AllowMethods: "GET,POST,PUT,DELETE"}))
	app.Use(Identity(d.Auth, cfg.SessionTTL))
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return !strings.HasPrefix(c.Path(), "/api/") || strings.HasSuffix(c.Path(), "/image")
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.api.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "message": "Too many requests. Please slow down."})
		},
	}))

	api := app.Group("/api")

	// Auth (login throttled)
	a := d.AuthHandler
	api.Post("/register", a.Register)
	api.Post("/login", limiter.New(limiter.Config{
		Max:        cfg.LoginRateMax,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "message": "Too many attempts. Please try again later."})
		},
	}), a.Login)
	api.Post("/logout", a.Logout)
	api.Post("/forgot-password", limiter.New(limiter.Config{
		Max:        cfg.LoginRateMax,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.reset.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "message": "Too many attempts. Please try again later."})
		},
	}), a.ForgotPassword)
	api.Post("/verify-reset-code", a.VerifyResetCode)
	api.Post("/reset-password", a.ResetPassword)
	api.Get("/check-auth", a.CheckAuth)

	// Catalog
	p := d.ProductHandler
	api.Get("/products", p.List)
	api.Get("/products/:id/image", p.Image)
	api.Get("/products/:id", p.Get)
	api.Post("/products/import", RequireAdmin(), p.Import)
	api.Post("/products", RequireAdmin(), p.Create)
	api.Put("/products/:id", RequireAdmin(), p.Update)
	api.Delete("/products/:id", RequireAdmin(), p.Delete)

	// Cart
	ch := d.CartHandler
	api.Post("/cart/add", ch.Add)
	api.Get("/cart/get", ch.Get)
	api.Post("/cart/update", ch.Update)
	api.Post("/cart/remove", ch.Remove)
	api.Post("/cart/clear", ch.Clear)

	api.Post("/chatbot", d.ChatHandler.Message)
	api.Get("/chatbot/history", d.ChatHandler.History)

	// Admin
	admin := api.Group("/admin", RequireAdmin())
	admin.Get("/users", d.AdminHandler.Users)
	admin.Post("/users/:id/role", d.AdminHandler.SetRole)

	// Pages
	app.Get("/", d.CategoryHandler.Home)
	app.Get("/search", d.SearchHandler.Search)
	app.Get("/product/:id", p.Detail)
	if cfg.CartAllowAnonymous {
		app.Get("/cart", ch.View)
	} else {
		app.Get("/cart", RequireUser(), ch.View)
	}
	app.Get("/login", a.LoginPage)

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"ok": true,
			"capabilities": fiber.Map{
				"mail":      d.Mail.Enabled(),
				"assistant": d.Chat.Available(),
				"blobs":     cfg.Blob.Backend,
			},
		})
	})
	app.Use(func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/api/") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Not found"})
		}
		return notFound(c, "Page not found")
	})

	return app
}
