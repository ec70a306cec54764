package handlers

import (
	"github.com/jmoiron/sqlx"

	"phonestore/internal/blobs"
	"phonestore/internal/config"
	"phonestore/internal/mail"
	"phonestore/internal/repos"
	"phonestore/internal/services"
)

// Collaborators are the external services the core talks to. Nil fields
// fall back to the in-store blob backend and disabled mail/assistant.
type Collaborators struct {
	Blobs blobs.Store
	Mail  mail.Sender
	Gen   services.Generator
}

type Deps struct {
	Cfg config.Config

	Auth     *services.AuthService
	Recovery *services.RecoveryService
	Catalog  *services.CatalogService
	Cart     *services.CartService
	Chat     *services.ChatService
	Mail     mail.Sender

	AuthHandler     *AuthHandler
	ProductHandler  *ProductHandler
	CategoryHandler *CategoryHandler
	SearchHandler   *SearchHandler
	CartHandler     *CartHandler
	ChatHandler     *ChatHandler
	AdminHandler    *AdminHandler
}

func NewDeps(db *sqlx.DB, cfg config.Config, col Collaborators) *Deps {
	userRepo := repos.NewUserRepo(db)
	prodRepo := repos.NewProductRepo(db)
	cartRepo := repos.NewCartRepo(db)
	convRepo := repos.NewConversationRepo(db)

	if col.Blobs == nil {
		col.Blobs = repos.NewBlobRepo(db)
	}
	if col.Mail == nil {
		col.Mail = mail.Disabled{}
	}

	authSvc := &services.AuthService{
		Users:      userRepo,
		Carts:      cartRepo,
		Secret:     []byte(cfg.SessionSecret),
		SessionTTL: cfg.SessionTTL,
		MaxLineQty: cfg.CartMaxLineQty,
	}
	recoverySvc := &services.RecoveryService{Users: userRepo, Mail: col.Mail, CodeTTL: cfg.ResetCodeTTL}
	catalogSvc := &services.CatalogService{Products: prodRepo, Blobs: col.Blobs}
	cartSvc := &services.CartService{
		Carts:          cartRepo,
		Products:       prodRepo,
		AllowAnonymous: cfg.CartAllowAnonymous,
		MaxLineQty:     cfg.CartMaxLineQty,
	}
	chatSvc := &services.ChatService{
		Conversations: convRepo,
		Gen:           col.Gen,
		Timeout:       cfg.Assistant.Timeout,
		TTL:           cfg.Assistant.ConversationTTL,
	}

	return &Deps{
		Cfg:      cfg,
		Auth:     authSvc,
		Recovery: recoverySvc,
		Catalog:  catalogSvc,
		Cart:     cartSvc,
		Chat:     chatSvc,
		Mail:     col.Mail,

		AuthHandler:     &AuthHandler{Auth: authSvc, Recovery: recoverySvc, SessionTTL: cfg.SessionTTL},
		ProductHandler:  &ProductHandler{Catalog: catalogSvc},
		CategoryHandler: &CategoryHandler{Catalog: catalogSvc},
		SearchHandler:   &SearchHandler{Catalog: catalogSvc},
		CartHandler:     &CartHandler{Cart: cartSvc},
		ChatHandler:     &ChatHandler{Chat: chatSvc},
		AdminHandler:    &AdminHandler{Auth: authSvc},
	}
}
