package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"phonestore/internal/domain"
	"phonestore/internal/log"
	"phonestore/internal/services"
)

type ChatHandler struct {
	Chat *services.ChatService
}

// POST /api/chatbot
func (h *ChatHandler) Message(c *fiber.Ctx) error {
	var in struct {
		Message string `json:"message" form:"message"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fail(c, fmt.Errorf("%w: malformed request body", domain.ErrValidation))
		}
	}
	reply, err := h.Chat.Turn(c.UserContext(), ShopperOf(c), in.Message)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrUnauthenticated) {
			return fail(c, err)
		}
		log.Error(c, "chat.turn.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"response": reply.Text})
	}
	if ci := reply.Checkout; ci != nil {
		log.Audit(c, "chat.checkout.intent", map[string]any{
			"items":     len(ci.Items),
			"total":     ci.Total,
			"next_step": ci.NextStep,
		})
	}
	return c.JSON(reply)
}

// GET /api/chatbot/history lets the chat widget restore the conversation
// after a page load.
func (h *ChatHandler) History(c *fiber.Ctx) error {
	turns, err := h.Chat.History(c.UserContext(), ShopperOf(c))
	if err != nil {
		return fail(c, err)
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	return c.JSON(fiber.Map{"history": turns})
}
