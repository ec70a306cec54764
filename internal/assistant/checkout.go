package assistant

import (
	"encoding/json"
	"strings"

	"phonestore/internal/domain"
)

// ExtractCheckout finds a checkout object embedded in a prose reply,
// optionally wrapped in a ```json fence. It returns nil when the reply is
// ordinary text.
func ExtractCheckout(text string) *domain.CheckoutIntent {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}
	var ci domain.CheckoutIntent
	if err := json.Unmarshal([]byte(text[start:end+1]), &ci); err != nil {
		return nil
	}
	if !strings.EqualFold(ci.Action, "checkout") {
		return nil
	}
	return &ci
}
