package domain

import (
	"strconv"
)

type Product struct {
	ID          int64   `db:"id" json:"id"`
	Title       string  `db:"title" json:"title"`
	Price       float64 `db:"price" json:"price"`
	Category    string  `db:"category" json:"category"`
	Description string  `db:"description" json:"description"`
	Specs       Specs   `db:"specs" json:"specs"`
	ImageRef    *string `db:"image_ref" json:"-"`
	ImageURL    string  `db:"-" json:"image_url,omitempty"`
	CreatedAt   int64   `db:"created_at" json:"-"`
	UpdatedAt   int64   `db:"updated_at" json:"-"`
}

// ProductImageURL is a function of the product id only, so a replaced
// image keeps the same public URL.
func ProductImageURL(id int64) string {
	return "/api/products/" + strconv.FormatInt(id, 10) + "/image"
}

// WithImageURL fills the derived ImageURL field.
func (p Product) WithImageURL() Product {
	if p.ImageRef != nil && *p.ImageRef != "" {
		p.ImageURL = ProductImageURL(p.ID)
	} else {
		p.ImageURL = ""
	}
	return p
}

type CartLine struct {
	Owner     string  `db:"owner" json:"-"`
	ProductID int64   `db:"product_id" json:"product_id"`
	Quantity  int     `db:"quantity" json:"quantity"`
	Title     string  `db:"title" json:"product_title"`
	Price     float64 `db:"price" json:"product_price"`
	ImageURL  *string `db:"image_url" json:"product_image,omitempty"`
	AddedAt   int64   `db:"added_at" json:"added_at"`
	UpdatedAt int64   `db:"updated_at" json:"-"`
}

type Blob struct {
	Ref  string
	Mime string
	Data []byte
}

type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

type Turn struct {
	Role TurnRole `db:"role" json:"role"`
	Text string   `db:"text" json:"content"`
}

// Reply is what the generation service produced for one turn. Checkout is
// set when the reply carries a structured checkout intent.
type Reply struct {
	Text     string          `json:"response"`
	Checkout *CheckoutIntent `json:"checkout,omitempty"`
}

type CheckoutIntent struct {
	Action   string         `json:"action"`
	Customer Customer       `json:"customer"`
	Items    []CheckoutItem `json:"items"`
	Subtotal float64        `json:"subtotal"`
	Tax      float64        `json:"tax"`
	Shipping float64        `json:"shipping"`
	Total    float64        `json:"total"`
	Note     string         `json:"note,omitempty"`
	NextStep string         `json:"next_step,omitempty"`
}

type Customer struct {
	Name    string `json:"name"`
	NIC     string `json:"nic"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type CheckoutItem struct {
	Model     string  `json:"model"`
	SKU       string  `json:"sku"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}
