package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// CartLine is one entry of the cart handed from the shop view to checkout.
type CartLine struct {
	ID       string          `json:"id" validate:"required"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"gt=0"`
	ImageURL string          `json:"image_url,omitempty"`
}

// ParseCartParam decodes the URL-encoded JSON array used as the cart query
// parameter. Values that were already decoded by the HTTP layer are accepted too.
func ParseCartParam(raw string) ([]CartLine, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	decoded := raw
	if !strings.HasPrefix(raw, "[") {
		unescaped, err := url.QueryUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("cart is not url-encoded: %w", err)
		}
		decoded = unescaped
	}
	var lines []CartLine
	if err := json.Unmarshal([]byte(decoded), &lines); err != nil {
		return nil, fmt.Errorf("cart is not a json array: %w", err)
	}
	return lines, nil
}

// CartTotal is the server-side total of a cart snapshot.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}
