package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Order is created once per successful checkout and never mutated. Items are
// owned copies with no reference back to the cart.
type Order struct {
	ID         uuid.UUID       `json:"id"`
	SessionKey string          `json:"-"`
	Items      []OrderItem     `json:"items"`
	Total      decimal.Decimal `json:"total"`
	Customer   Customer        `json:"customer"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// LineTotal sums price*quantity over items and rounds once to cents.
func LineTotal(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum.Round(2)
}
