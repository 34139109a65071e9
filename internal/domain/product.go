package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count,omitempty"`
}

// ProductSnapshot is a point-in-time copy of catalog data. It is treated as a
// value: copied into a cart line item once and never refreshed in place.
type ProductSnapshot struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Rating      *Rating         `json:"rating,omitempty"`
	InStock     bool            `json:"inStock"`
	CapturedAt  time.Time       `json:"capturedAt"`
}

// Copy returns a snapshot that shares no memory with s.
func (s ProductSnapshot) Copy() ProductSnapshot {
	if s.Rating != nil {
		r := *s.Rating
		s.Rating = &r
	}
	return s
}
