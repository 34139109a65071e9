package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/domain"
)

// rawProduct accepts the FakeStore and DummyJSON record shapes.
type rawProduct struct {
	ID          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       json.RawMessage `json:"price"`
	Image       string          `json:"image"`
	Thumbnail   string          `json:"thumbnail"`
	ImageURL    string          `json:"image_url"`
	Images      []string        `json:"images"`
	Category    json.RawMessage `json:"category"`
	Rating      json.RawMessage `json:"rating"`
	InStock     *bool           `json:"inStock"`
	Stock       *float64        `json:"stock"`
}

func normalize(raw rawProduct, now time.Time) (domain.ProductSnapshot, bool) {
	id := parseID(raw.ID)
	if id == "" {
		return domain.ProductSnapshot{}, false
	}

	return domain.ProductSnapshot{
		ID:          id,
		Name:        firstNonEmpty(raw.Title, raw.Name),
		Description: raw.Description,
		Price:       parsePrice(raw.Price),
		Image:       pickImage(raw),
		Category:    parseCategory(raw.Category),
		Rating:      parseRating(raw.Rating),
		InStock:     inStock(raw),
		CapturedAt:  now,
	}, true
}

func parseID(data json.RawMessage) string {
	if isNull(data) {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String()
	}
	return ""
}

// parsePrice yields zero for missing, negative or unparseable prices.
func parsePrice(data json.RawMessage) decimal.Decimal {
	if isNull(data) {
		return decimal.Zero
	}
	text := string(bytes.TrimSpace(data))
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		text = strings.TrimSpace(s)
	}
	d, err := decimal.NewFromString(text)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func pickImage(raw rawProduct) string {
	img := firstNonEmpty(raw.Image, raw.Thumbnail, raw.ImageURL)
	if img == "" && len(raw.Images) > 0 {
		img = raw.Images[0]
	}
	return img
}

func parseCategory(data json.RawMessage) string {
	if isNull(data) {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.Name
	}
	return ""
}

func parseRating(data json.RawMessage) *domain.Rating {
	if isNull(data) {
		return nil
	}
	var rate float64
	if err := json.Unmarshal(data, &rate); err == nil {
		return &domain.Rating{Rate: rate}
	}
	var obj struct {
		Rate  *float64 `json:"rate"`
		Count int      `json:"count"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Rate != nil {
		return &domain.Rating{Rate: *obj.Rate, Count: obj.Count}
	}
	return nil
}

func inStock(raw rawProduct) bool {
	if raw.InStock != nil {
		return *raw.InStock
	}
	if raw.Stock != nil {
		return *raw.Stock > 0
	}
	return true
}

// decodeList accepts a bare array or an object wrapping a "products" array.
func decodeList(body []byte) ([]rawProduct, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || isNull(body) {
		return nil, nil
	}

	if body[0] == '[' {
		var list []rawProduct
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode product list: %w", err)
		}
		return list, nil
	}

	var wrapped struct {
		Products []rawProduct `json:"products"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode product list: %w", err)
	}
	return wrapped.Products, nil
}

func isNull(data []byte) bool {
	d := bytes.TrimSpace(data)
	return len(d) == 0 || bytes.Equal(d, []byte("null"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
