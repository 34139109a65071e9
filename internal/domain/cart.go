package domain

import "time"

type Cart struct {
	SessionKey string     `json:"sessionKey"`
	Items      []CartItem `json:"items"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// CartItem is one line of a cart. Snapshot is nil when the product data was
// not captured at add time.
type CartItem struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Snapshot  *ProductSnapshot `json:"snapshot"`
	AddedAt   time.Time        `json:"addedAt"`
}

func NewCart(sessionKey string, now time.Time) *Cart {
	return &Cart{
		SessionKey: sessionKey,
		Items:      []CartItem{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AddItem increments the quantity of an existing line and keeps its first-seen
// snapshot, or appends a new line holding a copy of snapshot.
func (c *Cart) AddItem(productID string, quantity int, snapshot ProductSnapshot, now time.Time) {
	c.UpdatedAt = now
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			return
		}
	}

	s := snapshot.Copy()
	c.Items = append(c.Items, CartItem{
		ProductID: productID,
		Quantity:  quantity,
		Snapshot:  &s,
		AddedAt:   now,
	})
}

// RemoveItem deletes the whole line for productID. It reports whether a line
// was removed.
func (c *Cart) RemoveItem(productID string, now time.Time) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = now
			return true
		}
	}
	return false
}

func (c *Cart) Clear(now time.Time) {
	c.Items = []CartItem{}
	c.UpdatedAt = now
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone deep-copies the cart, including every snapshot.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = make([]CartItem, len(c.Items))
	for i, item := range c.Items {
		if item.Snapshot != nil {
			s := item.Snapshot.Copy()
			item.Snapshot = &s
		}
		out.Items[i] = item
	}
	return &out
}
