package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(id, price string) ProductSnapshot {
	return ProductSnapshot{
		ID:      id,
		Name:    "Product " + id,
		Price:   decimal.RequireFromString(price),
		InStock: true,
		Rating:  &Rating{Rate: 4.5, Count: 10},
	}
}

func TestAddItem_SameProductIncrementsQuantity(t *testing.T) {
	cart := NewCart("s1", time.Now())

	cart.AddItem("7", 1, snapshot("7", "89.99"), time.Now())
	cart.AddItem("7", 2, snapshot("7", "99.99"), time.Now())
	cart.AddItem("7", 4, snapshot("7", "79.99"), time.Now())

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 7, cart.Items[0].Quantity)
	// first snapshot wins
	assert.True(t, cart.Items[0].Snapshot.Price.Equal(decimal.RequireFromString("89.99")))
}

func TestAddItem_PreservesInsertionOrder(t *testing.T) {
	cart := NewCart("s1", time.Now())
	cart.AddItem("3", 1, snapshot("3", "1"), time.Now())
	cart.AddItem("1", 1, snapshot("1", "1"), time.Now())
	cart.AddItem("2", 1, snapshot("2", "1"), time.Now())
	cart.AddItem("1", 1, snapshot("1", "1"), time.Now())

	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	assert.Equal(t, []string{"3", "1", "2"}, ids)
}

func TestAddItem_CopiesSnapshot(t *testing.T) {
	cart := NewCart("s1", time.Now())
	s := snapshot("1", "10")
	cart.AddItem("1", 1, s, time.Now())

	s.Name = "changed"
	s.Rating.Rate = 1

	assert.Equal(t, "Product 1", cart.Items[0].Snapshot.Name)
	assert.Equal(t, 4.5, cart.Items[0].Snapshot.Rating.Rate)
}

func TestRemoveItem(t *testing.T) {
	cart := NewCart("s1", time.Now())
	cart.AddItem("1", 2, snapshot("1", "10"), time.Now())
	cart.AddItem("2", 3, snapshot("2", "10"), time.Now())

	assert.True(t, cart.RemoveItem("1", time.Now()))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "2", cart.Items[0].ProductID)
}

func TestRemoveItem_MissingIsNoop(t *testing.T) {
	cart := NewCart("s1", time.Now())
	cart.AddItem("1", 2, snapshot("1", "10"), time.Now())
	before := cart.Clone()

	assert.False(t, cart.RemoveItem("404", time.Now()))
	assert.Equal(t, before, cart)
}

func TestClear(t *testing.T) {
	cart := NewCart("s1", time.Now())
	cart.AddItem("1", 2, snapshot("1", "10"), time.Now())

	cart.Clear(time.Now())

	assert.True(t, cart.IsEmpty())
	assert.NotNil(t, cart.Items)
}

func TestClone_IsDeep(t *testing.T) {
	cart := NewCart("s1", time.Now())
	cart.AddItem("1", 2, snapshot("1", "10"), time.Now())
	cart.Items = append(cart.Items, CartItem{ProductID: "2", Quantity: 1})

	clone := cart.Clone()
	clone.Items[0].Quantity = 50
	clone.Items[0].Snapshot.Name = "other"
	clone.Items[0].Snapshot.Rating.Count = 0

	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, "Product 1", cart.Items[0].Snapshot.Name)
	assert.Equal(t, 10, cart.Items[0].Snapshot.Rating.Count)
	assert.Nil(t, clone.Items[1].Snapshot)
}

func TestLineTotal_RoundsOnce(t *testing.T) {
	items := []OrderItem{
		{ProductID: "1", Price: decimal.RequireFromString("0.005"), Quantity: 1},
		{ProductID: "2", Price: decimal.RequireFromString("0.005"), Quantity: 1},
	}
	// per-item rounding would give 0.02; one rounding of 0.010 gives 0.01
	assert.Equal(t, "0.01", LineTotal(items).StringFixed(2))

	items = []OrderItem{{ProductID: "7", Price: decimal.RequireFromString("89.99"), Quantity: 3}}
	assert.Equal(t, "269.97", LineTotal(items).StringFixed(2))
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("checkout: %w", ProductError(KindIncompleteLineItem, "9", "missing product data"))

	assert.ErrorIs(t, err, ErrIncompleteLineItem)
	assert.NotErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, KindIncompleteLineItem, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindPersistence, "failed to save order", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "connection refused")
}
