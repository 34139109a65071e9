package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindNotFound            Kind = "not_found"
	KindCatalogUnavailable  Kind = "catalog_unavailable"
	KindEmptyCart           Kind = "empty_cart"
	KindIncompleteLineItem  Kind = "incomplete_line_item"
	KindInvalidTotal        Kind = "invalid_total"
	KindProductUnresolvable Kind = "product_unresolvable"
	KindPriceChanged        Kind = "price_changed"
	KindPersistence         Kind = "persistence_error"
)

// Error carries a machine-readable kind and a message that is safe to show a
// caller. Err holds the internal cause and is only meant for logs.
type Error struct {
	Kind      Kind
	Message   string
	ProductID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message or product.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation          = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrCatalogUnavailable  = &Error{Kind: KindCatalogUnavailable, Message: "catalog is unavailable"}
	ErrEmptyCart           = &Error{Kind: KindEmptyCart, Message: "cart is empty, nothing to checkout"}
	ErrIncompleteLineItem  = &Error{Kind: KindIncompleteLineItem, Message: "cart item has no product data"}
	ErrInvalidTotal        = &Error{Kind: KindInvalidTotal, Message: "invalid order total"}
	ErrProductUnresolvable = &Error{Kind: KindProductUnresolvable, Message: "product could not be resolved"}
	ErrPriceChanged        = &Error{Kind: KindPriceChanged, Message: "product price changed since it was added"}
	ErrPersistence         = &Error{Kind: KindPersistence, Message: "storage failure"}
)

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ProductError(kind Kind, productID, message string) *Error {
	return &Error{Kind: kind, Message: message, ProductID: productID}
}

// KindOf reports the kind of the first *Error in err's chain, or "" when err
// carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
