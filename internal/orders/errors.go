package orders

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindUnresolvedProduct Kind = "unresolved_product"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidStatus     Kind = "invalid_status"
	KindPersistence       Kind = "persistence_failure"
)

// Error is the error type returned by every operation in this package.
// errors.Is matches on Kind, so callers compare against the Err* sentinels.
type Error struct {
	Kind      Kind
	Msg       string
	Err       error
	Shortages []Shortage
}

// Shortage describes one product that could not cover a batch reduction.
type Shortage struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Required    int    `json:"required"`
	Available   int    `json:"available"`
}

var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrUnresolvedProduct = &Error{Kind: KindUnresolvedProduct}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrInvalidStatus     = &Error{Kind: KindInvalidStatus}
	ErrPersistence       = &Error{Kind: KindPersistence}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = strings.ReplaceAll(string(e.Kind), "_", " ")
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return err
	}
	return &Error{Kind: KindPersistence, Msg: op, Err: err}
}

// KindOf classifies err; anything that is not an *Error is a persistence failure.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindPersistence
}
