// Package product manages catalog products and the image asset bound to each one.
package product

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Product is a catalog entry. Image is the content-addressed name of the bound
// asset; URL is derived from it when the product is served and is not stored.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Image       string    `json:"image"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Fields are the persisted, caller-controlled columns of a product.
type Fields struct {
	Name        string
	Description *string
	Category    *string
	Image       string
}

// Order selects the sort column for List.
type Order string

const (
	OrderByID   Order = "id"
	OrderByName Order = "name"
)

// ParseOrder maps a query value to an Order, defaulting to OrderByID.
func ParseOrder(s string) Order {
	if Order(s) == OrderByName {
		return OrderByName
	}
	return OrderByID
}

// RecordStore persists products. Each call is atomic for a single row.
type RecordStore interface {
	FindByID(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, f Fields) (*Product, error)
	Update(ctx context.Context, id int64, f Fields) (*Product, error)
	Delete(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context, order Order) ([]*Product, error)
	// CountByImage returns how many products reference the named asset.
	CountByImage(ctx context.Context, image string) (int, error)
}

var (
	// ErrNotFound is returned when a product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInvalidInput marks a malformed request; nothing was changed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPersistence wraps record store failures.
	ErrPersistence = errors.New("persistence failed")
)

// InputError is an ErrInvalidInput with a user-facing message.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func invalidInput(msg string) error { return &InputError{Message: msg} }

func persistenceFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
