package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every entity-specific not-found error so callers
// can test for the condition without knowing the entity.
var ErrNotFound = errors.New("store: resource not found")

// Predefined errors for store operations
var (
	ErrCategoryNotFound   = fmt.Errorf("store: category not found: %w", ErrNotFound)
	ErrProductNotFound    = fmt.Errorf("store: product not found: %w", ErrNotFound)
	ErrReviewNotFound     = fmt.Errorf("store: review not found: %w", ErrNotFound)
	ErrCategoryNameExists = errors.New("store: category name already exists")
)
