package domain

import (
	"time"

	"github.com/google/uuid"
)

// CategoryNameMaxLength is the longest category name accepted after trimming.
const CategoryNameMaxLength = 50

// Category groups products. Slug is derived from Name on every save and is
// never supplied by callers.
type Category struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Product belongs to exactly one Category through CategoryID.
type Product struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"` // Pointer for nullable fields
	Price       float64   `json:"price"`
	CategoryID  uuid.UUID `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Review belongs to exactly one Product through ProductID.
type Review struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Rating    int       `json:"rating"`
	ProductID uuid.UUID `json:"product"`
	CreatedAt time.Time `json:"created_at"`
}
