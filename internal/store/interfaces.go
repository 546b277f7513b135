package store

import (
	"context"

	"github.com/google/uuid"

	"catalog-service/internal/domain"
)

// ListCategoriesParams holds parameters for listing categories.
type ListCategoriesParams struct {
	Limit  int
	Offset int
}

// CategoryStorer defines the database operations for categories.
type CategoryStorer interface {
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	GetCategoryByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) // Returns categories and total count
	UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
}

// ListProductsParams holds parameters for listing products.
// A nil CategoryID lists every product.
type ListProductsParams struct {
	Limit      int
	Offset     int
	CategoryID *uuid.UUID
}

// ProductStorer defines the database operations for products.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error)
	UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	// DeleteProductsByCategory removes every product referencing categoryID
	// and reports how many were removed.
	DeleteProductsByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error)
}

// ListReviewsParams holds parameters for listing reviews.
// A nil ProductID lists every review.
type ListReviewsParams struct {
	Limit     int
	Offset    int
	ProductID *uuid.UUID
}

// ReviewStorer defines the database operations for reviews.
type ReviewStorer interface {
	CreateReview(ctx context.Context, review *domain.Review) (*domain.Review, error)
	GetReviewByID(ctx context.Context, id uuid.UUID) (*domain.Review, error)
	ListReviews(ctx context.Context, params ListReviewsParams) ([]domain.Review, int, error)
	UpdateReview(ctx context.Context, review *domain.Review) (*domain.Review, error)
	DeleteReview(ctx context.Context, id uuid.UUID) error
	DeleteReviewsByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}

// Transactor runs fn so that every storer call made with the context it
// receives commits or rolls back together. Backends without multi-document
// atomicity run fn directly; callers must then order their writes so that a
// failure leaves no dangling reference.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores bundles the storers of one backend.
type Stores struct {
	Categories CategoryStorer
	Products   ProductStorer
	Reviews    ReviewStorer
	Tx         Transactor
}

// Backend is a complete storage implementation.
type Backend interface {
	CategoryStorer
	ProductStorer
	ReviewStorer
	Transactor
	Ping(ctx context.Context) error
	Close() error
}

// StoresOf exposes a backend through the Stores bundle.
func StoresOf(b Backend) Stores {
	return Stores{Categories: b, Products: b, Reviews: b, Tx: b}
}
