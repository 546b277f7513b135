// Package integrity keeps the references between categories, products and
// reviews consistent. Every write that has a derived field or dependent
// records goes through a Manager so the derivation and cascade steps run in
// a fixed, visible order instead of in storage callbacks.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"catalog-service/internal/domain"
	"catalog-service/internal/store"
)

// ErrDependencyDeletionFailed is returned when dependent records could not be
// removed. The parent record is left in place.
var ErrDependencyDeletionFailed = errors.New("integrity: dependent record deletion failed")

// DefaultPageSize is how many children ProductsOf and ReviewsOf fetch per
// store round trip.
const DefaultPageSize = 100

// Manager owns slug derivation, reference checks and cascade deletes.
type Manager struct {
	categories store.CategoryStorer
	products   store.ProductStorer
	reviews    store.ReviewStorer
	tx         store.Transactor
	logger     *slog.Logger
	pageSize   int
}

// NewManager creates a Manager over the given storers.
func NewManager(stores store.Stores, logger *slog.Logger) *Manager {
	return &Manager{
		categories: stores.Categories,
		products:   stores.Products,
		reviews:    stores.Reviews,
		tx:         stores.Tx,
		logger:     logger,
		pageSize:   DefaultPageSize,
	}
}

// WithPageSize sets the page size used by the reverse lookups.
func (m *Manager) WithPageSize(n int) *Manager {
	if n > 0 {
		m.pageSize = n
	}
	return m
}

// BeforeSaveCategory trims the name and recomputes the slug from it.
func (m *Manager) BeforeSaveCategory(category *domain.Category) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name != "" {
		category.Slug = domain.Slugify(category.Name)
	}
}

// CreateCategory derives the slug and persists the category.
func (m *Manager) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	m.BeforeSaveCategory(category)
	return m.categories.CreateCategory(ctx, category)
}

// UpdateCategory derives the slug and persists the new name.
func (m *Manager) UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	m.BeforeSaveCategory(category)
	return m.categories.UpdateCategory(ctx, category)
}

// BeforeDeleteCategory removes every product of the category, and the
// reviews of those products, ahead of the category itself. A category
// without products causes no delete call.
func (m *Manager) BeforeDeleteCategory(ctx context.Context, categoryID uuid.UUID) error {
	var productIDs []uuid.UUID
	for product, err := range m.ProductsOf(ctx, categoryID) {
		if err != nil {
			return fmt.Errorf("%w: list products of category %s: %w", ErrDependencyDeletionFailed, categoryID, err)
		}
		productIDs = append(productIDs, product.ID)
	}
	if len(productIDs) == 0 {
		return nil
	}

	for _, productID := range productIDs {
		if err := m.BeforeDeleteProduct(ctx, productID); err != nil {
			return err
		}
	}

	deleted, err := m.products.DeleteProductsByCategory(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("%w: delete products of category %s: %w", ErrDependencyDeletionFailed, categoryID, err)
	}
	// Without a transaction a product can be added after enumeration; the bulk
	// delete still removes it, but its reviews were never visited.
	if deleted > int64(len(productIDs)) {
		m.logger.Warn("cascade removed products added during the delete, their reviews may remain",
			"category_id", categoryID, "enumerated", len(productIDs), "deleted", deleted)
	}
	m.logger.Debug("cascade deleted products", "category_id", categoryID, "count", deleted)
	return nil
}

// DeleteCategory removes the category after its dependents. The steps share
// one transaction when the store supports it; otherwise a failed cascade
// stops before the category is touched.
func (m *Manager) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := m.categories.GetCategoryByID(ctx, id); err != nil {
			return err
		}
		if err := m.BeforeDeleteCategory(ctx, id); err != nil {
			return err
		}
		return m.categories.DeleteCategory(ctx, id)
	})
}

// BeforeDeleteProduct removes the reviews of a product.
func (m *Manager) BeforeDeleteProduct(ctx context.Context, productID uuid.UUID) error {
	deleted, err := m.reviews.DeleteReviewsByProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("%w: delete reviews of product %s: %w", ErrDependencyDeletionFailed, productID, err)
	}
	if deleted > 0 {
		m.logger.Debug("cascade deleted reviews", "product_id", productID, "count", deleted)
	}
	return nil
}

// DeleteProduct removes the product after its reviews.
func (m *Manager) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := m.products.GetProductByID(ctx, id); err != nil {
			return err
		}
		if err := m.BeforeDeleteProduct(ctx, id); err != nil {
			return err
		}
		return m.products.DeleteProduct(ctx, id)
	})
}

// CreateProduct persists a product whose category must exist.
func (m *Manager) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if _, err := m.categories.GetCategoryByID(ctx, product.CategoryID); err != nil {
		return nil, err
	}
	return m.products.CreateProduct(ctx, product)
}

// UpdateProduct replaces a product, checking the category reference when it
// moves to another category. A nil CategoryID keeps the current one.
func (m *Manager) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	current, err := m.products.GetProductByID(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if product.CategoryID == uuid.Nil {
		product.CategoryID = current.CategoryID
	}
	return m.saveProduct(ctx, current, product)
}

// ProductChanges lists the fields a partial product update sets. Nil fields
// keep their stored value.
type ProductChanges struct {
	Name        *string
	Description *string
	Price       *float64
	CategoryID  *uuid.UUID
}

func (c ProductChanges) applyTo(p *domain.Product) {
	if c.Name != nil {
		p.Name = *c.Name
	}
	if c.Description != nil {
		p.Description = c.Description
	}
	if c.Price != nil {
		p.Price = *c.Price
	}
	if c.CategoryID != nil && *c.CategoryID != uuid.Nil {
		p.CategoryID = *c.CategoryID
	}
}

// PatchProduct applies changes onto the stored product and persists the result.
func (m *Manager) PatchProduct(ctx context.Context, id uuid.UUID, changes ProductChanges) (*domain.Product, error) {
	current, err := m.products.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	changes.applyTo(&next)
	return m.saveProduct(ctx, current, &next)
}

func (m *Manager) saveProduct(ctx context.Context, current, product *domain.Product) (*domain.Product, error) {
	if product.CategoryID != current.CategoryID {
		if _, err := m.categories.GetCategoryByID(ctx, product.CategoryID); err != nil {
			return nil, err
		}
	}
	return m.products.UpdateProduct(ctx, product)
}

// CreateReview persists a review whose product must exist.
func (m *Manager) CreateReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	if _, err := m.products.GetProductByID(ctx, review.ProductID); err != nil {
		return nil, err
	}
	return m.reviews.CreateReview(ctx, review)
}

// ProductsOf yields the products referencing categoryID, fetching them a
// page at a time. An id with no products, known or not, yields nothing.
// Iteration stops after the first error.
func (m *Manager) ProductsOf(ctx context.Context, categoryID uuid.UUID) iter.Seq2[domain.Product, error] {
	return paginate(m.pageSize, func(limit, offset int) ([]domain.Product, error) {
		products, _, err := m.products.ListProducts(ctx, store.ListProductsParams{
			Limit:      limit,
			Offset:     offset,
			CategoryID: &categoryID,
		})
		return products, err
	})
}

// ReviewsOf yields the reviews referencing productID in the same way.
func (m *Manager) ReviewsOf(ctx context.Context, productID uuid.UUID) iter.Seq2[domain.Review, error] {
	return paginate(m.pageSize, func(limit, offset int) ([]domain.Review, error) {
		reviews, _, err := m.reviews.ListReviews(ctx, store.ListReviewsParams{
			Limit:     limit,
			Offset:    offset,
			ProductID: &productID,
		})
		return reviews, err
	})
}

func paginate[T any](pageSize int, fetch func(limit, offset int) ([]T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for offset := 0; ; offset += pageSize {
			page, err := fetch(pageSize, offset)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	items := []T{}
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
