package store

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-service/internal/domain"
)

func TestMemoryStore_CategoryNameUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.CreateCategory(ctx, &domain.Category{Name: "Books", Slug: "books"})
	require.NoError(t, err)

	_, err = s.CreateCategory(ctx, &domain.Category{Name: "Books", Slug: "books"})
	assert.True(t, errors.Is(err, ErrCategoryNameExists))
}

func TestMemoryStore_ListProductsKeepsInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	categoryID := uuid.New()

	var want []string
	for _, name := range []string{"c", "a", "b", "d"} {
		_, err := s.CreateProduct(ctx, &domain.Product{Name: name, CategoryID: categoryID})
		require.NoError(t, err)
		want = append(want, name)
	}
	_, err := s.CreateProduct(ctx, &domain.Product{Name: "elsewhere", CategoryID: uuid.New()})
	require.NoError(t, err)

	first, total, err := s.ListProducts(ctx, ListProductsParams{Limit: 3, CategoryID: &categoryID})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	second, _, err := s.ListProducts(ctx, ListProductsParams{Limit: 3, Offset: 3, CategoryID: &categoryID})
	require.NoError(t, err)

	var got []string
	for _, p := range append(first, second...) {
		got = append(got, p.Name)
	}
	assert.Equal(t, want, got)
}

func TestMemoryStore_DeleteMany(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	productID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := s.CreateReview(ctx, &domain.Review{Title: "t", Text: "x", Rating: 5, ProductID: productID})
		require.NoError(t, err)
	}

	n, err := s.DeleteReviewsByProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.DeleteReviewsByProduct(ctx, productID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPageOf_OutOfRangeOffsets(t *testing.T) {
	items := []int{1, 2, 3, 4}

	assert.Equal(t, []int{1, 2}, pageOf(items, 2, -200))
	assert.Equal(t, []int{3, 4}, pageOf(items, 2, 2))
	assert.Empty(t, pageOf(items, 2, 4))
	assert.Empty(t, pageOf(items, 100, math.MaxInt))
}
