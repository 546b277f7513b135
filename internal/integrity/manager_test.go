package integrity

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"catalog-service/internal/domain"
	"catalog-service/internal/logger"
	"catalog-service/internal/store"
)

type mocks struct {
	categories *MockCategoryStorer
	products   *MockProductStorer
	reviews    *MockReviewStorer
}

func newMockedManager() (*Manager, mocks) {
	m := mocks{
		categories: new(MockCategoryStorer),
		products:   new(MockProductStorer),
		reviews:    new(MockReviewStorer),
	}
	mgr := NewManager(store.Stores{
		Categories: m.categories,
		Products:   m.products,
		Reviews:    m.reviews,
		Tx:         directTx{},
	}, logger.Discard())
	return mgr, m
}

func newMemoryManager() (*Manager, *store.MemoryStore) {
	s := store.NewMemoryStore()
	return NewManager(store.StoresOf(s), logger.Discard()), s
}

func TestBeforeSaveCategory(t *testing.T) {
	mgr, _ := newMockedManager()

	c := &domain.Category{Name: "  Electronics & Gadgets  ", Slug: "stale"}
	mgr.BeforeSaveCategory(c)

	assert.Equal(t, "Electronics & Gadgets", c.Name)
	assert.Equal(t, "electronics-and-gadgets", c.Slug)
}

func TestCreateCategory_DerivesSlugBeforeWrite(t *testing.T) {
	mgr, m := newMockedManager()

	m.categories.On("CreateCategory", mock.Anything, mock.MatchedBy(func(c *domain.Category) bool {
		return c.Name == "Electronics & Gadgets" && c.Slug == "electronics-and-gadgets"
	})).Return(&domain.Category{ID: uuid.New(), Name: "Electronics & Gadgets", Slug: "electronics-and-gadgets"}, nil).Once()

	created, err := mgr.CreateCategory(context.Background(), &domain.Category{Name: "Electronics & Gadgets"})
	require.NoError(t, err)
	assert.Equal(t, "electronics-and-gadgets", created.Slug)

	m.categories.AssertExpectations(t)
}

func TestUpdateCategory_RecomputesSlug(t *testing.T) {
	mgr, s := newMemoryManager()
	ctx := context.Background()

	created, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Home Garden"})
	require.NoError(t, err)
	assert.Equal(t, "home-garden", created.Slug)

	updated, err := mgr.UpdateCategory(ctx, &domain.Category{ID: created.ID, Name: "Home & Patio", Slug: "home-garden"})
	require.NoError(t, err)
	assert.Equal(t, "home-and-patio", updated.Slug)

	again, err := mgr.UpdateCategory(ctx, &domain.Category{ID: created.ID, Name: "Home & Patio"})
	require.NoError(t, err)
	assert.Equal(t, updated.Slug, again.Slug, "re-saving the same name keeps the slug")

	stored, err := s.GetCategoryByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "home-and-patio", stored.Slug)
}

func TestCreateCategory_DuplicateNameFails(t *testing.T) {
	mgr, _ := newMemoryManager()
	ctx := context.Background()

	_, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Books"})
	require.NoError(t, err)

	_, err = mgr.CreateCategory(ctx, &domain.Category{Name: " Books "})
	assert.True(t, errors.Is(err, store.ErrCategoryNameExists))
}

func TestDeleteCategory_CascadesProductsAndReviews(t *testing.T) {
	mgr, s := newMemoryManager()
	ctx := context.Background()

	category, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Electronics"})
	require.NoError(t, err)
	other, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Books"})
	require.NoError(t, err)

	p1, err := mgr.CreateProduct(ctx, &domain.Product{Name: "Phone", CategoryID: category.ID})
	require.NoError(t, err)
	_, err = mgr.CreateProduct(ctx, &domain.Product{Name: "Tablet", CategoryID: category.ID})
	require.NoError(t, err)
	kept, err := mgr.CreateProduct(ctx, &domain.Product{Name: "Novel", CategoryID: other.ID})
	require.NoError(t, err)
	review, err := mgr.CreateReview(ctx, &domain.Review{Title: "Nice", Text: "Good phone", Rating: 8, ProductID: p1.ID})
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteCategory(ctx, category.ID))

	products, err := Collect(mgr.ProductsOf(ctx, category.ID))
	require.NoError(t, err)
	assert.Empty(t, products)

	_, err = s.GetProductByID(ctx, p1.ID)
	assert.True(t, errors.Is(err, store.ErrProductNotFound))
	_, err = s.GetReviewByID(ctx, review.ID)
	assert.True(t, errors.Is(err, store.ErrReviewNotFound))
	_, err = s.GetCategoryByID(ctx, category.ID)
	assert.True(t, errors.Is(err, store.ErrCategoryNotFound))

	_, err = s.GetProductByID(ctx, kept.ID)
	assert.NoError(t, err, "products of other categories survive")
}

func TestDeleteCategory_NoProductsSkipsChildDeletion(t *testing.T) {
	mgr, m := newMockedManager()
	id := uuid.New()

	m.categories.On("GetCategoryByID", mock.Anything, id).Return(&domain.Category{ID: id, Name: "Empty"}, nil).Once()
	m.products.On("ListProducts", mock.Anything, store.ListProductsParams{Limit: DefaultPageSize, CategoryID: &id}).
		Return([]domain.Product{}, 0, nil).Once()
	m.categories.On("DeleteCategory", mock.Anything, id).Return(nil).Once()

	require.NoError(t, mgr.DeleteCategory(context.Background(), id))

	m.products.AssertNotCalled(t, "DeleteProductsByCategory", mock.Anything, mock.Anything)
	m.reviews.AssertNotCalled(t, "DeleteReviewsByProduct", mock.Anything, mock.Anything)
	m.categories.AssertExpectations(t)
	m.products.AssertExpectations(t)
}

func TestDeleteCategory_NotFound(t *testing.T) {
	mgr, m := newMockedManager()
	id := uuid.New()

	m.categories.On("GetCategoryByID", mock.Anything, id).Return(nil, store.ErrCategoryNotFound).Once()

	err := mgr.DeleteCategory(context.Background(), id)
	assert.True(t, errors.Is(err, store.ErrCategoryNotFound))

	m.products.AssertNotCalled(t, "ListProducts", mock.Anything, mock.Anything)
	m.categories.AssertNotCalled(t, "DeleteCategory", mock.Anything, mock.Anything)
}

func TestDeleteCategory_ChildDeleteFailureKeepsParent(t *testing.T) {
	mgr, m := newMockedManager()
	id := uuid.New()
	productID := uuid.New()

	m.categories.On("GetCategoryByID", mock.Anything, id).Return(&domain.Category{ID: id}, nil).Once()
	m.products.On("ListProducts", mock.Anything, mock.Anything).
		Return([]domain.Product{{ID: productID, CategoryID: id}}, 1, nil).Once()
	m.reviews.On("DeleteReviewsByProduct", mock.Anything, productID).Return(int64(0), nil).Once()
	m.products.On("DeleteProductsByCategory", mock.Anything, id).Return(int64(0), errors.New("write conflict")).Once()

	err := mgr.DeleteCategory(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDependencyDeletionFailed))
	assert.Contains(t, err.Error(), "write conflict")

	m.categories.AssertNotCalled(t, "DeleteCategory", mock.Anything, mock.Anything)
	m.products.AssertExpectations(t)
	m.reviews.AssertExpectations(t)
}

func TestDeleteCategory_ReviewDeleteFailureKeepsProducts(t *testing.T) {
	mgr, m := newMockedManager()
	id := uuid.New()
	productID := uuid.New()

	m.categories.On("GetCategoryByID", mock.Anything, id).Return(&domain.Category{ID: id}, nil).Once()
	m.products.On("ListProducts", mock.Anything, mock.Anything).
		Return([]domain.Product{{ID: productID, CategoryID: id}}, 1, nil).Once()
	m.reviews.On("DeleteReviewsByProduct", mock.Anything, productID).Return(int64(0), errors.New("timeout")).Once()

	err := mgr.DeleteCategory(context.Background(), id)
	assert.True(t, errors.Is(err, ErrDependencyDeletionFailed))

	m.products.AssertNotCalled(t, "DeleteProductsByCategory", mock.Anything, mock.Anything)
	m.categories.AssertNotCalled(t, "DeleteCategory", mock.Anything, mock.Anything)
}

func TestDeleteCategory_ListingFailureIsDependencyFailure(t *testing.T) {
	mgr, m := newMockedManager()
	id := uuid.New()

	m.categories.On("GetCategoryByID", mock.Anything, id).Return(&domain.Category{ID: id}, nil).Once()
	m.products.On("ListProducts", mock.Anything, mock.Anything).Return(nil, 0, context.Canceled).Once()

	err := mgr.DeleteCategory(context.Background(), id)
	assert.True(t, errors.Is(err, ErrDependencyDeletionFailed))
	assert.True(t, errors.Is(err, context.Canceled))

	m.categories.AssertNotCalled(t, "DeleteCategory", mock.Anything, mock.Anything)
}

func TestDeleteProduct_CascadesReviews(t *testing.T) {
	mgr, s := newMemoryManager()
	ctx := context.Background()

	category, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Tools"})
	require.NoError(t, err)
	product, err := mgr.CreateProduct(ctx, &domain.Product{Name: "Hammer", CategoryID: category.ID})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := mgr.CreateReview(ctx, &domain.Review{Title: "ok", Text: "fine", Rating: 6, ProductID: product.ID})
		require.NoError(t, err)
	}

	require.NoError(t, mgr.DeleteProduct(ctx, product.ID))

	reviews, err := Collect(mgr.ReviewsOf(ctx, product.ID))
	require.NoError(t, err)
	assert.Empty(t, reviews)
	_, err = s.GetCategoryByID(ctx, category.ID)
	assert.NoError(t, err, "deleting a product leaves its category")
}

func TestCreateProduct_RequiresExistingCategory(t *testing.T) {
	mgr, _ := newMemoryManager()

	_, err := mgr.CreateProduct(context.Background(), &domain.Product{Name: "Orphan", CategoryID: uuid.New()})
	assert.True(t, errors.Is(err, store.ErrCategoryNotFound))
}

func TestUpdateProduct_ChecksNewCategory(t *testing.T) {
	mgr, _ := newMemoryManager()
	ctx := context.Background()

	category, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Garden"})
	require.NoError(t, err)
	product, err := mgr.CreateProduct(ctx, &domain.Product{Name: "Rake", CategoryID: category.ID})
	require.NoError(t, err)

	_, err = mgr.UpdateProduct(ctx, &domain.Product{ID: product.ID, Name: "Rake", CategoryID: uuid.New()})
	assert.True(t, errors.Is(err, store.ErrCategoryNotFound))

	updated, err := mgr.UpdateProduct(ctx, &domain.Product{ID: product.ID, Name: "Leaf Rake", Price: 12})
	require.NoError(t, err)
	assert.Equal(t, category.ID, updated.CategoryID, "missing category keeps the current one")
	assert.Equal(t, "Leaf Rake", updated.Name)
}

func TestCreateReview_RequiresExistingProduct(t *testing.T) {
	mgr, _ := newMemoryManager()

	_, err := mgr.CreateReview(context.Background(), &domain.Review{Title: "?", Text: "?", Rating: 1, ProductID: uuid.New()})
	assert.True(t, errors.Is(err, store.ErrProductNotFound))
}

func TestProductsOf_UnknownCategoryIsEmpty(t *testing.T) {
	mgr, _ := newMemoryManager()

	products, err := Collect(mgr.ProductsOf(context.Background(), uuid.New()))
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestProductsOf_PagesThroughStore(t *testing.T) {
	mgr, _ := newMemoryManager()
	mgr.WithPageSize(2)
	ctx := context.Background()

	category, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Paged"})
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		_, err := mgr.CreateProduct(ctx, &domain.Product{Name: name, CategoryID: category.ID})
		require.NoError(t, err)
	}

	products, err := Collect(mgr.ProductsOf(ctx, category.ID))
	require.NoError(t, err)
	require.Len(t, products, 5)
	assert.Equal(t, "a", products[0].Name)
	assert.Equal(t, "e", products[4].Name)
}

func TestProductsOf_StopsEarly(t *testing.T) {
	mgr, m := newMockedManager()
	mgr.WithPageSize(2)
	id := uuid.New()

	m.products.On("ListProducts", mock.Anything, store.ListProductsParams{Limit: 2, Offset: 0, CategoryID: &id}).
		Return([]domain.Product{{Name: "a"}, {Name: "b"}}, 10, nil).Once()

	var seen []string
	for p, err := range mgr.ProductsOf(context.Background(), id) {
		require.NoError(t, err)
		seen = append(seen, p.Name)
		if len(seen) == 1 {
			break
		}
	}

	assert.Equal(t, []string{"a"}, seen)
	m.products.AssertExpectations(t)
}

func TestReviewsOf_NoReviews(t *testing.T) {
	mgr, _ := newMemoryManager()
	ctx := context.Background()

	category, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Audio"})
	require.NoError(t, err)
	product, err := mgr.CreateProduct(ctx, &domain.Product{Name: "Speaker", CategoryID: category.ID})
	require.NoError(t, err)

	reviews, err := Collect(mgr.ReviewsOf(ctx, product.ID))
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestPatchProduct_KeepsUnsetFields(t *testing.T) {
	mgr, _ := newMemoryManager()
	ctx := context.Background()

	category, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Books"})
	require.NoError(t, err)
	other, err := mgr.CreateCategory(ctx, &domain.Category{Name: "Comics"})
	require.NoError(t, err)
	description := "hardcover"
	product, err := mgr.CreateProduct(ctx, &domain.Product{Name: "Novel", Description: &description, Price: 20, CategoryID: category.ID})
	require.NoError(t, err)

	name := "Novel 2"
	updated, err := mgr.PatchProduct(ctx, product.ID, ProductChanges{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Novel 2", updated.Name)
	assert.Equal(t, 20.0, updated.Price)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "hardcover", *updated.Description)
	assert.Equal(t, category.ID, updated.CategoryID)

	moved, err := mgr.PatchProduct(ctx, product.ID, ProductChanges{CategoryID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, other.ID, moved.CategoryID)
	assert.Equal(t, "Novel 2", moved.Name)

	unknown := uuid.New()
	_, err = mgr.PatchProduct(ctx, product.ID, ProductChanges{CategoryID: &unknown})
	assert.True(t, errors.Is(err, store.ErrCategoryNotFound))

	_, err = mgr.PatchProduct(ctx, uuid.New(), ProductChanges{Name: &name})
	assert.True(t, errors.Is(err, store.ErrProductNotFound))
}

func TestDeleteCategory_FailureLeavesLoggingToCaller(t *testing.T) {
	mem := store.NewMemoryStore()
	stores := store.StoresOf(mem)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stores.Reviews = cancellingReviews{MemoryStore: mem, cancel: cancel}
	rec := &recordingHandler{}
	mgr := NewManager(stores, slog.New(rec))

	category, err := mgr.CreateCategory(context.Background(), &domain.Category{Name: "Logged"})
	require.NoError(t, err)
	_, err = mgr.CreateProduct(context.Background(), &domain.Product{Name: "Item", CategoryID: category.ID})
	require.NoError(t, err)

	err = mgr.DeleteCategory(ctx, category.ID)
	require.Error(t, err)
	assert.Zero(t, rec.count(slog.LevelError), "the manager returns the failure without logging it")
}

func TestDeleteCategory_CancelledMidCascade(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stores := store.StoresOf(mem)
	stores.Reviews = cancellingReviews{MemoryStore: mem, cancel: cancel}
	mgr := NewManager(stores, logger.Discard())
	setup := context.Background()

	category, err := mgr.CreateCategory(setup, &domain.Category{Name: "Interrupted"})
	require.NoError(t, err)
	product, err := mgr.CreateProduct(setup, &domain.Product{Name: "Lamp", CategoryID: category.ID})
	require.NoError(t, err)
	review, err := mgr.CreateReview(setup, &domain.Review{Title: "Bright", Text: "Lights the room", Rating: 7, ProductID: product.ID})
	require.NoError(t, err)

	require.NotPanics(t, func() { err = mgr.DeleteCategory(ctx, category.ID) })
	assert.True(t, errors.Is(err, ErrDependencyDeletionFailed))
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = mem.GetCategoryByID(setup, category.ID)
	assert.NoError(t, err, "category survives an interrupted cascade")
	_, err = mem.GetProductByID(setup, product.ID)
	assert.NoError(t, err, "products are only removed after their reviews")
	_, err = mem.GetReviewByID(setup, review.ID)
	assert.True(t, errors.Is(err, store.ErrReviewNotFound), "reviews removed before cancellation stay removed")

	retry := NewManager(store.StoresOf(mem), logger.Discard())
	require.NoError(t, retry.DeleteCategory(setup, category.ID))
	_, err = mem.GetProductByID(setup, product.ID)
	assert.True(t, errors.Is(err, store.ErrProductNotFound))
}

func TestDeleteCategory_WarnsWhenProductsAppearDuringCascade(t *testing.T) {
	rec := &recordingHandler{}
	m := mocks{
		categories: new(MockCategoryStorer),
		products:   new(MockProductStorer),
		reviews:    new(MockReviewStorer),
	}
	mgr := NewManager(store.Stores{Categories: m.categories, Products: m.products, Reviews: m.reviews, Tx: directTx{}}, slog.New(rec))
	id := uuid.New()
	productID := uuid.New()

	m.categories.On("GetCategoryByID", mock.Anything, id).Return(&domain.Category{ID: id}, nil).Once()
	m.products.On("ListProducts", mock.Anything, mock.Anything).
		Return([]domain.Product{{ID: productID, CategoryID: id}}, 1, nil).Once()
	m.reviews.On("DeleteReviewsByProduct", mock.Anything, productID).Return(int64(2), nil).Once()
	m.products.On("DeleteProductsByCategory", mock.Anything, id).Return(int64(2), nil).Once()
	m.categories.On("DeleteCategory", mock.Anything, id).Return(nil).Once()

	require.NoError(t, mgr.DeleteCategory(context.Background(), id))
	assert.Equal(t, 1, rec.count(slog.LevelWarn))

	m.categories.AssertExpectations(t)
	m.products.AssertExpectations(t)
}
