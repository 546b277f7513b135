package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"catalog-service/internal/domain"
)

// MemoryStore is a Backend kept in process memory. It has no durability and
// its WithinTransaction offers no isolation; it serves local runs and tests.
// Deletes fail with the context error once ctx is done.
type MemoryStore struct {
	mu         sync.Mutex
	categories map[uuid.UUID]domain.Category
	products   map[uuid.UUID]domain.Product
	reviews    map[uuid.UUID]domain.Review
	seq        map[uuid.UUID]uint64
	next       uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories: map[uuid.UUID]domain.Category{},
		products:   map[uuid.UUID]domain.Product{},
		reviews:    map[uuid.UUID]domain.Review{},
		seq:        map[uuid.UUID]uint64{},
	}
}

// stamp records insertion order for id and returns the creation time.
func (s *MemoryStore) stamp(id uuid.UUID) time.Time {
	s.next++
	s.seq[id] = s.next
	return time.Now().UTC()
}

func pageOf[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }

func (s *MemoryStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *MemoryStore) CreateCategory(ctx context.Context, c *domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.Name == c.Name {
			return nil, ErrCategoryNameExists
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = s.stamp(c.ID)
	s.categories[c.ID] = *c
	out := *c
	return &out, nil
}

func (s *MemoryStore) GetCategoryByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return pageOf(all, params.Limit, params.Offset), len(all), nil
}

func (s *MemoryStore) UpdateCategory(ctx context.Context, c *domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.categories[c.ID]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	for id, existing := range s.categories {
		if id != c.ID && existing.Name == c.Name {
			return nil, ErrCategoryNameExists
		}
	}
	current.Name, current.Slug = c.Name, c.Slug
	s.categories[c.ID] = current
	return &current, nil
}

func (s *MemoryStore) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	delete(s.categories, id)
	delete(s.seq, id)
	return nil
}

func (s *MemoryStore) CreateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = s.stamp(p.ID)
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = *p
	out := *p
	return &out, nil
}

func (s *MemoryStore) GetProductByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Product
	for _, p := range s.products {
		if params.CategoryID == nil || p.CategoryID == *params.CategoryID {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return s.seq[all[i].ID] < s.seq[all[j].ID] })
	return pageOf(all, params.Limit, params.Offset), len(all), nil
}

func (s *MemoryStore) UpdateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.products[p.ID]
	if !ok {
		return nil, ErrProductNotFound
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = *p
	out := *p
	return &out, nil
}

func (s *MemoryStore) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(s.products, id)
	delete(s.seq, id)
	return nil
}

func (s *MemoryStore) DeleteProductsByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for id, p := range s.products {
		if p.CategoryID == categoryID {
			delete(s.products, id)
			delete(s.seq, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateReview(ctx context.Context, r *domain.Review) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = s.stamp(r.ID)
	s.reviews[r.ID] = *r
	out := *r
	return &out, nil
}

func (s *MemoryStore) GetReviewByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, ErrReviewNotFound
	}
	return &r, nil
}

func (s *MemoryStore) ListReviews(ctx context.Context, params ListReviewsParams) ([]domain.Review, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Review
	for _, r := range s.reviews {
		if params.ProductID == nil || r.ProductID == *params.ProductID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return s.seq[all[i].ID] < s.seq[all[j].ID] })
	return pageOf(all, params.Limit, params.Offset), len(all), nil
}

func (s *MemoryStore) UpdateReview(ctx context.Context, r *domain.Review) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.reviews[r.ID]
	if !ok {
		return nil, ErrReviewNotFound
	}
	current.Title, current.Text, current.Rating = r.Title, r.Text, r.Rating
	s.reviews[r.ID] = current
	return &current, nil
}

func (s *MemoryStore) DeleteReview(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.reviews[id]; !ok {
		return ErrReviewNotFound
	}
	delete(s.reviews, id)
	delete(s.seq, id)
	return nil
}

func (s *MemoryStore) DeleteReviewsByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range s.reviews {
		if r.ProductID == productID {
			delete(s.reviews, id)
			delete(s.seq, id)
			n++
		}
	}
	return n, nil
}

var _ Backend = (*MemoryStore)(nil)
