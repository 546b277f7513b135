package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"catalog-service/internal/domain"
)

// PostgreSQL error codes the store translates.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore implements Backend using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// conn returns the transaction bound to ctx, if any, else the pool.
func (s *PostgresStore) conn(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isPQError(err error, code string) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == code {
		return pqErr, true
	}
	return nil, false
}

func isCategoryNameViolation(err error) bool {
	pqErr, ok := isPQError(err, pqUniqueViolation)
	if !ok {
		return false
	}
	return strings.Contains(pqErr.Constraint, "categories_name_key") || strings.Contains(pqErr.Detail, "Key (name)")
}

// --- CategoryStorer Implementation ---

const categoryColumns = "id, name, slug, created_at"

func scanCategory(row rowScanner) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	query := `
		INSERT INTO categories (id, name, slug)
		VALUES ($1, $2, $3)
		RETURNING ` + categoryColumns + `;`

	created, err := scanCategory(s.conn(ctx).QueryRowContext(ctx, query, category.ID, category.Name, category.Slug))
	if err != nil {
		if isCategoryNameViolation(err) {
			return nil, ErrCategoryNameExists
		}
		return nil, fmt.Errorf("store: CreateCategory failed to scan row: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetCategoryByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1;`
	category, err := scanCategory(s.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetCategoryByID failed to scan row: %w", err)
	}
	return category, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) {
	q := s.conn(ctx)

	var totalCount int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories;`).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to count categories: %w", err)
	}
	if totalCount == 0 {
		return []domain.Category{}, 0, nil
	}

	query := `SELECT ` + categoryColumns + ` FROM categories ORDER BY name ASC LIMIT $1 OFFSET $2;`
	rows, err := q.QueryContext(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, params.Limit)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: ListCategories failed to scan category row: %w", err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories iteration error: %w", err)
	}
	return categories, totalCount, nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	query := `
		UPDATE categories
		SET name = $1, slug = $2
		WHERE id = $3
		RETURNING ` + categoryColumns + `;`

	updated, err := scanCategory(s.conn(ctx).QueryRowContext(ctx, query, category.Name, category.Slug, category.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		if isCategoryNameViolation(err) {
			return nil, ErrCategoryNameExists
		}
		return nil, fmt.Errorf("store: UpdateCategory failed to scan row: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, s.conn(ctx), `DELETE FROM categories WHERE id = $1;`, id, ErrCategoryNotFound, "DeleteCategory")
}

// --- ProductStorer Implementation ---

const productColumns = "id, name, description, price, category_id, created_at, updated_at"

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	query := `
		INSERT INTO products (id, name, description, price, category_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + productColumns + `;`

	created, err := scanProduct(s.conn(ctx).QueryRowContext(ctx, query,
		product.ID, product.Name, product.Description, product.Price, product.CategoryID))
	if err != nil {
		if _, ok := isPQError(err, pqForeignKeyViolation); ok {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1;`
	product, err := scanProduct(s.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}
	return product, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	q := s.conn(ctx)

	var (
		where string
		args  []any
	)
	if params.CategoryID != nil {
		where = " WHERE category_id = $1"
		args = append(args, *params.CategoryID)
	}

	var totalCount int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM products"+where+";", args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to count products: %w", err)
	}
	if totalCount == 0 {
		return []domain.Product{}, 0, nil
	}

	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d;",
		productColumns, where, len(args)+1, len(args)+2)
	rows, err := q.QueryContext(ctx, query, append(args, params.Limit, params.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, params.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: ListProducts failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts iteration error: %w", err)
	}
	return products, totalCount, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, category_id = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
		RETURNING ` + productColumns + `;`

	updated, err := scanProduct(s.conn(ctx).QueryRowContext(ctx, query,
		product.Name, product.Description, product.Price, product.CategoryID, product.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		if _, ok := isPQError(err, pqForeignKeyViolation); ok {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: UpdateProduct failed to scan row: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, s.conn(ctx), `DELETE FROM products WHERE id = $1;`, id, ErrProductNotFound, "DeleteProduct")
}

func (s *PostgresStore) DeleteProductsByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	return deleteMany(ctx, s.conn(ctx), `DELETE FROM products WHERE category_id = $1;`, categoryID, "DeleteProductsByCategory")
}

// --- ReviewStorer Implementation ---

const reviewColumns = "id, title, text, rating, product_id, created_at"

func scanReview(row rowScanner) (*domain.Review, error) {
	var r domain.Review
	if err := row.Scan(&r.ID, &r.Title, &r.Text, &r.Rating, &r.ProductID, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	query := `
		INSERT INTO reviews (id, title, text, rating, product_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + reviewColumns + `;`

	created, err := scanReview(s.conn(ctx).QueryRowContext(ctx, query,
		review.ID, review.Title, review.Text, review.Rating, review.ProductID))
	if err != nil {
		if _, ok := isPQError(err, pqForeignKeyViolation); ok {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: CreateReview failed to scan row: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetReviewByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1;`
	review, err := scanReview(s.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("store: GetReviewByID failed to scan row: %w", err)
	}
	return review, nil
}

func (s *PostgresStore) ListReviews(ctx context.Context, params ListReviewsParams) ([]domain.Review, int, error) {
	q := s.conn(ctx)

	var (
		where string
		args  []any
	)
	if params.ProductID != nil {
		where = " WHERE product_id = $1"
		args = append(args, *params.ProductID)
	}

	var totalCount int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews"+where+";", args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListReviews failed to count reviews: %w", err)
	}
	if totalCount == 0 {
		return []domain.Review{}, 0, nil
	}

	query := fmt.Sprintf("SELECT %s FROM reviews%s ORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d;",
		reviewColumns, where, len(args)+1, len(args)+2)
	rows, err := q.QueryContext(ctx, query, append(args, params.Limit, params.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListReviews failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0, params.Limit)
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: ListReviews failed to scan review row: %w", err)
		}
		reviews = append(reviews, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListReviews iteration error: %w", err)
	}
	return reviews, totalCount, nil
}

func (s *PostgresStore) UpdateReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	query := `
		UPDATE reviews
		SET title = $1, text = $2, rating = $3
		WHERE id = $4
		RETURNING ` + reviewColumns + `;`

	updated, err := scanReview(s.conn(ctx).QueryRowContext(ctx, query, review.Title, review.Text, review.Rating, review.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("store: UpdateReview failed to scan row: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteReview(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, s.conn(ctx), `DELETE FROM reviews WHERE id = $1;`, id, ErrReviewNotFound, "DeleteReview")
}

func (s *PostgresStore) DeleteReviewsByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	return deleteMany(ctx, s.conn(ctx), `DELETE FROM reviews WHERE product_id = $1;`, productID, "DeleteReviewsByProduct")
}

// --- Shared helpers ---

func deleteByID(ctx context.Context, q querier, query string, id uuid.UUID, notFound error, op string) error {
	rowsAffected, err := deleteMany(ctx, q, query, id, op)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func deleteMany(ctx context.Context, q querier, query string, id uuid.UUID, op string) (int64, error) {
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("store: %s failed to execute delete: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: %s failed to get rows affected: %w", op, err)
	}
	return rowsAffected, nil
}

var _ Backend = (*PostgresStore)(nil)
