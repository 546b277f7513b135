package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"catalog-service/internal/domain"
)

// Collection names used by MongoStore.
const (
	categoriesCollection = "categories"
	productsCollection   = "products"
	reviewsCollection    = "reviews"
)

type categoryDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Slug      string    `bson:"slug"`
	CreatedAt time.Time `bson:"createdAt"`
}

type productDocument struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description *string   `bson:"description,omitempty"`
	Price       float64   `bson:"price"`
	Category    string    `bson:"category"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

type reviewDocument struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Text      string    `bson:"text"`
	Rating    int       `bson:"rating"`
	Product   string    `bson:"product"`
	CreatedAt time.Time `bson:"createdAt"`
}

// MongoStore implements Backend on a MongoDB database. Ids are stored as the
// canonical string form of a UUID.
type MongoStore struct {
	client       *mongo.Client
	categories   *mongo.Collection
	products     *mongo.Collection
	reviews      *mongo.Collection
	transactions bool
}

// ConnectMongo opens a client and verifies the server is reachable.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("store: mongo ping: %w", err)
	}
	return client, nil
}

// NewMongoStore creates a MongoStore over db. When transactions is true,
// WithinTransaction uses a session transaction, which needs a replica set.
func NewMongoStore(client *mongo.Client, db *mongo.Database, transactions bool) *MongoStore {
	return &MongoStore{
		client:       client,
		categories:   db.Collection(categoriesCollection),
		products:     db.Collection(productsCollection),
		reviews:      db.Collection(reviewsCollection),
		transactions: transactions,
	}
}

// EnsureIndexes creates the unique category name index and the foreign key
// indexes used by the reverse lookups and bulk deletes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.categories.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("store: create categories.name index: %w", err)
	}
	if _, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "category", Value: 1}}}); err != nil {
		return fmt.Errorf("store: create products.category index: %w", err)
	}
	if _, err := s.reviews.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "product", Value: 1}}}); err != nil {
		return fmt.Errorf("store: create reviews.product index: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// WithinTransaction runs fn in a session transaction when enabled. Otherwise
// fn runs directly and each write commits on its own.
func (s *MongoStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("store: failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// now is truncated to the millisecond precision BSON dates keep.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: malformed document id %q: %w", raw, err)
	}
	return id, nil
}

func pageOptions(limit, offset int) *options.FindOptions {
	opts := options.Find().SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func deletedOrNotFound(res *mongo.DeleteResult, err error, notFound error, op string) error {
	if err != nil {
		return fmt.Errorf("store: %s failed: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return notFound
	}
	return nil
}

// --- CategoryStorer Implementation ---

func (d categoryDocument) toDomain() (*domain.Category, error) {
	id, err := parseID(d.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Category{ID: id, Name: d.Name, Slug: d.Slug, CreatedAt: d.CreatedAt}, nil
}

func (s *MongoStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	doc := categoryDocument{ID: category.ID.String(), Name: category.Name, Slug: category.Slug, CreatedAt: now()}
	if _, err := s.categories.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrCategoryNameExists
		}
		return nil, fmt.Errorf("store: CreateCategory failed to insert: %w", err)
	}
	return doc.toDomain()
}

func (s *MongoStore) GetCategoryByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	var doc categoryDocument
	if err := s.categories.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetCategoryByID failed: %w", err)
	}
	return doc.toDomain()
}

func (s *MongoStore) ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) {
	total, err := s.categories.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to count categories: %w", err)
	}
	if total == 0 {
		return []domain.Category{}, 0, nil
	}

	cursor, err := s.categories.Find(ctx, bson.M{}, pageOptions(params.Limit, params.Offset).SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to query categories: %w", err)
	}
	var docs []categoryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to decode categories: %w", err)
	}

	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		c, err := doc.toDomain()
		if err != nil {
			return nil, 0, err
		}
		categories = append(categories, *c)
	}
	return categories, int(total), nil
}

func (s *MongoStore) UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	var doc categoryDocument
	err := s.categories.FindOneAndUpdate(ctx,
		bson.M{"_id": category.ID.String()},
		bson.M{"$set": bson.M{"name": category.Name, "slug": category.Slug}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCategoryNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrCategoryNameExists
		}
		return nil, fmt.Errorf("store: UpdateCategory failed: %w", err)
	}
	return doc.toDomain()
}

func (s *MongoStore) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	res, err := s.categories.DeleteOne(ctx, bson.M{"_id": id.String()})
	return deletedOrNotFound(res, err, ErrCategoryNotFound, "DeleteCategory")
}

// --- ProductStorer Implementation ---

func (d productDocument) toDomain() (*domain.Product, error) {
	id, err := parseID(d.ID)
	if err != nil {
		return nil, err
	}
	categoryID, err := parseID(d.Category)
	if err != nil {
		return nil, err
	}
	return &domain.Product{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		CategoryID:  categoryID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// CreateProduct does not check the category reference; MongoDB has no
// foreign keys, so callers verify it first.
func (s *MongoStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	ts := now()
	doc := productDocument{
		ID:          product.ID.String(),
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Category:    product.CategoryID.String(),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if _, err := s.products.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to insert: %w", err)
	}
	return doc.toDomain()
}

func (s *MongoStore) GetProductByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var doc productDocument
	if err := s.products.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed: %w", err)
	}
	return doc.toDomain()
}

func (s *MongoStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	filter := bson.M{}
	if params.CategoryID != nil {
		filter["category"] = params.CategoryID.String()
	}

	total, err := s.products.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to count products: %w", err)
	}
	if total == 0 {
		return []domain.Product{}, 0, nil
	}

	opts := pageOptions(params.Limit, params.Offset).SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to query products: %w", err)
	}
	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to decode products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.toDomain()
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, int(total), nil
}

func (s *MongoStore) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	set := bson.M{
		"name":      product.Name,
		"price":     product.Price,
		"category":  product.CategoryID.String(),
		"updatedAt": now(),
	}
	update := bson.M{"$set": set}
	if product.Description != nil {
		set["description"] = *product.Description
	} else {
		update["$unset"] = bson.M{"description": ""}
	}

	var doc productDocument
	err := s.products.FindOneAndUpdate(ctx,
		bson.M{"_id": product.ID.String()},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: UpdateProduct failed: %w", err)
	}
	return doc.toDomain()
}

func (s *MongoStore) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	res, err := s.products.DeleteOne(ctx, bson.M{"_id": id.String()})
	return deletedOrNotFound(res, err, ErrProductNotFound, "DeleteProduct")
}

func (s *MongoStore) DeleteProductsByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	res, err := s.products.DeleteMany(ctx, bson.M{"category": categoryID.String()})
	if err != nil {
		return 0, fmt.Errorf("store: DeleteProductsByCategory failed: %w", err)
	}
	return res.DeletedCount, nil
}

// --- ReviewStorer Implementation ---

func (d reviewDocument) toDomain() (*domain.Review, error) {
	id, err := parseID(d.ID)
	if err != nil {
		return nil, err
	}
	productID, err := parseID(d.Product)
	if err != nil {
		return nil, err
	}
	return &domain.Review{
		ID:        id,
		Title:     d.Title,
		Text:      d.Text,
		Rating:    d.Rating,
		ProductID: productID,
		CreatedAt: d.CreatedAt,
	}, nil
}

func (s *MongoStore) CreateReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	doc := reviewDocument{
		ID:        review.ID.String(),
		Title:     review.Title,
		Text:      review.Text,
		Rating:    review.Rating,
		Product:   review.ProductID.String(),
		CreatedAt: now(),
	}
	if _, err := s.reviews.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("store: CreateReview failed to insert: %w", err)
	}
	return doc.toDomain()
}

func (s *MongoStore) GetReviewByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	var doc reviewDocument
	if err := s.reviews.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("store: GetReviewByID failed: %w", err)
	}
	return doc.toDomain()
}

func (s *MongoStore) ListReviews(ctx context.Context, params ListReviewsParams) ([]domain.Review, int, error) {
	filter := bson.M{}
	if params.ProductID != nil {
		filter["product"] = params.ProductID.String()
	}

	total, err := s.reviews.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListReviews failed to count reviews: %w", err)
	}
	if total == 0 {
		return []domain.Review{}, 0, nil
	}

	opts := pageOptions(params.Limit, params.Offset).SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.reviews.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListReviews failed to query reviews: %w", err)
	}
	var docs []reviewDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("store: ListReviews failed to decode reviews: %w", err)
	}

	reviews := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		r, err := doc.toDomain()
		if err != nil {
			return nil, 0, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, int(total), nil
}

func (s *MongoStore) UpdateReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	var doc reviewDocument
	err := s.reviews.FindOneAndUpdate(ctx,
		bson.M{"_id": review.ID.String()},
		bson.M{"$set": bson.M{"title": review.Title, "text": review.Text, "rating": review.Rating}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("store: UpdateReview failed: %w", err)
	}
	return doc.toDomain()
}

func (s *MongoStore) DeleteReview(ctx context.Context, id uuid.UUID) error {
	res, err := s.reviews.DeleteOne(ctx, bson.M{"_id": id.String()})
	return deletedOrNotFound(res, err, ErrReviewNotFound, "DeleteReview")
}

func (s *MongoStore) DeleteReviewsByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	res, err := s.reviews.DeleteMany(ctx, bson.M{"product": productID.String()})
	if err != nil {
		return 0, fmt.Errorf("store: DeleteReviewsByProduct failed: %w", err)
	}
	return res.DeletedCount, nil
}

var _ Backend = (*MongoStore)(nil)
