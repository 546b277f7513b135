package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"catalog-service/internal/domain"
	"catalog-service/internal/integrity"
	"catalog-service/internal/store"
)

const (
	defaultPageLimit = 25
	maxPageLimit     = 100
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler holds dependencies for HTTP handlers.
// Writes with derived fields or dependents go through the integrity manager;
// plain reads go to the storers directly.
type HTTPHandler struct {
	manager    *integrity.Manager
	categories store.CategoryStorer
	products   store.ProductStorer
	reviews    store.ReviewStorer
	pinger     Pinger
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(manager *integrity.Manager, stores store.Stores, pinger Pinger, logger *slog.Logger) *HTTPHandler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &HTTPHandler{
		manager:    manager,
		categories: stores.Categories,
		products:   stores.Products,
		reviews:    stores.Reviews,
		pinger:     pinger,
		validate:   validate,
		logger:     logger,
	}
}

// --- Helpers ---

// Response is the envelope of every successful reply.
type Response struct {
	Success    bool        `json:"success"`
	Count      *int        `json:"count,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Data       any         `json:"data"`
}

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// PageRef points at a neighbouring page of a list.
type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Pagination describes where a page sits in the full list.
type Pagination struct {
	Total int      `json:"total"`
	Next  *PageRef `json:"next,omitempty"`
	Prev  *PageRef `json:"prev,omitempty"`
}

func (h *HTTPHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, ErrorResponse{Success: false, Error: message})
}

func (h *HTTPHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *HTTPHandler) respondWithData(w http.ResponseWriter, code int, data any) {
	h.respondWithJSON(w, code, Response{Success: true, Data: data})
}

func (h *HTTPHandler) respondWithList(w http.ResponseWriter, data any, count int, pagination *Pagination) {
	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Count: &count, Pagination: pagination, Data: data})
}

func notFoundMessage(id string) string {
	return "Resource not found with id of " + id
}

// respondWithStoreError maps manager and store failures onto status codes.
// id names the record the request was about.
func (h *HTTPHandler) respondWithStoreError(w http.ResponseWriter, r *http.Request, err error, id string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, notFoundMessage(id))
	case errors.Is(err, store.ErrCategoryNameExists):
		h.respondWithError(w, http.StatusBadRequest, "Duplicate field value entered")
	case errors.Is(err, integrity.ErrDependencyDeletionFailed):
		h.logger.Error("dependent deletion failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to delete dependent records")
	default:
		h.logger.Error("store operation failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Server Error")
	}
}

// pathID parses a UUID route parameter. Unparsable ids are answered as not
// found, the same as ids that parse but match nothing.
func (h *HTTPHandler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.respondWithError(w, http.StatusNotFound, notFoundMessage(raw))
		return uuid.Nil, false
	}
	return id, true
}

// decodeAndValidate reads the JSON body into input and runs its validate tags.
func (h *HTTPHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, input any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	if v, ok := input.(interface{ normalize() }); ok {
		v.normalize()
	}
	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}

// pageParams reads page and limit from the query string.
func pageParams(r *http.Request) (page, limit int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page, err = strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	// page*limit must not overflow when turned into an offset.
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

func paginationFor(page, limit, total int) *Pagination {
	p := &Pagination{Total: total}
	if page*limit < total {
		p.Next = &PageRef{Page: page + 1, Limit: limit}
	}
	if page > 1 {
		p.Prev = &PageRef{Page: page - 1, Limit: limit}
	}
	return p
}

// --- Category Handlers ---

// CategoryInput defines the expected input for creating or renaming a category.
type CategoryInput struct {
	Name string `json:"name" validate:"required,max=50"`
}

func (in *CategoryInput) normalize() { in.Name = strings.TrimSpace(in.Name) }

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	created, err := h.manager.CreateCategory(r.Context(), &domain.Category{Name: input.Name})
	if err != nil {
		h.respondWithStoreError(w, r, err, "")
		return
	}
	h.respondWithData(w, http.StatusCreated, created)
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	categories, total, err := h.categories.ListCategories(r.Context(), store.ListCategoriesParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		h.respondWithStoreError(w, r, err, "")
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	h.respondWithList(w, categories, len(categories), paginationFor(page, limit, total))
}

func (h *HTTPHandler) GetCategoryByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	category, err := h.categories.GetCategoryByID(r.Context(), id)
	if err != nil {
		h.respondWithStoreError(w, r, err, id.String())
		return
	}
	h.respondWithData(w, http.StatusOK, category)
}

func (h *HTTPHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var input CategoryInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	updated, err := h.manager.UpdateCategory(r.Context(), &domain.Category{ID: id, Name: input.Name})
	if err != nil {
		h.respondWithStoreError(w, r, err, id.String())
		return
	}
	h.respondWithData(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.manager.DeleteCategory(r.Context(), id); err != nil {
		h.respondWithStoreError(w, r, err, id.String())
		return
	}
	h.logger.Info("category deleted", "category_id", id)
	h.respondWithData(w, http.StatusOK, struct{}{})
}

// --- Product Handlers ---

// ProductInput defines the expected input for creating a product. Category
// may be omitted when it comes from the route.
type ProductInput struct {
	Name        string    `json:"name" validate:"required,max=255"`
	Description *string   `json:"description"`
	Price       float64   `json:"price" validate:"gte=0"`
	CategoryID  uuid.UUID `json:"category"`
}

func (in *ProductInput) normalize() { in.Name = strings.TrimSpace(in.Name) }

func (in *ProductInput) product() *domain.Product {
	return &domain.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		CategoryID:  in.CategoryID,
	}
}

// ProductUpdateInput defines the expected input for updating a product. Only
// the fields present in the body change.
type ProductUpdateInput struct {
	Name        *string    `json:"name" validate:"omitnil,min=1,max=255"`
	Description *string    `json:"description"`
	Price       *float64   `json:"price" validate:"omitnil,gte=0"`
	CategoryID  *uuid.UUID `json:"category"`
}

func (in *ProductUpdateInput) normalize() {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}
	if input.CategoryID == uuid.Nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: category is required")
		return
	}
	h.createProduct(w, r, input.product())
}

// CreateCategoryProduct creates a product inside the category named by the route.
func (h *HTTPHandler) CreateCategoryProduct(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var input ProductInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}
	product := input.product()
	product.CategoryID = categoryID
	h.createProduct(w, r, product)
}

func (h *HTTPHandler) createProduct(w http.ResponseWriter, r *http.Request, product *domain.Product) {
	created, err := h.manager.CreateProduct(r.Context(), product)
	if err != nil {
		h.respondWithStoreError(w, r, err, product.CategoryID.String())
		return
	}
	h.respondWithData(w, http.StatusCreated, created)
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	products, total, err := h.products.ListProducts(r.Context(), store.ListProductsParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		h.respondWithStoreError(w, r, err, "")
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	h.respondWithList(w, products, len(products), paginationFor(page, limit, total))
}

// ListCategoryProducts returns every product of a category. An unknown
// category yields an empty list.
func (h *HTTPHandler) ListCategoryProducts(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	products, err := integrity.Collect(h.manager.ProductsOf(r.Context(), categoryID))
	if err != nil {
		h.respondWithStoreError(w, r, err, categoryID.String())
		return
	}
	h.respondWithList(w, products, len(products), nil)
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	product, err := h.products.GetProductByID(r.Context(), id)
	if err != nil {
		h.respondWithStoreError(w, r, err, id.String())
		return
	}
	h.respondWithData(w, http.StatusOK, product)
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var input ProductUpdateInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	updated, err := h.manager.PatchProduct(r.Context(), id, integrity.ProductChanges{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		CategoryID:  input.CategoryID,
	})
	if err != nil {
		h.respondWithStoreError(w, r, err, id.String())
		return
	}
	h.respondWithData(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.manager.DeleteProduct(r.Context(), id); err != nil {
		h.respondWithStoreError(w, r, err, id.String())
		return
	}
	h.respondWithData(w, http.StatusOK, struct{}{})
}

// --- Review Handlers ---

// ReviewInput defines the expected input for creating or updating a review.
type ReviewInput struct {
	Title  string `json:"title" validate:"required,max=100"`
	Text   string `json:"text" validate:"required"`
	Rating int    `json:"rating" validate:"required,min=1,max=10"`
}

func (in *ReviewInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Text = strings.TrimSpace(in.Text)
}

func (h *HTTPHandler) CreateProductReview(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var input ReviewInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	created, err := h.manager.CreateReview(r.Context(), &domain.Review{
		Title:     input.Title,
		Text:      input.Text,
		Rating:    input.Rating,
		ProductID: productID,
	})
	if err != nil {
		h.respondWithStoreError(w, r, err, productID.String())
		return
	}
	h.respondWithData(w, http.StatusCreated, created)
}

func (h *HTTPHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	reviews, total, err := h.reviews.ListReviews(r.Context(), store.ListReviewsParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		h.respondWithStoreError(w, r, err, "")
		return
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	h.respondWithList(w, reviews, len(reviews), paginationFor(page, limit, total))
}

// ListProductReviews returns every review of a product, unpaginated.
func (h *HTTPHandler) ListProductReviews(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	reviews, err := integrity.Collect(h.manager.ReviewsOf(r.Context(), productID))
	if err != nil {
		h.respondWithStoreError(w, r, err, productID.String())
		return
	}
	h.respondWithList(w, reviews, len(reviews), nil)
}

func (h *HTTPHandler) GetReviewByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	review, err := h.reviews.GetReviewByID(r.Context(), id)
	if err != nil {
		h.respondWithStoreError(w, r, err, id.String())
		return
	}
	h.respondWithData(w, http.StatusOK, review)
}

func (h *HTTPHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var input ReviewInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}

	updated, err := h.reviews.UpdateReview(r.Context(), &domain.Review{
		ID:     id,
		Title:  input.Title,
		Text:   input.Text,
		Rating: input.Rating,
	})
	if err != nil {
		h.respondWithStoreError(w, r, err, id.String())
		return
	}
	h.respondWithData(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.reviews.DeleteReview(r.Context(), id); err != nil {
		h.respondWithStoreError(w, r, err, id.String())
		return
	}
	h.respondWithData(w, http.StatusOK, struct{}{})
}

// --- Health ---

func (h *HTTPHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		h.respondWithError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	h.respondWithData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1/categories", func(r chi.Router) {
		r.Post("/", h.CreateCategory)
		r.Get("/", h.ListCategories)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCategoryByID)
			r.Put("/", h.UpdateCategory)
			r.Delete("/", h.DeleteCategory)
			r.Get("/products", h.ListCategoryProducts)
			r.Post("/products", h.CreateCategoryProduct)
		})
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)
		r.Get("/", h.ListProducts)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProductByID)
			r.Put("/", h.UpdateProduct)
			r.Delete("/", h.DeleteProduct)
			r.Get("/reviews", h.ListProductReviews)
			r.Post("/reviews", h.CreateProductReview)
		})
	})

	r.Route("/api/v1/reviews", func(r chi.Router) {
		r.Get("/", h.ListReviews)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetReviewByID)
			r.Put("/", h.UpdateReview)
			r.Delete("/", h.DeleteReview)
		})
	})
}
