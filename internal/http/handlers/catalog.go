package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookstack/server/internal/model"
	"github.com/bookstack/server/internal/repo"
)

// CatalogHandler handles book, category and tag endpoints
type CatalogHandler struct {
	books      repo.BookRepo
	categories repo.CategoryRepo
	tags       repo.TagRepo
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(books repo.BookRepo, categories repo.CategoryRepo, tags repo.TagRepo) *CatalogHandler {
	return &CatalogHandler{books: books, categories: categories, tags: tags}
}

// bookRequest is the request body for creating or updating a book
type bookRequest struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Description string  `json:"description"`
	CategoryID  int64   `json:"category_id"`
	TagIDs      []int64 `json:"tag_ids"`
}

// bookResponse is the book object in API responses
type bookResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Description string     `json:"description"`
	CategoryID  int64      `json:"category_id,omitempty"`
	Tags        []tagEntry `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type tagEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newBookResponse(book model.Book) bookResponse {
	resp := bookResponse{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		CategoryID:  book.CategoryID,
		Tags:        []tagEntry{},
		CreatedAt:   book.CreatedAt,
		UpdatedAt:   book.UpdatedAt,
	}
	for _, t := range book.Tags {
		resp.Tags = append(resp.Tags, tagEntry{ID: t.ID, Name: t.Name})
	}
	return resp
}

// HandleCreateBook handles POST /books (protected)
func (h *CatalogHandler) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if req.Title == "" || req.Author == "" {
		respondWithError(w, http.StatusBadRequest, "title and author are required")
		return
	}

	book, err := h.books.Create(r.Context(), model.Book{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		CategoryID:  req.CategoryID,
	}, req.TagIDs)
	if err != nil {
		log.Printf("Failed to create book: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to create book")
		return
	}
	respondWithJSON(w, http.StatusCreated, newBookResponse(book))
}

// HandleGetBook handles GET /books/{id}
func (h *CatalogHandler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	book, err := h.books.GetByID(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		log.Printf("Failed to load book %d: %v", id, err)
		respondWithError(w, http.StatusInternalServerError, "failed to load book")
		return
	}
	respondWithJSON(w, http.StatusOK, newBookResponse(book))
}

// HandleListBooks handles GET /books with optional category, tag, search,
// limit and offset query parameters.
func (h *CatalogHandler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.BookFilter{
		CategoryID: queryInt(q.Get("category")),
		TagID:      queryInt(q.Get("tag")),
		Search:     strings.TrimSpace(q.Get("search")),
		Limit:      int(queryInt(q.Get("limit"))),
		Offset:     int(queryInt(q.Get("offset"))),
	}

	books, err := h.books.List(r.Context(), filter)
	if err != nil {
		log.Printf("Failed to list books: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to list books")
		return
	}

	resp := make([]bookResponse, 0, len(books))
	for _, b := range books {
		resp = append(resp, newBookResponse(b))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"books": resp})
}

// HandleUpdateBook handles PUT /books/{id} (protected)
func (h *CatalogHandler) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if req.Title == "" || req.Author == "" {
		respondWithError(w, http.StatusBadRequest, "title and author are required")
		return
	}

	book, err := h.books.Update(r.Context(), model.Book{
		ID:          id,
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		CategoryID:  req.CategoryID,
	}, req.TagIDs)
	if errors.Is(err, repo.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		log.Printf("Failed to update book %d: %v", id, err)
		respondWithError(w, http.StatusInternalServerError, "failed to update book")
		return
	}
	respondWithJSON(w, http.StatusOK, newBookResponse(book))
}

// HandleDeleteBook handles DELETE /books/{id} (protected)
func (h *CatalogHandler) HandleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	err = h.books.Delete(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		log.Printf("Failed to delete book %d: %v", id, err)
		respondWithError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// nameRequest is the request body for creating a category or tag
type nameRequest struct {
	Name string `json:"name"`
}

// HandleCreateCategory handles POST /categories (protected)
func (h *CatalogHandler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	category, err := h.categories.Create(r.Context(), name)
	if errors.Is(err, repo.ErrDuplicate) {
		respondWithError(w, http.StatusConflict, "category already exists")
		return
	}
	if err != nil {
		log.Printf("Failed to create category: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to create category")
		return
	}
	respondWithJSON(w, http.StatusCreated, tagEntry{ID: category.ID, Name: category.Name})
}

// HandleListCategories handles GET /categories
func (h *CatalogHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		log.Printf("Failed to list categories: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	entries := make([]tagEntry, 0, len(categories))
	for _, c := range categories {
		entries = append(entries, tagEntry{ID: c.ID, Name: c.Name})
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"categories": entries})
}

// HandleCreateTag handles POST /tags (protected)
func (h *CatalogHandler) HandleCreateTag(w http.ResponseWriter, r *http.Request) {
	name, ok := decodeName(w, r)
	if !ok {
		return
	}
	tag, err := h.tags.Create(r.Context(), name)
	if errors.Is(err, repo.ErrDuplicate) {
		respondWithError(w, http.StatusConflict, "tag already exists")
		return
	}
	if err != nil {
		log.Printf("Failed to create tag: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to create tag")
		return
	}
	respondWithJSON(w, http.StatusCreated, tagEntry{ID: tag.ID, Name: tag.Name})
}

// HandleListTags handles GET /tags
func (h *CatalogHandler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tags.List(r.Context())
	if err != nil {
		log.Printf("Failed to list tags: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to list tags")
		return
	}
	entries := make([]tagEntry, 0, len(tags))
	for _, t := range tags {
		entries = append(entries, tagEntry{ID: t.ID, Name: t.Name})
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"tags": entries})
}

func decodeName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "name is required")
		return "", false
	}
	return req.Name, true
}

func queryInt(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
