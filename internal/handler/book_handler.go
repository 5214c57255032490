package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/service"
)

// BookHandler handles catalog requests.
type BookHandler struct {
	books *service.BookService
}

// NewBookHandler creates a new BookHandler.
func NewBookHandler(books *service.BookService) *BookHandler {
	return &BookHandler{books: books}
}

type bookRequest struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	ISBN     string `json:"isbn"`
	Category string `json:"category"`
}

type bookListResponse struct {
	Books []*domain.Book `json:"books"`
	Total int64          `json:"total"`
}

// Create handles POST /api/books.
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.books.CreateBook(r.Context(), service.CreateBookInput{
		Title:    req.Title,
		Author:   req.Author,
		ISBN:     req.ISBN,
		Category: req.Category,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, out.Book)
}

// Get handles GET /api/books/{id}.
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	book, err := h.books.GetBook(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// GetByISBN handles GET /api/books/isbn/{isbn}.
func (h *BookHandler) GetByISBN(w http.ResponseWriter, r *http.Request) {
	book, err := h.books.GetBookByISBN(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// Update handles PUT /api/books/{id}.
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.books.UpdateBook(r.Context(), service.UpdateBookInput{
		BookID:   id,
		Title:    req.Title,
		Author:   req.Author,
		ISBN:     req.ISBN,
		Category: req.Category,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out.Book)
}

// Delete handles DELETE /api/books/{id}.
func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.books.DeleteBook(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/books.
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	out, err := h.books.ListBooks(r.Context(), service.ListBooksInput{Offset: offset, Limit: limit})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookListResponse{Books: out.Books, Total: out.Total})
}

// ListAvailable handles GET /api/books/available.
func (h *BookHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.ListAvailableBooks(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// ListByCategory handles GET /api/books/category/{category}.
func (h *BookHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.ListBooksByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// ListRecent handles GET /api/books/recent.
func (h *BookHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	books, err := h.books.ListRecentBooks(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// Search handles GET /api/books/search?q=.
func (h *BookHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("missing search query"))
		return
	}

	books, err := h.books.SearchBooks(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// Stats handles GET /api/books/stats.
func (h *BookHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.books.BookStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// pathID parses a numeric chi URL parameter, writing the error response
// on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid "+name))
		return 0, false
	}
	return id, true
}
