package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// BookService handles catalog operations.
type BookService struct {
	bookRepo repository.BookRepository
	loanRepo repository.LoanRepository
	logger   zerolog.Logger
}

// NewBookService creates a new BookService.
func NewBookService(
	bookRepo repository.BookRepository,
	loanRepo repository.LoanRepository,
	logger zerolog.Logger,
) *BookService {
	return &BookService{
		bookRepo: bookRepo,
		loanRepo: loanRepo,
		logger:   logger.With().Str("service", "book").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// CreateBookInput contains the data needed to add a book.
type CreateBookInput struct {
	Title    string
	Author   string
	ISBN     string
	Category string
}

// CreateBookOutput contains the result of adding a book.
type CreateBookOutput struct {
	Book *domain.Book
}

// UpdateBookInput contains the data needed to update a book.
type UpdateBookInput struct {
	BookID   int64
	Title    string
	Author   string
	ISBN     string
	Category string
}

// UpdateBookOutput contains the result of updating a book.
type UpdateBookOutput struct {
	Book *domain.Book
}

// ListBooksInput contains pagination options for listing books.
type ListBooksInput struct {
	Offset int
	Limit  int
}

// ListBooksOutput contains the result of listing books.
type ListBooksOutput struct {
	Books []*domain.Book
	Total int64
}

// =============================================================================
// Service Methods
// =============================================================================

// CreateBook adds a book to the catalog, initially available.
func (s *BookService) CreateBook(ctx context.Context, input CreateBookInput) (*CreateBookOutput, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, ErrInvalidTitle
	}
	if strings.TrimSpace(input.Author) == "" {
		return nil, ErrInvalidAuthor
	}
	if !domain.ValidISBN(input.ISBN) {
		return nil, domain.ErrInvalidISBN
	}

	isbn := domain.NormalizeISBN(input.ISBN)

	exists, err := s.bookRepo.ExistsByISBN(ctx, isbn)
	if err != nil {
		s.logger.Error().Err(err).Str("isbn", isbn).Msg("failed to check ISBN existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, domain.ErrISBNTaken
	}

	book := domain.NewBook(strings.TrimSpace(input.Title), strings.TrimSpace(input.Author), isbn, strings.TrimSpace(input.Category))

	if err := s.bookRepo.Create(ctx, book); err != nil {
		if errors.Is(err, domain.ErrISBNTaken) {
			return nil, domain.ErrISBNTaken
		}
		s.logger.Error().Err(err).Str("isbn", isbn).Msg("failed to create book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("book_id", book.ID).
		Str("title", book.Title).
		Str("isbn", book.ISBN).
		Msg("book added")

	return &CreateBookOutput{Book: book}, nil
}

// GetBook retrieves a book by ID.
func (s *BookService) GetBook(ctx context.Context, bookID int64) (*domain.Book, error) {
	book, err := s.bookRepo.GetByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return nil, domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Int64("book_id", bookID).Msg("failed to get book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return book, nil
}

// GetBookByISBN retrieves a book by ISBN.
func (s *BookService) GetBookByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	book, err := s.bookRepo.GetByISBN(ctx, isbn)
	if err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return nil, domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Str("isbn", isbn).Msg("failed to get book by ISBN")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return book, nil
}

// UpdateBook updates a book's catalog fields.
func (s *BookService) UpdateBook(ctx context.Context, input UpdateBookInput) (*UpdateBookOutput, error) {
	book, err := s.bookRepo.GetByID(ctx, input.BookID)
	if err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return nil, domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Int64("book_id", input.BookID).Msg("failed to get book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if input.Title != "" {
		book.Title = strings.TrimSpace(input.Title)
	}
	if input.Author != "" {
		book.Author = strings.TrimSpace(input.Author)
	}
	if input.ISBN != "" {
		if !domain.ValidISBN(input.ISBN) {
			return nil, domain.ErrInvalidISBN
		}
		book.ISBN = domain.NormalizeISBN(input.ISBN)
	}
	if input.Category != "" {
		book.Category = strings.TrimSpace(input.Category)
	}

	if err := s.bookRepo.Update(ctx, book); err != nil {
		if errors.Is(err, domain.ErrISBNTaken) {
			return nil, domain.ErrISBNTaken
		}
		if errors.Is(err, domain.ErrBookNotFound) {
			return nil, domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Int64("book_id", input.BookID).Msg("failed to update book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Int64("book_id", book.ID).Msg("book updated")

	return &UpdateBookOutput{Book: book}, nil
}

// DeleteBook removes a book from the catalog. A book with an open loan
// cannot be deleted.
func (s *BookService) DeleteBook(ctx context.Context, bookID int64) error {
	_, err := s.loanRepo.GetOpenByBook(ctx, bookID)
	if err == nil {
		return domain.ErrBookUnavailable
	}
	if !errors.Is(err, domain.ErrLoanNotFound) {
		s.logger.Error().Err(err).Int64("book_id", bookID).Msg("failed to check open loan")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.bookRepo.Delete(ctx, bookID); err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Int64("book_id", bookID).Msg("failed to delete book")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Int64("book_id", bookID).Msg("book deleted")
	return nil
}

// ListBooks returns books with pagination.
func (s *BookService) ListBooks(ctx context.Context, input ListBooksInput) (*ListBooksOutput, error) {
	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	result, err := s.bookRepo.List(ctx, repository.ListOptions{Offset: input.Offset, Limit: limit})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list books")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &ListBooksOutput{Books: result.Items, Total: result.Total}, nil
}

// ListAvailableBooks returns all books not currently on loan.
func (s *BookService) ListAvailableBooks(ctx context.Context) ([]*domain.Book, error) {
	books, err := s.bookRepo.ListAvailable(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list available books")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return books, nil
}

// ListBooksByCategory returns all books in a category.
func (s *BookService) ListBooksByCategory(ctx context.Context, category string) ([]*domain.Book, error) {
	books, err := s.bookRepo.ListByCategory(ctx, category)
	if err != nil {
		s.logger.Error().Err(err).Str("category", category).Msg("failed to list books by category")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return books, nil
}

// ListRecentBooks returns the most recently added books.
func (s *BookService) ListRecentBooks(ctx context.Context, limit int) ([]*domain.Book, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	books, err := s.bookRepo.ListRecent(ctx, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list recent books")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return books, nil
}

// SearchBooks returns books matching the given substring.
func (s *BookService) SearchBooks(ctx context.Context, query string) ([]*domain.Book, error) {
	books, err := s.bookRepo.Search(ctx, query)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to search books")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return books, nil
}

// BookStats returns catalog-level aggregate counts.
func (s *BookService) BookStats(ctx context.Context) (*domain.BookStats, error) {
	stats, err := s.bookRepo.Stats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to get book stats")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return stats, nil
}
