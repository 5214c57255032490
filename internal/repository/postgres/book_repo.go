package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// bookRepository implements repository.BookRepository for PostgreSQL.
type bookRepository struct {
	db *DB
}

// NewBookRepository creates a new PostgreSQL book repository.
func NewBookRepository(db *DB) repository.BookRepository {
	return &bookRepository{db: db}
}

const bookColumns = `id, title, author, isbn, category, available, created_at, updated_at`

// scanBook scans one book row.
func scanBook(row pgx.Row) (*domain.Book, error) {
	book := &domain.Book{}
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.Category,
		&book.Available,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return book, nil
}

// Create creates a new book.
func (r *bookRepository) Create(ctx context.Context, book *domain.Book) error {
	query := `
		INSERT INTO books (title, author, isbn, category, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		book.Title,
		book.Author,
		book.ISBN,
		book.Category,
		book.Available,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrISBNTaken, book.ISBN)
		}
		return fmt.Errorf("failed to create book: %w", err)
	}

	return nil
}

// GetByID retrieves a book by ID.
func (r *bookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book by ID: %w", err)
	}
	return book, nil
}

// GetByISBN retrieves a book by its normalized ISBN.
func (r *bookRepository) GetByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE isbn = $1`

	book, err := scanBook(r.db.Pool.QueryRow(ctx, query, domain.NormalizeISBN(isbn)))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book by ISBN: %w", err)
	}
	return book, nil
}

// Update updates a book's catalog fields. The availability flag is left
// alone: MarkLoaned/MarkAvailable are its only writers.
func (r *bookRepository) Update(ctx context.Context, book *domain.Book) error {
	query := `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, category = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := r.db.Pool.Exec(ctx, query,
		book.Title,
		book.Author,
		book.ISBN,
		book.Category,
		time.Now().UTC(),
		book.ID,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrISBNTaken, book.ISBN)
		}
		return fmt.Errorf("failed to update book: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}

	return nil
}

// Delete deletes a book by ID.
func (r *bookRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}

	return nil
}

// List returns all books with pagination.
func (r *bookRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.Book], error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM books`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}

	query := `SELECT ` + bookColumns + ` FROM books ORDER BY title LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	books, err := collectBooks(rows)
	if err != nil {
		return nil, err
	}

	return &repository.ListResult[domain.Book]{
		Items:  books,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// ListAvailable returns all books whose availability flag is set.
func (r *bookRepository) ListAvailable(ctx context.Context) ([]*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE available ORDER BY title`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list available books: %w", err)
	}
	defer rows.Close()

	return collectBooks(rows)
}

// ListByCategory returns all books in a category.
func (r *bookRepository) ListByCategory(ctx context.Context, category string) ([]*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE category = $1 ORDER BY title`

	rows, err := r.db.Pool.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list books by category: %w", err)
	}
	defer rows.Close()

	return collectBooks(rows)
}

// ListRecent returns the most recently added books.
func (r *bookRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books ORDER BY created_at DESC, id DESC LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent books: %w", err)
	}
	defer rows.Close()

	return collectBooks(rows)
}

// Search returns books matching the given substring in any search field.
func (r *bookRepository) Search(ctx context.Context, search string) ([]*domain.Book, error) {
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE title ILIKE $1 OR author ILIKE $1 OR isbn ILIKE $1 OR category ILIKE $1
		ORDER BY title
	`

	rows, err := r.db.Pool.Query(ctx, query, "%"+search+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search books: %w", err)
	}
	defer rows.Close()

	return collectBooks(rows)
}

// ExistsByISBN checks if a book with the given ISBN exists.
func (r *bookRepository) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM books WHERE isbn = $1`, domain.NormalizeISBN(isbn),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check ISBN existence: %w", err)
	}
	return count > 0, nil
}

// MarkLoaned atomically flips available from true to false.
func (r *bookRepository) MarkLoaned(ctx context.Context, bookID int64) error {
	query := `UPDATE books SET available = FALSE, updated_at = $1 WHERE id = $2 AND available`

	result, err := r.db.Pool.Exec(ctx, query, time.Now().UTC(), bookID)
	if err != nil {
		return fmt.Errorf("failed to mark book loaned: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a missing book from one already on loan.
		var count int
		if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM books WHERE id = $1`, bookID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check book existence: %w", err)
		}
		if count == 0 {
			return domain.ErrBookNotFound
		}
		return domain.ErrBookUnavailable
	}

	return nil
}

// MarkAvailable flips available back to true.
func (r *bookRepository) MarkAvailable(ctx context.Context, bookID int64) error {
	query := `UPDATE books SET available = TRUE, updated_at = $1 WHERE id = $2`

	result, err := r.db.Pool.Exec(ctx, query, time.Now().UTC(), bookID)
	if err != nil {
		return fmt.Errorf("failed to mark book available: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}

	return nil
}

// Stats returns catalog-level aggregate counts.
func (r *bookRepository) Stats(ctx context.Context) (*domain.BookStats, error) {
	stats := &domain.BookStats{BooksByCategory: make(map[string]int64)}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE available) FROM books
	`).Scan(&stats.TotalBooks, &stats.AvailableBooks)
	if err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}
	stats.LoanedBooks = stats.TotalBooks - stats.AvailableBooks

	rows, err := r.db.Pool.Query(ctx, `SELECT category, COUNT(*) FROM books GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count books by category: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.BooksByCategory[category] = count
	}

	return stats, rows.Err()
}

// collectBooks drains a book result set.
func collectBooks(rows pgx.Rows) ([]*domain.Book, error) {
	var books []*domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// Ensure bookRepository implements repository.BookRepository.
var _ repository.BookRepository = (*bookRepository)(nil)
