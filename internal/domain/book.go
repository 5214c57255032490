package domain

import (
	"strings"
	"time"
)

// Book represents a circulating catalog item.
// The availability flag is the single source of truth for lending state:
// it is true iff no open loan references this book. Only the repository
// conditional updates driven by the loan service may flip it.
type Book struct {
	// ID is the unique identifier for the book (auto-generated).
	ID int64 `json:"id"`

	// Title of the book. Required.
	Title string `json:"title"`

	// Author of the book. Required.
	Author string `json:"author"`

	// ISBN is the unique identifier, stored digits-only after
	// normalization (10 or 13 digits).
	ISBN string `json:"isbn"`

	// Category is a free-form classification used for browsing and stats.
	Category string `json:"category"`

	// Available is true iff there is no currently-open loan for this book.
	Available bool `json:"available"`

	// CreatedAt is the timestamp when the book was added to the catalog.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the book was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBook creates a new available Book. The ISBN must already be normalized
// and validated by the caller (see NormalizeISBN).
func NewBook(title, author, isbn, category string) *Book {
	now := time.Now().UTC()
	return &Book{
		Title:     title,
		Author:    author,
		ISBN:      isbn,
		Category:  category,
		Available: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeISBN strips all non-digit characters from an ISBN.
// The result is valid when it is exactly 10 or 13 digits long.
func NormalizeISBN(isbn string) string {
	var b strings.Builder
	for _, r := range isbn {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidISBN reports whether the raw ISBN normalizes to 10 or 13 digits.
func ValidISBN(isbn string) bool {
	n := len(NormalizeISBN(isbn))
	return n == 10 || n == 13
}

// BookStats holds catalog-level aggregate counts.
type BookStats struct {
	// TotalBooks is the number of books in the catalog.
	TotalBooks int64 `json:"total_books"`

	// AvailableBooks is the number of books not currently on loan.
	AvailableBooks int64 `json:"available_books"`

	// LoanedBooks is the number of books currently on loan.
	LoanedBooks int64 `json:"loaned_books"`

	// BooksByCategory maps category name to book count.
	BooksByCategory map[string]int64 `json:"books_by_category"`
}
