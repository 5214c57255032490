package domain

import (
	"testing"
)

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain digits", "9780134190440", "9780134190440"},
		{"hyphenated", "978-0-13-419044-0", "9780134190440"},
		{"spaces", "0 13 468599 7", "0134685997"},
		{"mixed junk", "ISBN: 978-0134190440", "9780134190440"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeISBN(tt.raw); got != tt.want {
				t.Errorf("NormalizeISBN(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidISBN(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"isbn-13", "978-0-13-419044-0", true},
		{"isbn-10", "0134685997", true},
		{"too short", "12345", false},
		{"eleven digits", "12345678901", false},
		{"empty", "", false},
		{"letters only", "not-an-isbn", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidISBN(tt.raw); got != tt.want {
				t.Errorf("ValidISBN(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNewBook(t *testing.T) {
	book := NewBook("The Go Programming Language", "Donovan & Kernighan", "9780134190440", "Programming")

	if !book.Available {
		t.Error("new books must start available")
	}
	if book.CreatedAt.IsZero() || book.UpdatedAt.IsZero() {
		t.Error("timestamps must be set")
	}
}
