package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/domain"
)

func newBookService() (*BookService, *MockBookRepository, *MockLoanRepository) {
	books := NewMockBookRepository()
	loans := NewMockLoanRepository()
	return NewBookService(books, loans, zerolog.Nop()), books, loans
}

func TestBookService_CreateBook(t *testing.T) {
	tests := []struct {
		name     string
		input    CreateBookInput
		wantErr  error
		wantISBN string
		seed     func(*MockBookRepository)
	}{
		{
			name:     "success",
			input:    CreateBookInput{Title: "Dune", Author: "Frank Herbert", ISBN: "978-0-441-17271-9", Category: "Fiction"},
			wantISBN: "9780441172719",
		},
		{
			name:    "empty title",
			input:   CreateBookInput{Title: "  ", Author: "Frank Herbert", ISBN: "9780441172719"},
			wantErr: ErrInvalidTitle,
		},
		{
			name:    "empty author",
			input:   CreateBookInput{Title: "Dune", Author: "", ISBN: "9780441172719"},
			wantErr: ErrInvalidAuthor,
		},
		{
			name:    "malformed isbn",
			input:   CreateBookInput{Title: "Dune", Author: "Frank Herbert", ISBN: "12345"},
			wantErr: domain.ErrInvalidISBN,
		},
		{
			name:    "isbn taken",
			input:   CreateBookInput{Title: "Dune", Author: "Frank Herbert", ISBN: "978-0441172719"},
			wantErr: domain.ErrISBNTaken,
			seed: func(m *MockBookRepository) {
				m.Add(domain.NewBook("Dune", "Frank Herbert", "9780441172719", "Fiction"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, books, _ := newBookService()
			if tt.seed != nil {
				tt.seed(books)
			}

			out, err := svc.CreateBook(context.Background(), tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if out.Book.ISBN != tt.wantISBN {
				t.Errorf("isbn = %q, want normalized %q", out.Book.ISBN, tt.wantISBN)
			}
			if !out.Book.Available {
				t.Error("new books must start available")
			}
		})
	}
}

func TestBookService_DeleteBook(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, books, _ := newBookService()
		book := books.Add(domain.NewBook("Dune", "Frank Herbert", "9780441172719", "Fiction"))

		if err := svc.DeleteBook(context.Background(), book.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := books.GetByID(context.Background(), book.ID); !errors.Is(err, domain.ErrBookNotFound) {
			t.Error("book must be gone")
		}
	})

	t.Run("open loan blocks deletion", func(t *testing.T) {
		svc, books, loans := newBookService()
		book := books.Add(domain.NewBook("Dune", "Frank Herbert", "9780441172719", "Fiction"))
		loans.Add(domain.NewLoan(1, book.ID, time.Now(), time.Now().Add(14*24*time.Hour)))

		if err := svc.DeleteBook(context.Background(), book.ID); !errors.Is(err, domain.ErrBookUnavailable) {
			t.Errorf("expected ErrBookUnavailable, got %v", err)
		}
	})

	t.Run("closed loan does not block", func(t *testing.T) {
		svc, books, loans := newBookService()
		book := books.Add(domain.NewBook("Dune", "Frank Herbert", "9780441172719", "Fiction"))
		closed := domain.NewLoan(1, book.ID, time.Now(), time.Now().Add(14*24*time.Hour))
		closed.Returned = true
		loans.Add(closed)

		if err := svc.DeleteBook(context.Background(), book.ID); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown book", func(t *testing.T) {
		svc, _, _ := newBookService()
		if err := svc.DeleteBook(context.Background(), 99); !errors.Is(err, domain.ErrBookNotFound) {
			t.Errorf("expected ErrBookNotFound, got %v", err)
		}
	})
}

func TestBookService_UpdateBook(t *testing.T) {
	svc, books, _ := newBookService()
	book := books.Add(domain.NewBook("Dune", "Frank Herbert", "9780441172719", "Fiction"))
	book.Available = false // on loan during the update

	out, err := svc.UpdateBook(context.Background(), UpdateBookInput{BookID: book.ID, Category: "Science Fiction"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Book.Category != "Science Fiction" {
		t.Errorf("category = %q", out.Book.Category)
	}
	if out.Book.Title != "Dune" {
		t.Error("unset fields must keep their values")
	}

	got, _ := books.GetByID(context.Background(), book.ID)
	if got.Available {
		t.Error("catalog updates must not touch the availability flag")
	}
}

func TestBookService_ListRecentBooks_ClampsLimit(t *testing.T) {
	svc, books, _ := newBookService()
	for i := 0; i < 15; i++ {
		books.Add(domain.NewBook("Title", "Author", "", "Category"))
	}

	got, err := svc.ListRecentBooks(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("default limit must be 10, got %d", len(got))
	}

	got, err = svc.ListRecentBooks(context.Background(), 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("oversized limit must fall back to 10, got %d", len(got))
	}
}
