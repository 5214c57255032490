package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, email, password_hash, phone, role, status, created_at, updated_at`

// scanUser scans one user row from any row scanner.
func scanUser(scan func(dest ...interface{}) error) (*domain.User, error) {
	user := &domain.User{}
	var createdAt, updatedAt string

	err := scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.Role,
		&user.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.CreatedAt = parseTime(createdAt)
	user.UpdatedAt = parseTime(updatedAt)
	return user, nil
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, phone, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		user.Name,
		domain.NormalizeEmail(user.Email),
		user.PasswordHash,
		user.Phone,
		string(user.Role),
		string(user.Status),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrEmailTaken, user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	user.ID = id

	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, compared case-insensitively.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, domain.NormalizeEmail(email)).Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// Update updates a user's profile fields. The status column is owned by
// Deactivate so a stale read here can never resurrect a deactivated account.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET name = ?, email = ?, password_hash = ?, phone = ?, role = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		user.Name,
		domain.NormalizeEmail(user.Email),
		user.PasswordHash,
		user.Phone,
		string(user.Role),
		formatTime(user.UpdatedAt),
		user.ID,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrEmailTaken, user.Email)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// Deactivate conditionally flips status from active to inactive.
func (r *userRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE users SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(domain.UserInactive),
		formatTime(time.Now()),
		id,
		string(domain.UserActive),
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		// Distinguish a missing user from one already inactive.
		var count int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&count); err != nil {
			return fmt.Errorf("failed to check user existence: %w", err)
		}
		if count == 0 {
			return domain.ErrUserNotFound
		}
	}

	return nil
}

// List returns all users with pagination.
func (r *userRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return &repository.ListResult[domain.User]{
		Items:  users,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// SearchByName returns users whose name contains the given substring.
func (r *userRepository) SearchByName(ctx context.Context, name string) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE name LIKE ? ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, "%"+name+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// ExistsByEmail checks if a user with the given email exists.
func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, domain.NormalizeEmail(email)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return count > 0, nil
}

// CountByRole returns the number of active users per role.
func (r *userRepository) CountByRole(ctx context.Context) (map[domain.UserRole]int64, error) {
	query := `SELECT role, COUNT(*) FROM users WHERE status = ? GROUP BY role`

	rows, err := r.db.QueryContext(ctx, query, string(domain.UserActive))
	if err != nil {
		return nil, fmt.Errorf("failed to count users by role: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.UserRole]int64)
	for rows.Next() {
		var role string
		var count int64
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("failed to scan role count: %w", err)
		}
		counts[domain.UserRole(role)] = count
	}

	return counts, rows.Err()
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
