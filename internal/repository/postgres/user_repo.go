package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// userRepository implements repository.UserRepository for PostgreSQL.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, email, password_hash, phone, role, status, created_at, updated_at`

// scanUser scans one user row.
func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.Role,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, phone, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Phone,
		user.Role,
		user.Status,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrEmailTaken, user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, domain.NormalizeEmail(email)))
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
		SET name = $1, email = $2, password_hash = $3, phone = $4, role = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := r.db.Pool.Exec(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Phone,
		user.Role,
		time.Now().UTC(),
		user.ID,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrEmailTaken, user.Email)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// Deactivate conditionally flips status from active to inactive.
func (r *userRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE users SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := r.db.Pool.Exec(ctx, query,
		domain.UserInactive,
		time.Now().UTC(),
		id,
		domain.UserActive,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a missing user from one already inactive.
		var count int
		if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE id = $1`, id).Scan(&count); err != nil {
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
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users, err := collectUsers(rows)
	if err != nil {
		return nil, err
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
	query := `SELECT ` + userColumns + ` FROM users WHERE name ILIKE $1 ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query, "%"+name+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ExistsByEmail checks if a user with the given email exists.
func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE email = $1`, domain.NormalizeEmail(email),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return count > 0, nil
}

// CountByRole returns the number of active users per role.
func (r *userRepository) CountByRole(ctx context.Context) (map[domain.UserRole]int64, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT role, COUNT(*) FROM users WHERE status = $1 GROUP BY role
	`, domain.UserActive)
	if err != nil {
		return nil, fmt.Errorf("failed to count users by role: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.UserRole]int64)
	for rows.Next() {
		var role domain.UserRole
		var count int64
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("failed to scan role count: %w", err)
		}
		counts[role] = count
	}

	return counts, rows.Err()
}

// collectUsers drains a user result set.
func collectUsers(rows pgx.Rows) ([]*domain.User, error) {
	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
