package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// UserRepository implements [models.Repository] for user [models.User] persistence.
type UserRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.User] = (*UserRepository)(nil)

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, credential, backfill_completed, backfill_at, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var (
		id, name, credential string
		backfillCompleted    bool
		backfillAt           sql.NullTime
		createdAt, updatedAt time.Time
	)

	if err := row.Scan(&id, &name, &credential, &backfillCompleted, &backfillAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	user := models.NewUser(name, credential)
	user.SetID(id)
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updatedAt)
	if backfillCompleted {
		user.SetBackfill(backfillAt.Time)
	}

	return user, nil
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

// Create inserts a new user into the database with a generated ID
func (r *UserRepository) Create(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO users (id, name, credential, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, id, user.Name(), user.Credential(), user.CreatedAt().UTC(), user.UpdatedAt().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.SetID(id)
	return nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(id string) (*models.User, error) {
	return r.GetUser(context.Background(), id)
}

// GetByName retrieves a user by their unique name
func (r *UserRepository) GetByName(name string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", shared.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

// Update modifies the name and credential of an existing user
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	user.SetUpdatedAt(now)

	result, err := r.db.Exec(`UPDATE users SET name = ?, credential = ?, updated_at = ? WHERE id = ?`,
		user.Name(), user.Credential(), now, user.ID())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return expectRow(result, "user", user.ID())
}

// SetCredential replaces a user's provider credential. An empty credential disables scrobbling for the user.
func (r *UserRepository) SetCredential(ctx context.Context, id, credential string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET credential = ?, updated_at = ? WHERE id = ?`,
		credential, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	return expectRow(result, "user", id)
}

// Delete removes a user by ID
func (r *UserRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return expectRow(result, "user", id)
}

// List retrieves all users matching the given criteria (name, has_credential)
func (r *UserRepository) List(criteria map[string]any) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1 = 1`
	args := []any{}

	if name, ok := criteria["name"].(string); ok && name != "" {
		query += " AND name = ?"
		args = append(args, name)
	}

	if hasCredential, ok := criteria["has_credential"].(bool); ok {
		if hasCredential {
			query += " AND credential <> ''"
		} else {
			query += " AND credential = ''"
		}
	}

	query += " ORDER BY created_at ASC, name ASC"

	return r.queryUsers(context.Background(), query, args...)
}

// ListNeedingBackfill returns users with a credential that have not completed backfill.
func (r *UserRepository) ListNeedingBackfill(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE credential <> '' AND backfill_completed = 0
		ORDER BY created_at ASC, name ASC`

	return r.queryUsers(ctx, query)
}

// MarkBackfilled sets the backfill completion flag and timestamp.
func (r *UserRepository) MarkBackfilled(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET backfill_completed = 1, backfill_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark backfill: %w", err)
	}

	return expectRow(result, "user", id)
}

// GetUser is the context-aware form of [UserRepository.Get].
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

// expectRow converts a zero-row result into an error wrapping [shared.ErrNotFound].
func expectRow(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, entity, id)
	}
	return nil
}
