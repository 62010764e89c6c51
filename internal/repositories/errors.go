package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
)

// ErrorRepository persists [models.ScrobbleError] records (quarantines and credential errors).
type ErrorRepository struct {
	db *sql.DB
}

// NewErrorRepository creates a new [ErrorRepository] with the given database connection
func NewErrorRepository(db *sql.DB) *ErrorRepository {
	return &ErrorRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertError inserts rec unless a record with the same series, kind, comment and user exists.
func insertError(ctx context.Context, db execer, rec *models.ScrobbleError) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, fmt.Errorf("validation failed: %w", err)
	}

	if rec.ID() == "" {
		rec.SetID(shared.GenerateID())
	}

	query := `
		INSERT OR IGNORE INTO scrobble_errors (id, series_id, library_id, user_id, kind, comment, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.ExecContext(ctx, query,
		rec.ID(), rec.SeriesID(), rec.LibraryID(), rec.UserID(), string(rec.Kind()), rec.Comment(), rec.Details(), rec.CreatedAt().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert scrobble error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// Create stores rec, reporting false when an equivalent record already exists.
func (r *ErrorRepository) Create(ctx context.Context, rec *models.ScrobbleError) (bool, error) {
	return insertError(ctx, r.db, rec)
}

// HasQuarantine reports whether any series-wide record exists for seriesID.
func (r *ErrorRepository) HasQuarantine(ctx context.Context, seriesID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM scrobble_errors WHERE series_id = ? AND kind = ?)`,
		seriesID, string(models.ErrorKindSeries)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query quarantine: %w", err)
	}
	return exists, nil
}

// FetchQuarantined returns the ids of every quarantined series.
func (r *ErrorRepository) FetchQuarantined(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT series_id FROM scrobble_errors WHERE kind = ? ORDER BY series_id`,
		string(models.ErrorKindSeries))
	if err != nil {
		return nil, fmt.Errorf("failed to query quarantined series: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan series id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

func scanError(row scanner) (*models.ScrobbleError, error) {
	var (
		id, seriesID, libraryID, userID string
		kind, comment, details          string
		createdAt                       time.Time
	)

	if err := row.Scan(&id, &seriesID, &libraryID, &userID, &kind, &comment, &details, &createdAt); err != nil {
		return nil, err
	}

	return models.RestoreScrobbleError(id, seriesID, libraryID, userID, models.ErrorKind(kind), comment, details, createdAt), nil
}

// Get retrieves a record by ID.
func (r *ErrorRepository) Get(ctx context.Context, id string) (*models.ScrobbleError, error) {
	query := `
		SELECT id, series_id, library_id, user_id, kind, comment, details, created_at
		FROM scrobble_errors WHERE id = ?
	`

	rec, err := scanError(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: scrobble error %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobble error: %w", err)
	}

	return rec, nil
}

// List retrieves records matching the given criteria (series_id, user_id, kind), newest first.
func (r *ErrorRepository) List(ctx context.Context, criteria map[string]any) ([]*models.ScrobbleError, error) {
	query := `
		SELECT id, series_id, library_id, user_id, kind, comment, details, created_at
		FROM scrobble_errors
	`

	var (
		where []string
		args  []any
	)

	for _, key := range []string{"series_id", "user_id", "kind"} {
		switch v := criteria[key].(type) {
		case string:
			if v != "" {
				where = append(where, key+" = ?")
				args = append(args, v)
			}
		case models.ErrorKind:
			where = append(where, key+" = ?")
			args = append(args, string(v))
		}
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobble errors: %w", err)
	}
	defer rows.Close()

	var records []*models.ScrobbleError
	for rows.Next() {
		rec, err := scanError(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrobble error: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Delete removes a record by ID.
func (r *ErrorRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scrobble_errors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scrobble error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: scrobble error %s", shared.ErrNotFound, id)
	}

	return nil
}

// DeleteForSeries removes every record for a series, lifting its quarantine.
func (r *ErrorRepository) DeleteForSeries(ctx context.Context, seriesID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scrobble_errors WHERE series_id = ?`, seriesID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete scrobble errors: %w", err)
	}
	return result.RowsAffected()
}

// DeleteOrphaned removes records whose series no longer exists.
func (r *ErrorRepository) DeleteOrphaned(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM scrobble_errors WHERE series_id NOT IN (SELECT id FROM series)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned scrobble errors: %w", err)
	}
	return result.RowsAffected()
}
