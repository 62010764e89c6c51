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

const eventColumns = `
	id, sequence, user_id, series_id, library_id, event_type, anilist_id, mal_id, format,
	volume_number, chapter_number, rating, review_title, review_body,
	created_at, updated_at, processed, processed_at, errored, error_message
`

// EventRepository is the durable log of scrobble events.
//
// At most one pending (unprocessed and not errored) event exists per (user, series, type);
// the partial unique index idx_scrobble_events_pending enforces it and [EventRepository.UpsertPending] relies on it.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new [EventRepository] with the given database connection
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// payloadColumns flattens an event payload into its nullable storage columns.
func payloadColumns(p models.Payload) (volume, chapter, rating, title, body any) {
	switch v := p.(type) {
	case models.ReadProgress:
		return v.Volume, v.Chapter, nil, nil, nil
	case models.Rating:
		return nil, nil, v.Score, nil, nil
	case models.Review:
		return nil, nil, nil, v.Title, v.Body
	default:
		return nil, nil, nil, nil, nil
	}
}

func payloadFromColumns(t models.EventType, volume, chapter, rating sql.NullFloat64, title, body sql.NullString) (models.Payload, error) {
	switch t {
	case models.ChapterRead:
		return models.ReadProgress{Volume: volume.Float64, Chapter: chapter.Float64}, nil
	case models.ScoreUpdated:
		return models.Rating{Score: rating.Float64}, nil
	case models.ReviewUpdated:
		return models.Review{Title: title.String, Body: body.String}, nil
	default:
		return models.PayloadFor(t)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.ScrobbleEvent, error) {
	var (
		id, userID, seriesID, libraryID string
		eventType, errorMessage         string
		sequence, format                int
		aniListID, malID                int64
		volume, chapter, rating         sql.NullFloat64
		title, body                     sql.NullString
		createdAt, updatedAt            time.Time
		processed, errored              bool
		processedAt                     sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &userID, &seriesID, &libraryID, &eventType, &aniListID, &malID, &format,
		&volume, &chapter, &rating, &title, &body,
		&createdAt, &updatedAt, &processed, &processedAt, &errored, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	payload, err := payloadFromColumns(models.EventType(eventType), volume, chapter, rating, title, body)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", id, err)
	}

	evt := models.NewScrobbleEvent(userID, seriesID, libraryID, payload)
	evt.SetID(id)
	evt.SetSequence(sequence)
	evt.SetExternalIDs(aniListID, malID)
	evt.SetFormat(models.MediaFormat(format))
	evt.SetCreatedAt(createdAt)
	evt.SetUpdatedAt(updatedAt)
	evt.Restore(processed, processedAt.Time, errored, errorMessage)

	return evt, nil
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*models.ScrobbleEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.ScrobbleEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return events, nil
}

// UpsertPending creates a pending event or overwrites the mutable fields of the pending event with the same
// (user, series, type) key. On return evt carries the stored id, sequence and creation time.
func (r *EventRepository) UpsertPending(ctx context.Context, evt *models.ScrobbleEvent) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !evt.Pending() {
		return fmt.Errorf("%w: only pending events can be upserted", shared.ErrEventImmutable)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(ctx, tx, "scrobble_events")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	query := `
		INSERT INTO scrobble_events (
			id, sequence, user_id, series_id, library_id, event_type, anilist_id, mal_id, format,
			volume_number, chapter_number, rating, review_title, review_body, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, series_id, event_type) WHERE processed = 0 AND errored = 0
		DO UPDATE SET
			library_id = excluded.library_id,
			anilist_id = excluded.anilist_id,
			mal_id = excluded.mal_id,
			format = excluded.format,
			volume_number = excluded.volume_number,
			chapter_number = excluded.chapter_number,
			rating = excluded.rating,
			review_title = excluded.review_title,
			review_body = excluded.review_body,
			updated_at = excluded.updated_at
	`

	volume, chapter, rating, title, body := payloadColumns(evt.Payload())
	_, err = tx.ExecContext(ctx, query,
		shared.GenerateID(),
		sequence,
		evt.UserID(),
		evt.SeriesID(),
		evt.LibraryID(),
		evt.Type().String(),
		evt.AniListID(),
		evt.MalID(),
		int(evt.Format()),
		volume,
		chapter,
		rating,
		title,
		body,
		evt.CreatedAt().UTC(),
		evt.UpdatedAt().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}

	stored, err := r.pending(ctx, tx, evt.UserID(), evt.SeriesID(), evt.Type())
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}

	evt.SetID(stored.ID())
	evt.SetSequence(stored.Sequence())
	evt.SetCreatedAt(stored.CreatedAt())

	return nil
}

// GetPending returns the pending event for the key or an error wrapping [shared.ErrNotFound].
func (r *EventRepository) GetPending(ctx context.Context, userID, seriesID string, t models.EventType) (*models.ScrobbleEvent, error) {
	return r.pending(ctx, r.db, userID, seriesID, t)
}

func (r *EventRepository) pending(ctx context.Context, q querier, userID, seriesID string, t models.EventType) (*models.ScrobbleEvent, error) {
	query := `SELECT` + eventColumns + `FROM scrobble_events
		WHERE user_id = ? AND series_id = ? AND event_type = ? AND processed = 0 AND errored = 0`

	evt, err := scanEvent(q.QueryRowContext(ctx, query, userID, seriesID, t.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pending %s event for user %s series %s", shared.ErrNotFound, t, userID, seriesID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}

	return evt, nil
}

// Get retrieves an event by ID.
func (r *EventRepository) Get(ctx context.Context, id string) (*models.ScrobbleEvent, error) {
	query := `SELECT` + eventColumns + `FROM scrobble_events WHERE id = ?`

	evt, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}

	return evt, nil
}

// RemovePending deletes the pending event for the key, reporting whether one existed.
func (r *EventRepository) RemovePending(ctx context.Context, userID, seriesID string, t models.EventType) (bool, error) {
	query := `
		DELETE FROM scrobble_events
		WHERE user_id = ? AND series_id = ? AND event_type = ? AND processed = 0 AND errored = 0
	`

	result, err := r.db.ExecContext(ctx, query, userID, seriesID, t.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete pending event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// FetchPending returns pending events of the given type in creation order.
func (r *EventRepository) FetchPending(ctx context.Context, t models.EventType) ([]*models.ScrobbleEvent, error) {
	query := `SELECT` + eventColumns + `FROM scrobble_events
		WHERE event_type = ? AND processed = 0 AND errored = 0
		ORDER BY sequence ASC`

	return r.queryEvents(ctx, query, t.String())
}

// FetchProcessedOlderThan returns processed events whose processed time is more than age ago.
func (r *EventRepository) FetchProcessedOlderThan(ctx context.Context, age time.Duration) ([]*models.ScrobbleEvent, error) {
	query := `SELECT` + eventColumns + `FROM scrobble_events
		WHERE processed = 1 AND processed_at < ?
		ORDER BY processed_at ASC`

	return r.queryEvents(ctx, query, time.Now().UTC().Add(-age))
}

// DeleteProcessedOlderThan deletes processed events processed strictly before cutoff.
func (r *EventRepository) DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM scrobble_events WHERE processed = 1 AND processed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}

// DeletePendingForUsersWithoutCredential deletes pending events of users that have no credential or no longer exist.
func (r *EventRepository) DeletePendingForUsersWithoutCredential(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM scrobble_events
		WHERE processed = 0 AND errored = 0
		AND user_id NOT IN (SELECT id FROM users WHERE credential <> '')
	`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale events: %w", err)
	}

	return result.RowsAffected()
}

// List retrieves events matching the given criteria, newest first.
//
// Supported criteria: user_id, series_id, type (string or [models.EventType]), processed (bool), errored (bool),
// pending (bool) and limit (int).
func (r *EventRepository) List(ctx context.Context, criteria map[string]any) ([]*models.ScrobbleEvent, error) {
	var (
		where []string
		args  []any
	)

	for _, key := range []string{"user_id", "series_id"} {
		if v, ok := criteria[key].(string); ok && v != "" {
			where = append(where, key+" = ?")
			args = append(args, v)
		}
	}

	switch t := criteria["type"].(type) {
	case models.EventType:
		where = append(where, "event_type = ?")
		args = append(args, t.String())
	case string:
		if t != "" {
			where = append(where, "event_type = ?")
			args = append(args, t)
		}
	}

	for _, key := range []string{"processed", "errored"} {
		if v, ok := criteria[key].(bool); ok {
			where = append(where, key+" = ?")
			args = append(args, v)
		}
	}

	if pending, ok := criteria["pending"].(bool); ok && pending {
		where = append(where, "processed = 0 AND errored = 0")
	}

	query := `SELECT` + eventColumns + `FROM scrobble_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return r.queryEvents(ctx, query, args...)
}

// NewBatch starts a unit of work over this store.
func (r *EventRepository) NewBatch() models.UnitOfWork {
	return &Batch{db: r.db}
}
