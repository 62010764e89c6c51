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

// SeriesRepository implements [models.Repository] for [models.Series] and stores the per-user
// library state (progress, ratings, reviews, want-to-read) that scrobble events are derived from.
type SeriesRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Series] = (*SeriesRepository)(nil)

// NewSeriesRepository creates a new [SeriesRepository] with the given database connection
func NewSeriesRepository(db *sql.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

// CreateLibrary inserts a library with a generated ID.
func (r *SeriesRepository) CreateLibrary(lib *models.Library) error {
	if lib.Name == "" {
		return fmt.Errorf("%w: library name is required", shared.ErrInvalidInput)
	}

	lib.ID = shared.GenerateID()
	if lib.CreatedAt.IsZero() {
		lib.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(`INSERT INTO libraries (id, name, allow_scrobbling, created_at) VALUES (?, ?, ?, ?)`,
		lib.ID, lib.Name, lib.AllowScrobbling, lib.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert library: %w", err)
	}

	return nil
}

// SetLibraryScrobbling toggles whether a library allows scrobbling.
func (r *SeriesRepository) SetLibraryScrobbling(ctx context.Context, id string, allow bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE libraries SET allow_scrobbling = ? WHERE id = ?`, allow, id)
	if err != nil {
		return fmt.Errorf("failed to update library: %w", err)
	}
	return expectRow(result, "library", id)
}

// ListLibraries returns all libraries ordered by name.
func (r *SeriesRepository) ListLibraries(ctx context.Context) ([]*models.Library, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, allow_scrobbling, created_at FROM libraries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query libraries: %w", err)
	}
	defer rows.Close()

	var libs []*models.Library
	for rows.Next() {
		lib := &models.Library{}
		if err := rows.Scan(&lib.ID, &lib.Name, &lib.AllowScrobbling, &lib.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan library: %w", err)
		}
		libs = append(libs, lib)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return libs, nil
}

const seriesColumns = `
	s.id, s.library_id, s.name, s.localized_name, s.format, s.dont_match, s.blacklisted,
	s.anilist_id, s.mal_id, s.web_links, s.created_at, s.updated_at,
	l.name, l.allow_scrobbling, l.created_at
`

func scanSeries(row scanner) (*models.Series, error) {
	var (
		id, libraryID, name, localizedName string
		format                             int
		dontMatch, blacklisted             bool
		meta                               models.SeriesMetadata
		createdAt, updatedAt               time.Time
		lib                                models.Library
	)

	err := row.Scan(
		&id, &libraryID, &name, &localizedName, &format, &dontMatch, &blacklisted,
		&meta.AniListID, &meta.MalID, &meta.WebLinks, &createdAt, &updatedAt,
		&lib.Name, &lib.AllowScrobbling, &lib.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	lib.ID = libraryID

	series := models.NewSeries(libraryID, name, models.MediaFormat(format))
	series.SetID(id)
	series.SetLocalizedName(localizedName)
	series.SetDontMatch(dontMatch)
	series.SetBlacklisted(blacklisted)
	series.SetMetadata(meta)
	series.SetLibrary(&lib)
	series.SetCreatedAt(createdAt)
	series.SetUpdatedAt(updatedAt)

	return series, nil
}

// Create inserts a new series with a generated ID
func (r *SeriesRepository) Create(series *models.Series) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()
	meta := series.Metadata()

	query := `
		INSERT INTO series (
			id, library_id, name, localized_name, format, dont_match, blacklisted,
			anilist_id, mal_id, web_links, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		id, series.LibraryID(), series.Name(), series.LocalizedName(), int(series.Format()),
		series.DontMatch(), series.Blacklisted(), meta.AniListID, meta.MalID, meta.WebLinks,
		series.CreatedAt().UTC(), series.UpdatedAt().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert series: %w", err)
	}

	series.SetID(id)
	return nil
}

// Get retrieves a series by ID with its library loaded
func (r *SeriesRepository) Get(id string) (*models.Series, error) {
	return r.GetSeries(context.Background(), id)
}

// GetSeries is the context-aware form of [SeriesRepository.Get].
func (r *SeriesRepository) GetSeries(ctx context.Context, id string) (*models.Series, error) {
	query := `SELECT` + seriesColumns + `FROM series s JOIN libraries l ON l.id = s.library_id WHERE s.id = ?`

	series, err := scanSeries(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: series %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}

	return series, nil
}

// Update modifies the mutable fields of an existing series
func (r *SeriesRepository) Update(series *models.Series) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	series.SetUpdatedAt(now)
	meta := series.Metadata()

	query := `
		UPDATE series
		SET name = ?, localized_name = ?, format = ?, dont_match = ?, blacklisted = ?,
			anilist_id = ?, mal_id = ?, web_links = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		series.Name(), series.LocalizedName(), int(series.Format()), series.DontMatch(), series.Blacklisted(),
		meta.AniListID, meta.MalID, meta.WebLinks, now, series.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update series: %w", err)
	}

	return expectRow(result, "series", series.ID())
}

// UpdateMetadata replaces the external identifiers of a series and clears its do-not-match flag.
func (r *SeriesRepository) UpdateMetadata(ctx context.Context, id string, meta models.SeriesMetadata) error {
	query := `
		UPDATE series SET anilist_id = ?, mal_id = ?, web_links = ?, dont_match = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, meta.AniListID, meta.MalID, meta.WebLinks, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update series metadata: %w", err)
	}

	return expectRow(result, "series", id)
}

// Delete removes a series by ID along with its per-user state
func (r *SeriesRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM series WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}
	return expectRow(result, "series", id)
}

// List retrieves series matching the given criteria (library_id, name)
func (r *SeriesRepository) List(criteria map[string]any) ([]*models.Series, error) {
	query := `SELECT` + seriesColumns + `FROM series s JOIN libraries l ON l.id = s.library_id WHERE 1 = 1`
	args := []any{}

	if libraryID, ok := criteria["library_id"].(string); ok && libraryID != "" {
		query += " AND s.library_id = ?"
		args = append(args, libraryID)
	}
	if name, ok := criteria["name"].(string); ok && name != "" {
		query += " AND s.name = ?"
		args = append(args, name)
	}

	query += " ORDER BY s.name ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var list []*models.Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan series: %w", err)
		}
		list = append(list, series)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return list, nil
}

// SetProgress stores a user's reading position in a series.
func (r *SeriesRepository) SetProgress(ctx context.Context, p models.Progress) error {
	if p.PagesRead < 0 {
		return fmt.Errorf("%w: pages read cannot be negative", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO progress (user_id, series_id, volume, chapter, pages_read, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, series_id) DO UPDATE SET
			volume = excluded.volume, chapter = excluded.chapter,
			pages_read = excluded.pages_read, updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, p.UserID, p.SeriesID, p.Volume, p.Chapter, p.PagesRead, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store progress: %w", err)
	}
	return nil
}

// Progress returns a user's reading position, or a zero Progress when none was recorded.
func (r *SeriesRepository) Progress(ctx context.Context, userID, seriesID string) (models.Progress, error) {
	p := models.Progress{UserID: userID, SeriesID: seriesID}

	err := r.db.QueryRowContext(ctx,
		`SELECT volume, chapter, pages_read, updated_at FROM progress WHERE user_id = ? AND series_id = ?`,
		userID, seriesID).Scan(&p.Volume, &p.Chapter, &p.PagesRead, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to query progress: %w", err)
	}

	return p, nil
}

// SetRating stores a user's score for a series.
func (r *SeriesRepository) SetRating(ctx context.Context, userID, seriesID string, score float64) error {
	query := `
		INSERT INTO ratings (user_id, series_id, score, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, series_id) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, userID, seriesID, score, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store rating: %w", err)
	}
	return nil
}

// SetReview stores a user's review of a series.
func (r *SeriesRepository) SetReview(ctx context.Context, userID, seriesID, title, body string) error {
	query := `
		INSERT INTO reviews (user_id, series_id, title, body, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, series_id) DO UPDATE SET
			title = excluded.title, body = excluded.body, updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, userID, seriesID, title, body, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store review: %w", err)
	}
	return nil
}

// SetWantToRead adds or removes a series from a user's want-to-read set.
func (r *SeriesRepository) SetWantToRead(ctx context.Context, userID, seriesID string, wanted bool) error {
	var err error
	if wanted {
		_, err = r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO want_to_read (user_id, series_id, created_at) VALUES (?, ?, ?)`,
			userID, seriesID, time.Now().UTC())
	} else {
		_, err = r.db.ExecContext(ctx,
			`DELETE FROM want_to_read WHERE user_id = ? AND series_id = ?`, userID, seriesID)
	}
	if err != nil {
		return fmt.Errorf("failed to store want-to-read: %w", err)
	}
	return nil
}

func (r *SeriesRepository) querySeriesIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query series ids: %w", err)
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

// WantToRead returns the series in a user's want-to-read set whose library allows scrobbling.
func (r *SeriesRepository) WantToRead(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT w.series_id FROM want_to_read w
		JOIN series s ON s.id = w.series_id
		JOIN libraries l ON l.id = s.library_id
		WHERE w.user_id = ? AND l.allow_scrobbling = 1
		ORDER BY w.created_at ASC
	`
	return r.querySeriesIDs(ctx, query, userID)
}

// Ratings returns a user's ratings on series whose library allows scrobbling.
func (r *SeriesRepository) Ratings(ctx context.Context, userID string) ([]models.SeriesRating, error) {
	query := `
		SELECT r.series_id, r.score FROM ratings r
		JOIN series s ON s.id = r.series_id
		JOIN libraries l ON l.id = s.library_id
		WHERE r.user_id = ? AND l.allow_scrobbling = 1
		ORDER BY r.updated_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	var ratings []models.SeriesRating
	for rows.Next() {
		var rating models.SeriesRating
		if err := rows.Scan(&rating.SeriesID, &rating.Score); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rating)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ratings, nil
}

// Reviews returns a user's reviews on series whose library allows scrobbling.
func (r *SeriesRepository) Reviews(ctx context.Context, userID string) ([]models.SeriesReview, error) {
	query := `
		SELECT v.series_id, v.title, v.body FROM reviews v
		JOIN series s ON s.id = v.series_id
		JOIN libraries l ON l.id = s.library_id
		WHERE v.user_id = ? AND l.allow_scrobbling = 1
		ORDER BY v.updated_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.SeriesReview
	for rows.Next() {
		var review models.SeriesReview
		if err := rows.Scan(&review.SeriesID, &review.Title, &review.Body); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return reviews, nil
}

// ProgressSeries returns the series a user has started reading whose library allows scrobbling.
func (r *SeriesRepository) ProgressSeries(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT p.series_id FROM progress p
		JOIN series s ON s.id = p.series_id
		JOIN libraries l ON l.id = s.library_id
		WHERE p.user_id = ? AND p.pages_read > 0 AND l.allow_scrobbling = 1
		ORDER BY p.updated_at ASC
	`
	return r.querySeriesIDs(ctx, query, userID)
}
