package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/scrobblex/internal/shared"
)

// ErrorKind classifies the scope of a [ScrobbleError].
type ErrorKind string

const (
	// ErrorKindSeries quarantines a series for every user.
	ErrorKindSeries ErrorKind = "series"
	// ErrorKindCredential records a credential problem for one user and series.
	ErrorKindCredential ErrorKind = "credential"
)

// Classified comments attached to errors and errored events.
const (
	CommentUnknownSeries     = "Unknown Series"
	CommentCredentialExpired = "AniList token has expired and needs rotating. Scrobbling wont work until then"
	CommentInvalidCredential = "Access Token needs to be rotated to continue scrobbling"
	CommentReviewRejected    = "Review was unable to be saved due to upstream requirements"
)

// ScrobbleError is a persistent record explaining why a series (or a user's events on it) cannot be sent.
//
// Records of [ErrorKindSeries] quarantine the series: no events are generated or delivered for it until removed.
type ScrobbleError struct {
	id        string
	seriesID  string
	libraryID string
	userID    string
	kind      ErrorKind
	comment   string
	details   string
	createdAt time.Time
}

// NewQuarantine creates a series-wide error record.
func NewQuarantine(seriesID, libraryID, comment, details string) *ScrobbleError {
	return &ScrobbleError{
		seriesID:  seriesID,
		libraryID: libraryID,
		kind:      ErrorKindSeries,
		comment:   comment,
		details:   details,
		createdAt: time.Now().UTC(),
	}
}

// NewCredentialError creates an error record scoped to one user's events on a series.
func NewCredentialError(seriesID, libraryID, userID, comment, details string) *ScrobbleError {
	return &ScrobbleError{
		seriesID:  seriesID,
		libraryID: libraryID,
		userID:    userID,
		kind:      ErrorKindCredential,
		comment:   comment,
		details:   details,
		createdAt: time.Now().UTC(),
	}
}

func (e *ScrobbleError) ID() string           { return e.id }
func (e *ScrobbleError) SeriesID() string     { return e.seriesID }
func (e *ScrobbleError) LibraryID() string    { return e.libraryID }
func (e *ScrobbleError) UserID() string       { return e.userID }
func (e *ScrobbleError) Kind() ErrorKind      { return e.kind }
func (e *ScrobbleError) Comment() string      { return e.comment }
func (e *ScrobbleError) Details() string      { return e.details }
func (e *ScrobbleError) CreatedAt() time.Time { return e.createdAt }
func (e *ScrobbleError) UpdatedAt() time.Time { return e.createdAt }

func (e *ScrobbleError) SetID(id string)          { e.id = id }
func (e *ScrobbleError) SetCreatedAt(t time.Time) { e.createdAt = t.UTC() }

// Quarantines reports whether the record suppresses the whole series.
func (e *ScrobbleError) Quarantines() bool {
	return e.kind == ErrorKindSeries
}

// Validate checks required fields.
func (e *ScrobbleError) Validate() error {
	if e.seriesID == "" {
		return fmt.Errorf("%w: series id is required", shared.ErrInvalidInput)
	}
	if e.comment == "" {
		return fmt.Errorf("%w: comment is required", shared.ErrInvalidInput)
	}
	switch e.kind {
	case ErrorKindSeries:
	case ErrorKindCredential:
		if e.userID == "" {
			return fmt.Errorf("%w: credential errors require a user id", shared.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown error kind %q", shared.ErrInvalidInput, e.kind)
	}
	return nil
}

// RestoreScrobbleError rebuilds a record loaded from storage.
func RestoreScrobbleError(id, seriesID, libraryID, userID string, kind ErrorKind, comment, details string, createdAt time.Time) *ScrobbleError {
	return &ScrobbleError{
		id:        id,
		seriesID:  seriesID,
		libraryID: libraryID,
		userID:    userID,
		kind:      kind,
		comment:   comment,
		details:   details,
		createdAt: createdAt.UTC(),
	}
}
