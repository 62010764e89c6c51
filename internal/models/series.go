package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/scrobblex/internal/shared"
)

// Library groups series and controls whether activity in it may be scrobbled.
type Library struct {
	ID              string
	Name            string
	AllowScrobbling bool
	CreatedAt       time.Time
}

// SeriesMetadata carries the external identifiers known for a series.
//
// WebLinks is a comma-separated list of URLs.
type SeriesMetadata struct {
	AniListID int64
	MalID     int64
	WebLinks  string
}

// Links splits WebLinks into trimmed, non-empty entries.
func (m SeriesMetadata) Links() []string {
	var links []string
	for link := range strings.SplitSeq(m.WebLinks, ",") {
		if link = strings.TrimSpace(link); link != "" {
			links = append(links, link)
		}
	}
	return links
}

// Series is a unit of content that events are reported against.
type Series struct {
	id            string
	libraryID     string
	name          string
	localizedName string
	format        MediaFormat
	dontMatch     bool
	blacklisted   bool
	metadata      SeriesMetadata
	library       *Library
	createdAt     time.Time
	updatedAt     time.Time
}

// NewSeries creates a series in the given library.
func NewSeries(libraryID, name string, format MediaFormat) *Series {
	now := time.Now().UTC()
	return &Series{
		libraryID: libraryID,
		name:      name,
		format:    format,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Series) ID() string               { return s.id }
func (s *Series) LibraryID() string        { return s.libraryID }
func (s *Series) Name() string             { return s.name }
func (s *Series) LocalizedName() string    { return s.localizedName }
func (s *Series) Format() MediaFormat      { return s.format }
func (s *Series) DontMatch() bool          { return s.dontMatch }
func (s *Series) Blacklisted() bool        { return s.blacklisted }
func (s *Series) Metadata() SeriesMetadata { return s.metadata }
func (s *Series) Library() *Library        { return s.library }
func (s *Series) CreatedAt() time.Time     { return s.createdAt }
func (s *Series) UpdatedAt() time.Time     { return s.updatedAt }

func (s *Series) SetID(id string)              { s.id = id }
func (s *Series) SetLocalizedName(name string) { s.localizedName = name }
func (s *Series) SetDontMatch(v bool)          { s.dontMatch = v }
func (s *Series) SetBlacklisted(v bool)        { s.blacklisted = v }
func (s *Series) SetMetadata(m SeriesMetadata) { s.metadata = m }
func (s *Series) SetLibrary(l *Library)        { s.library = l }
func (s *Series) SetCreatedAt(t time.Time)     { s.createdAt = t.UTC() }
func (s *Series) SetUpdatedAt(t time.Time)     { s.updatedAt = t.UTC() }

// AllowsScrobbling reports whether the owning library permits synchronization.
// A series without a loaded library is treated as not allowed.
func (s *Series) AllowsScrobbling() bool {
	return s.library != nil && s.library.AllowScrobbling
}

// Unmatchable reports whether the series was explicitly excluded from matching.
func (s *Series) Unmatchable() bool {
	return s.dontMatch || s.blacklisted
}

// Validate checks required fields.
func (s *Series) Validate() error {
	if s.libraryID == "" {
		return fmt.Errorf("%w: library id is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(s.name) == "" {
		return fmt.Errorf("%w: series name is required", shared.ErrInvalidInput)
	}
	return nil
}

// Progress is a user's reading position in a series.
type Progress struct {
	UserID    string
	SeriesID  string
	Volume    float64
	Chapter   float64
	PagesRead int
	UpdatedAt time.Time
}

// Started reports whether any pages have been read.
func (p Progress) Started() bool {
	return p.PagesRead > 0
}

// SeriesRating is a user's score for a series.
type SeriesRating struct {
	SeriesID string
	Score    float64
}

// SeriesReview is a user's written review of a series.
type SeriesReview struct {
	SeriesID string
	Title    string
	Body     string
}
