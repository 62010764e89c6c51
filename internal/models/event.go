package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/scrobblex/internal/shared"
)

// EventType discriminates the payload carried by a [ScrobbleEvent].
type EventType string

const (
	ChapterRead      EventType = "ChapterRead"
	ScoreUpdated     EventType = "ScoreUpdated"
	AddWantToRead    EventType = "AddWantToRead"
	RemoveWantToRead EventType = "RemoveWantToRead"
	ReviewUpdated    EventType = "ReviewUpdated"
)

// EventTypes lists every event type in delivery group order.
var EventTypes = []EventType{ChapterRead, ScoreUpdated, ReviewUpdated, AddWantToRead, RemoveWantToRead}

func (t EventType) String() string {
	return string(t)
}

// ParseEventType parses an event type name case-insensitively.
// The short aliases read, rating, review, want and unwant are accepted for CLI use.
func ParseEventType(s string) (EventType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chapterread", "read":
		return ChapterRead, nil
	case "scoreupdated", "rating":
		return ScoreUpdated, nil
	case "addwanttoread", "want":
		return AddWantToRead, nil
	case "removewanttoread", "unwant":
		return RemoveWantToRead, nil
	case "reviewupdated", "review":
		return ReviewUpdated, nil
	default:
		return "", fmt.Errorf("%w: unknown event type %q", shared.ErrInvalidArgument, s)
	}
}

// MediaFormat is the content medium of a series.
type MediaFormat int

const (
	FormatUnknown MediaFormat = iota
	FormatManga
	FormatComic
	FormatLightNovel
	FormatBook
)

func (f MediaFormat) String() string {
	switch f {
	case FormatManga:
		return "Manga"
	case FormatComic:
		return "Comic"
	case FormatLightNovel:
		return "LightNovel"
	case FormatBook:
		return "Book"
	default:
		return "Unknown"
	}
}

// ParseMediaFormat maps a format name to a [MediaFormat], defaulting to [FormatUnknown].
func ParseMediaFormat(s string) MediaFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manga":
		return FormatManga
	case "comic":
		return FormatComic
	case "lightnovel", "light_novel", "novel":
		return FormatLightNovel
	case "book":
		return FormatBook
	default:
		return FormatUnknown
	}
}

// Sentinel volume and chapter numbers used locally for "no specific volume/chapter".
const (
	LooseLeafVolume float64 = -100000
	SpecialVolume   float64 = 100000
	DefaultChapter  float64 = -100000
)

// NormalizeVolume maps sentinel volume numbers to zero.
func NormalizeVolume(v float64) float64 {
	if v == LooseLeafVolume || v == SpecialVolume {
		return 0
	}
	return v
}

// NormalizeChapter maps the default chapter sentinel to zero.
func NormalizeChapter(c float64) float64 {
	if c == DefaultChapter {
		return 0
	}
	return c
}

// Payload is the type-specific body of a [ScrobbleEvent].
//
// The set of implementations is closed: [ReadProgress], [Rating], [WantToRead] and [Review].
type Payload interface {
	EventType() EventType
	validate() error
}

// ReadProgress is the payload of a ChapterRead event.
type ReadProgress struct {
	Volume  float64
	Chapter float64
}

func (ReadProgress) EventType() EventType { return ChapterRead }

func (p ReadProgress) validate() error {
	if p.Volume < 0 && p.Volume != LooseLeafVolume {
		return fmt.Errorf("volume cannot be negative")
	}
	if p.Chapter < 0 && p.Chapter != DefaultChapter {
		return fmt.Errorf("chapter cannot be negative")
	}
	return nil
}

// Rating is the payload of a ScoreUpdated event. Scores range from 0 to 5.
type Rating struct {
	Score float64
}

func (Rating) EventType() EventType { return ScoreUpdated }

func (p Rating) validate() error {
	if p.Score < 0 || p.Score > 5 {
		return fmt.Errorf("rating %.2f out of range 0-5", p.Score)
	}
	return nil
}

// WantToRead is the payload of AddWantToRead (Wanted) and RemoveWantToRead events.
type WantToRead struct {
	Wanted bool
}

func (p WantToRead) EventType() EventType {
	if p.Wanted {
		return AddWantToRead
	}
	return RemoveWantToRead
}

func (WantToRead) validate() error { return nil }

// Review is the payload of a ReviewUpdated event.
type Review struct {
	Title string
	Body  string
}

func (Review) EventType() EventType { return ReviewUpdated }

func (p Review) validate() error {
	if strings.TrimSpace(p.Body) == "" {
		return fmt.Errorf("review body is required")
	}
	return nil
}

// PayloadFor returns the zero payload for an event type.
func PayloadFor(t EventType) (Payload, error) {
	switch t {
	case ChapterRead:
		return ReadProgress{}, nil
	case ScoreUpdated:
		return Rating{}, nil
	case AddWantToRead:
		return WantToRead{Wanted: true}, nil
	case RemoveWantToRead:
		return WantToRead{Wanted: false}, nil
	case ReviewUpdated:
		return Review{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", shared.ErrInvalidArgument, t)
	}
}

// ScrobbleEvent is one pending or historical unit of synchronization work.
//
// (user, series, type) is the natural key while the event is pending. Once processed the event is immutable;
// once errored it is terminal and never delivered again.
type ScrobbleEvent struct {
	id           string
	sequence     int
	userID       string
	seriesID     string
	libraryID    string
	aniListID    int64
	malID        int64
	format       MediaFormat
	payload      Payload
	createdAt    time.Time
	updatedAt    time.Time
	processed    bool
	processedAt  time.Time
	errored      bool
	errorMessage string
}

// NewScrobbleEvent creates a pending event for the given user and series.
func NewScrobbleEvent(userID, seriesID, libraryID string, payload Payload) *ScrobbleEvent {
	now := time.Now().UTC()
	return &ScrobbleEvent{
		userID:    userID,
		seriesID:  seriesID,
		libraryID: libraryID,
		payload:   payload,
		createdAt: now,
		updatedAt: now,
	}
}

func (e *ScrobbleEvent) ID() string             { return e.id }
func (e *ScrobbleEvent) Sequence() int          { return e.sequence }
func (e *ScrobbleEvent) UserID() string         { return e.userID }
func (e *ScrobbleEvent) SeriesID() string       { return e.seriesID }
func (e *ScrobbleEvent) LibraryID() string      { return e.libraryID }
func (e *ScrobbleEvent) AniListID() int64       { return e.aniListID }
func (e *ScrobbleEvent) MalID() int64           { return e.malID }
func (e *ScrobbleEvent) Format() MediaFormat    { return e.format }
func (e *ScrobbleEvent) Payload() Payload       { return e.payload }
func (e *ScrobbleEvent) CreatedAt() time.Time   { return e.createdAt }
func (e *ScrobbleEvent) UpdatedAt() time.Time   { return e.updatedAt }
func (e *ScrobbleEvent) Processed() bool        { return e.processed }
func (e *ScrobbleEvent) ProcessedAt() time.Time { return e.processedAt }
func (e *ScrobbleEvent) Errored() bool          { return e.errored }
func (e *ScrobbleEvent) ErrorMessage() string   { return e.errorMessage }

// Type returns the event type derived from the payload.
func (e *ScrobbleEvent) Type() EventType {
	if e.payload == nil {
		return ""
	}
	return e.payload.EventType()
}

// Pending reports whether the event is still eligible for delivery.
func (e *ScrobbleEvent) Pending() bool {
	return !e.processed && !e.errored
}

func (e *ScrobbleEvent) SetID(id string)          { e.id = id }
func (e *ScrobbleEvent) SetSequence(seq int)      { e.sequence = seq }
func (e *ScrobbleEvent) SetFormat(f MediaFormat)  { e.format = f }
func (e *ScrobbleEvent) SetUpdatedAt(t time.Time) { e.updatedAt = t.UTC() }
func (e *ScrobbleEvent) SetCreatedAt(t time.Time) { e.createdAt = t.UTC() }

// SetExternalIDs records the external tracker ids known at creation time.
func (e *ScrobbleEvent) SetExternalIDs(aniListID, malID int64) {
	e.aniListID = aniListID
	e.malID = malID
}

// SetPayload replaces the payload of a pending event. The event type cannot change.
func (e *ScrobbleEvent) SetPayload(p Payload) error {
	if e.processed {
		return shared.ErrEventImmutable
	}
	if e.payload != nil && p != nil && p.EventType() != e.payload.EventType() {
		return fmt.Errorf("%w: cannot change %s event to %s", shared.ErrInvalidInput, e.payload.EventType(), p.EventType())
	}
	e.payload = p
	return nil
}

// Restore sets the delivery state of an event loaded from storage.
func (e *ScrobbleEvent) Restore(processed bool, processedAt time.Time, errored bool, errorMessage string) {
	e.processed = processed
	e.processedAt = processedAt.UTC()
	e.errored = errored
	e.errorMessage = errorMessage
}

// MarkProcessed transitions the event to processed.
func (e *ScrobbleEvent) MarkProcessed(at time.Time) error {
	if e.processed {
		return shared.ErrEventImmutable
	}
	e.processed = true
	e.processedAt = at.UTC()
	return nil
}

// MarkErrored transitions the event to the terminal errored state with a classified message.
func (e *ScrobbleEvent) MarkErrored(msg string, at time.Time) error {
	if e.processed {
		return shared.ErrEventImmutable
	}
	e.errored = true
	e.errorMessage = msg
	e.processedAt = at.UTC()
	return nil
}

// Validate checks required identifiers and the payload.
func (e *ScrobbleEvent) Validate() error {
	if e.userID == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}
	if e.seriesID == "" {
		return fmt.Errorf("%w: series id is required", shared.ErrInvalidInput)
	}
	if e.payload == nil {
		return fmt.Errorf("%w: payload is required", shared.ErrInvalidInput)
	}
	if err := e.payload.validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}
