// package formatter renders scrobble event and error listings as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/desertthunder/scrobblex/internal/links"
	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/shared"
)

var resolver = links.NewResolver()

// Format selects an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat parses a format name. Empty input selects [FormatText].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// EventView is the serialized form of a [models.ScrobbleEvent].
type EventView struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	UserID      string     `json:"userId"`
	SeriesID    string     `json:"seriesId"`
	LibraryID   string     `json:"libraryId"`
	Format      string     `json:"format"`
	AniListID   int64      `json:"aniListId,omitempty"`
	MalID       int64      `json:"malId,omitempty"`
	AniListURL  string     `json:"aniListUrl,omitempty"`
	MalURL      string     `json:"malUrl,omitempty"`
	Volume      *float64   `json:"volumeNumber,omitempty"`
	Chapter     *float64   `json:"chapterNumber,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	ReviewTitle string     `json:"reviewTitle,omitempty"`
	ReviewBody  string     `json:"reviewBody,omitempty"`
	Error       string     `json:"errorDetails,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// ErrorView is the serialized form of a [models.ScrobbleError].
type ErrorView struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	SeriesID  string    `json:"seriesId"`
	LibraryID string    `json:"libraryId"`
	UserID    string    `json:"userId,omitempty"`
	Comment   string    `json:"comment"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Status names the lifecycle state of an event.
func Status(evt *models.ScrobbleEvent) string {
	switch {
	case evt.Errored():
		return "errored"
	case evt.Processed():
		return "processed"
	default:
		return "pending"
	}
}

// NewEventView flattens an event and its payload.
func NewEventView(evt *models.ScrobbleEvent) EventView {
	v := EventView{
		ID:        evt.ID(),
		Type:      evt.Type().String(),
		Status:    Status(evt),
		UserID:    evt.UserID(),
		SeriesID:  evt.SeriesID(),
		LibraryID: evt.LibraryID(),
		Format:    evt.Format().String(),
		AniListID: evt.AniListID(),
		MalID:     evt.MalID(),
		Error:     evt.ErrorMessage(),
		CreatedAt: evt.CreatedAt(),
		UpdatedAt: evt.UpdatedAt(),
	}

	if v.AniListID != 0 {
		v.AniListURL = resolver.BuildURL(links.AniList, strconv.FormatInt(v.AniListID, 10))
	}
	if v.MalID != 0 {
		v.MalURL = resolver.BuildURL(links.MyAnimeList, strconv.FormatInt(v.MalID, 10))
	}

	if evt.Processed() && !evt.ProcessedAt().IsZero() {
		at := evt.ProcessedAt()
		v.ProcessedAt = &at
	}

	switch p := evt.Payload().(type) {
	case models.ReadProgress:
		volume, chapter := models.NormalizeVolume(p.Volume), models.NormalizeChapter(p.Chapter)
		v.Volume, v.Chapter = &volume, &chapter
	case models.Rating:
		score := p.Score
		v.Rating = &score
	case models.Review:
		v.ReviewTitle, v.ReviewBody = p.Title, p.Body
	}

	return v
}

// NewEventViews converts a listing.
func NewEventViews(events []*models.ScrobbleEvent) []EventView {
	views := make([]EventView, 0, len(events))
	for _, evt := range events {
		views = append(views, NewEventView(evt))
	}
	return views
}

func NewErrorView(rec *models.ScrobbleError) ErrorView {
	return ErrorView{
		ID:        rec.ID(),
		Kind:      string(rec.Kind()),
		SeriesID:  rec.SeriesID(),
		LibraryID: rec.LibraryID(),
		UserID:    rec.UserID(),
		Comment:   rec.Comment(),
		Details:   rec.Details(),
		CreatedAt: rec.CreatedAt(),
	}
}

func NewErrorViews(records []*models.ScrobbleError) []ErrorView {
	views := make([]ErrorView, 0, len(records))
	for _, rec := range records {
		views = append(views, NewErrorView(rec))
	}
	return views
}

// ToJSON encodes v, indented when pretty is set.
func ToJSON(v any, pretty bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

func (v EventView) detail() string {
	switch {
	case v.Chapter != nil:
		return fmt.Sprintf("vol %s ch %s", formatNumber(*v.Volume), formatNumber(*v.Chapter))
	case v.Rating != nil:
		return fmt.Sprintf("rating %s", formatNumber(*v.Rating))
	case v.ReviewBody != "":
		if v.ReviewTitle != "" {
			return fmt.Sprintf("review %q", v.ReviewTitle)
		}
		return "review"
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// EventsToCSV writes one row per event.
func EventsToCSV(events []*models.ScrobbleEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Type", "Status", "User", "Series", "Detail", "Updated", "Processed", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range NewEventViews(events) {
		processed := ""
		if v.ProcessedAt != nil {
			processed = formatTime(*v.ProcessedAt)
		}
		record := []string{
			v.ID, v.Type, v.Status, v.UserID, v.SeriesID, v.detail(), formatTime(v.UpdatedAt), processed, v.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ErrorsToCSV writes one row per error record.
func ErrorsToCSV(records []*models.ScrobbleError) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Kind", "Series", "Library", "User", "Comment", "Details", "Created"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range NewErrorViews(records) {
		record := []string{v.ID, v.Kind, v.SeriesID, v.LibraryID, v.UserID, v.Comment, v.Details, formatTime(v.CreatedAt)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// EventsToMarkdown renders events as a Markdown table.
func EventsToMarkdown(events []*models.ScrobbleEvent) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Scrobble Events\n\n")
	buf.WriteString(fmt.Sprintf("**Events**: %d\n\n", len(events)))
	if len(events) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("| Type | Status | User | Series | Detail | Updated | Error |\n")
	buf.WriteString("|---|---|---|---|---|---|---|\n")
	for _, v := range NewEventViews(events) {
		series := v.SeriesID
		if v.AniListURL != "" {
			series = fmt.Sprintf("[%s](%s)", v.SeriesID, v.AniListURL)
		} else if v.MalURL != "" {
			series = fmt.Sprintf("[%s](%s)", v.SeriesID, v.MalURL)
		}
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
			v.Type, v.Status, v.UserID, series, escapeCell(v.detail()), formatTime(v.UpdatedAt), escapeCell(v.Error)))
	}

	return buf.Bytes(), nil
}

// ErrorsToMarkdown renders error records as a Markdown table.
func ErrorsToMarkdown(records []*models.ScrobbleError) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Scrobble Errors\n\n")
	buf.WriteString(fmt.Sprintf("**Errors**: %d\n\n", len(records)))
	if len(records) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("| Kind | Series | User | Comment | Details | Created |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	for _, v := range NewErrorViews(records) {
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			v.Kind, v.SeriesID, v.UserID, escapeCell(v.Comment), escapeCell(v.Details), formatTime(v.CreatedAt)))
	}

	return buf.Bytes(), nil
}

// EventsToText renders one line per event. Styled output colors the status column.
func EventsToText(events []*models.ScrobbleEvent, styled bool) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Events: %d\n\n", len(events)))
	for i, v := range NewEventViews(events) {
		status := v.Status
		if styled {
			status = paintStatus(status)
		}
		line := fmt.Sprintf("%d. [%s] %s user=%s series=%s", i+1, status, v.Type, v.UserID, v.SeriesID)
		if d := v.detail(); d != "" {
			line += " " + d
		}
		if v.Error != "" {
			line += " - " + v.Error
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// ErrorsToText renders one line per error record.
func ErrorsToText(records []*models.ScrobbleError, styled bool) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Errors: %d\n\n", len(records)))
	for i, v := range NewErrorViews(records) {
		kind := v.Kind
		if styled {
			kind = paintKind(kind)
		}
		line := fmt.Sprintf("%d. [%s] series=%s %s", i+1, kind, v.SeriesID, v.Comment)
		if v.UserID != "" {
			line += " user=" + v.UserID
		}
		if v.Details != "" {
			line += " (" + v.Details + ")"
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// WriteEvents renders events to w in the given format.
func WriteEvents(w io.Writer, format Format, events []*models.ScrobbleEvent, styled bool) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatJSON:
		data, err = ToJSON(NewEventViews(events), true)
	case FormatCSV:
		data, err = EventsToCSV(events)
	case FormatMarkdown:
		data, err = EventsToMarkdown(events)
	default:
		data, err = EventsToText(events, styled)
	}

	return write(w, data, err)
}

// WriteErrors renders error records to w in the given format.
func WriteErrors(w io.Writer, format Format, records []*models.ScrobbleError, styled bool) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatJSON:
		data, err = ToJSON(NewErrorViews(records), true)
	case FormatCSV:
		data, err = ErrorsToCSV(records)
	case FormatMarkdown:
		data, err = ErrorsToMarkdown(records)
	default:
		data, err = ErrorsToText(records, styled)
	}

	return write(w, data, err)
}

func write(w io.Writer, data []byte, err error) error {
	if err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
