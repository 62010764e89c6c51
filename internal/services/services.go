// package services defines the [Tracker] interface for the remote scrobble tracking API
package services

import (
	"context"
	"time"

	"github.com/desertthunder/scrobblex/internal/models"
)

// Tracker is the network boundary of the scrobble engine.
type Tracker interface {
	// CheckCredentialValid asks the tracker whether a provider credential is accepted.
	CheckCredentialValid(ctx context.Context, credential string, provider Provider) (bool, error)

	// RemainingQuota returns the number of calls the credential may still make in the current window.
	RemainingQuota(ctx context.Context, credential string) (int, error)

	// PostEvent delivers one event. Failures are returned as errors wrapping the sentinels in errors.go;
	// the response is returned alongside the error whenever the tracker sent one.
	PostEvent(ctx context.Context, payload *ScrobblePayload) (*ScrobbleResponse, error)
}

// Provider names the external tracking provider a credential belongs to.
type Provider string

const (
	ProviderAniList Provider = "AniList"
	ProviderMal     Provider = "Mal"
)

// ScrobblePayload is the provider-agnostic body of a delivery.
//
// Volume and chapter numbers are already normalized: zero means "no specific volume/chapter".
type ScrobblePayload struct {
	Type                models.EventType `json:"-"`
	Credential          string           `json:"-"`
	SeriesName          string           `json:"seriesName"`
	LocalizedSeriesName string           `json:"localizedSeriesName,omitempty"`
	Format              string           `json:"format"`
	AniListID           int64            `json:"aniListId,omitempty"`
	MalID               int64            `json:"malId,omitempty"`
	MangaDexID          string           `json:"mangaDexId,omitempty"`
	VolumeNumber        float64          `json:"volumeNumber"`
	ChapterNumber       float64          `json:"chapterNumber"`
	Rating              *float64         `json:"rating,omitempty"`
	WantToRead          *bool            `json:"wantToRead,omitempty"`
	ReviewTitle         string           `json:"reviewTitle,omitempty"`
	ReviewBody          string           `json:"reviewBody,omitempty"`
	ScrobbleDateUTC     time.Time        `json:"scrobbleDateUtc"`
}

// ScrobbleResponse is the tracker's reply to a delivery.
type ScrobbleResponse struct {
	Successful       bool   `json:"successful"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	ExtraInformation string `json:"extraInformation,omitempty"`
	RateLeft         int    `json:"rateLeft"`
}

// endpointFor maps an event type to the tracker endpoint accepting it.
func endpointFor(t models.EventType) string {
	switch t {
	case models.ChapterRead:
		return "/api/scrobble/update"
	case models.ScoreUpdated:
		return "/api/scrobble/rating"
	case models.AddWantToRead, models.RemoveWantToRead:
		return "/api/scrobble/want-to-read"
	case models.ReviewUpdated:
		return "/api/scrobble/review"
	default:
		return ""
	}
}
