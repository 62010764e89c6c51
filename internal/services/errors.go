package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for tracker response classification.
// Use errors.Is(err, services.ErrUnknownSeries) to check.
var (
	ErrTooManyRequests   = errors.New("tracker: too many requests")
	ErrUnauthorized      = errors.New("tracker: license unauthorized")
	ErrInvalidCredential = errors.New("tracker: provider credential invalid")
	ErrUnknownSeries     = errors.New("tracker: unknown series")
	ErrReviewRejected    = errors.New("tracker: review rejected")
	ErrServerError       = errors.New("tracker: server error")
	ErrRejected          = errors.New("tracker: request rejected")
	ErrUnreachable       = errors.New("tracker: service unreachable")
)

// APIError wraps a sentinel error with the HTTP status code and the message returned by the tracker.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %s", e.Err, e.Message)
	}
	return fmt.Sprintf("%v: HTTP %d: %s", e.Err, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes that need the response body to classify.
func classifyStatus(code int) error {
	switch code {
	case http.StatusTooManyRequests:
		return ErrTooManyRequests
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}
		return nil
	}
}

// messageClasses maps substrings of tracker error messages to sentinels, checked in order.
var messageClasses = []struct {
	fragment string
	err      error
}{
	{"too many requests", ErrTooManyRequests},
	{"unauthorized", ErrUnauthorized},
	{"access token is invalid", ErrInvalidCredential},
	{"unknown series", ErrUnknownSeries},
	{"review was not saved", ErrReviewRejected},
}

// classifyMessage maps a tracker error message to a sentinel, defaulting to [ErrRejected].
func classifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	for _, c := range messageClasses {
		if strings.Contains(lower, c.fragment) {
			return c.err
		}
	}
	return ErrRejected
}

// IsFatal reports whether err must abort a whole sync run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnreachable)
}
