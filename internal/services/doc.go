// Package services implements the client side of the remote scrobble tracking API.
//
// # Tracker Interface
//
// [Tracker] is the only network boundary of the engine: credential checks, quota lookups and event delivery.
// [TrackerClient] implements it over HTTP with the license key and the user's provider token sent as headers.
//
// # Error Classification
//
// Every failure is returned as an [APIError] wrapping one sentinel:
//   - [ErrTooManyRequests] : transient, retry the same event after a cooldown
//   - [ErrUnauthorized] : license invalid, abort the run
//   - [ErrInvalidCredential] : the user's provider token was rejected
//   - [ErrUnknownSeries] : the tracker cannot match the series
//   - [ErrReviewRejected] : review did not meet upstream requirements
//   - [ErrServerError] / [ErrRejected] : unclassified failures
//   - [ErrUnreachable] : transport failure or open circuit, abort the run
//
// Classification uses the HTTP status first (429, 401, 5xx) and the errorMessage field of the response otherwise.
//
// # Circuit Breaker
//
// [BreakerTracker] wraps any Tracker with sony/gobreaker. While open it fails fast with [ErrUnreachable].
package services
