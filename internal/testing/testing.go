// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/scrobblex/internal/services"
)

// TrackerResult is one scripted reply of a [FakeTracker].
type TrackerResult struct {
	Response *services.ScrobbleResponse
	Err      error
}

// Fail builds a scripted failure wrapping sentinel in a [services.APIError].
func Fail(sentinel error, msg string) TrackerResult {
	return TrackerResult{
		Response: &services.ScrobbleResponse{ErrorMessage: msg},
		Err:      &services.APIError{Message: msg, Err: sentinel},
	}
}

// FakeTracker is a test double for [services.Tracker].
//
// Quotas are tracked per credential and decremented on every successful post. Per-series scripts are consumed
// in order before falling back to success.
type FakeTracker struct {
	mu         sync.Mutex
	quotas     map[string]int
	scripts    map[string][]TrackerResult
	valid      map[string]bool
	posts      []services.ScrobblePayload
	quotaCalls []string

	// QuotaErr is returned by RemainingQuota when set.
	QuotaErr error
	// PostHook runs before each post is answered.
	PostHook func(p *services.ScrobblePayload)
}

var _ services.Tracker = (*FakeTracker)(nil)

// NewFakeTracker creates an empty [FakeTracker].
func NewFakeTracker() *FakeTracker {
	return &FakeTracker{
		quotas:  make(map[string]int),
		scripts: make(map[string][]TrackerResult),
		valid:   make(map[string]bool),
	}
}

// SetQuota sets the remaining quota for a credential.
func (f *FakeTracker) SetQuota(credential string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotas[credential] = n
}

// SetValid marks a credential as valid for CheckCredentialValid.
func (f *FakeTracker) SetValid(credential string, valid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid[credential] = valid
}

// OnSeries queues results for posts about the named series.
func (f *FakeTracker) OnSeries(seriesName string, results ...TrackerResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[seriesName] = append(f.scripts[seriesName], results...)
}

// Posts returns a copy of every payload posted so far.
func (f *FakeTracker) Posts() []services.ScrobblePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.ScrobblePayload(nil), f.posts...)
}

// QuotaCalls returns the credentials RemainingQuota was called with.
func (f *FakeTracker) QuotaCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.quotaCalls...)
}

func (f *FakeTracker) CheckCredentialValid(ctx context.Context, credential string, provider services.Provider) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid[credential], nil
}

func (f *FakeTracker) RemainingQuota(ctx context.Context, credential string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotaCalls = append(f.quotaCalls, credential)
	if f.QuotaErr != nil {
		return 0, f.QuotaErr
	}
	return f.quotas[credential], nil
}

func (f *FakeTracker) PostEvent(ctx context.Context, payload *services.ScrobblePayload) (*services.ScrobbleResponse, error) {
	if f.PostHook != nil {
		f.PostHook(payload)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.posts = append(f.posts, *payload)

	if queue := f.scripts[payload.SeriesName]; len(queue) > 0 {
		f.scripts[payload.SeriesName] = queue[1:]
		res := queue[0]
		if res.Response != nil {
			res.Response.RateLeft = f.quotas[payload.Credential]
		}
		return res.Response, res.Err
	}

	if f.quotas[payload.Credential] > 0 {
		f.quotas[payload.Credential]--
	}
	return &services.ScrobbleResponse{Successful: true, RateLeft: f.quotas[payload.Credential]}, nil
}

// RecordingSleeper is an injectable sleep function that records requested durations without sleeping.
type RecordingSleeper struct {
	mu    sync.Mutex
	naps  []time.Duration
	Block bool
}

// Sleep records d and returns immediately, or waits for ctx when Block is set.
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.naps = append(s.naps, d)
	block := s.Block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}

// Naps returns the recorded durations.
func (s *RecordingSleeper) Naps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.naps...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}
