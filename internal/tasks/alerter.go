package tasks

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/scrobblex/internal/metrics"
)

// Alert reasons.
const (
	AlertLicenseInvalid     = "license_invalid"
	AlertServiceUnreachable = "service_unreachable"
)

// Alerter raises operator-facing signals for fatal conditions.
type Alerter interface {
	Alert(reason, message string)
	Resolve(reason string)
}

// LogAlerter logs each reason once per process at error level.
type LogAlerter struct {
	logger *log.Logger
	seen   sync.Map
}

// NewLogAlerter creates a [LogAlerter] writing to logger.
func NewLogAlerter(logger *log.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(reason, message string) {
	if _, loaded := a.seen.LoadOrStore(reason, struct{}{}); loaded {
		return
	}

	metrics.Alerts.WithLabelValues(reason).Inc()
	a.logger.Error("operator attention required", "reason", reason, "message", message)
}

// Resolve forgets a reason so the next occurrence alerts again.
func (a *LogAlerter) Resolve(reason string) {
	if _, loaded := a.seen.LoadAndDelete(reason); loaded {
		a.logger.Info("operator alert resolved", "reason", reason)
	}
}
