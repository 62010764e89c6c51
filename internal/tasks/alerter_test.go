package tasks

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/desertthunder/scrobblex/internal/metrics"
	"github.com/desertthunder/scrobblex/internal/shared"
)

func TestLogAlerter(t *testing.T) {
	var buf bytes.Buffer
	alerter := NewLogAlerter(shared.NewLogger(&buf))
	counter := metrics.Alerts.WithLabelValues(AlertLicenseInvalid)
	before := testutil.ToFloat64(counter)

	alerter.Alert(AlertLicenseInvalid, "license rejected")
	alerter.Alert(AlertLicenseInvalid, "license rejected")
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("operator attention required")))

	alerter.Resolve(AlertLicenseInvalid)
	assert.Contains(t, buf.String(), "operator alert resolved")

	alerter.Alert(AlertLicenseInvalid, "license rejected")
	assert.Equal(t, before+2, testutil.ToFloat64(counter))

	buf.Reset()
	alerter.Resolve(AlertServiceUnreachable)
	assert.Empty(t, buf.String())
}
