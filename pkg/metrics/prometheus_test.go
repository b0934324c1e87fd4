package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velemoonkon/sonar/pkg/scanner"
)

func TestMetrics_ProbeLifecycle(t *testing.T) {
	m := New()

	m.ProbeStarted(scanner.FamilyPorts)
	m.ProbeStarted(scanner.FamilyPorts)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.probesInflight.WithLabelValues("ports")))

	m.ProbeFinished(scanner.FamilyPorts, scanner.Outcome{State: scanner.StateOpen, Duration: 5 * time.Millisecond})
	m.ProbeFinished(scanner.FamilyPorts, scanner.Outcome{State: scanner.StateFiltered, Duration: time.Second})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.probesInflight.WithLabelValues("ports")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probesTotal.WithLabelValues("ports", "open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probesTotal.WithLabelValues("ports", "filtered")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.probeDuration))
}

func TestMetrics_ScanStatus(t *testing.T) {
	m := New()

	tests := []struct {
		summary scanner.Summary
		err     error
		status  string
	}{
		{scanner.Summary{Found: 3, DurationMs: 1200}, nil, "completed"},
		{scanner.Summary{Cancelled: true}, errors.New("context canceled"), "cancelled"},
		{scanner.Summary{}, errors.New("emit: broken pipe"), "failed"},
	}

	for _, tt := range tests {
		m.ScanStarted(scanner.FamilyDNS)
		m.ScanFinished(scanner.FamilyDNS, tt.summary, tt.err)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.scansTotal.WithLabelValues("dns", tt.status)), tt.status)
	}

	assert.Equal(t, 0.0, testutil.ToFloat64(m.scansActive.WithLabelValues("dns")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.scanFound.WithLabelValues("dns")))
}

func TestMetrics_HandlerServes(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodPost, "/api/v1/scans/ports", http.StatusOK, 150*time.Millisecond)
	m.ProbeStarted(scanner.FamilyPorts)
	m.ProbeFinished(scanner.FamilyPorts, scanner.Outcome{State: scanner.StateClosed})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	for _, name := range []string{
		`sonar_probe_total{family="ports",state="closed"} 1`,
		`sonar_http_requests_total{code="200",method="POST",route="/api/v1/scans/ports"} 1`,
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
