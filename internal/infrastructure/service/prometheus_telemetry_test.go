package service_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/infrastructure/service"
)

func scrapeMetrics(t *testing.T, tel *service.PrometheusTelemetry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("scrape status %d", rec.Code)
	}
	return rec.Body.String()
}

func wantMetric(t *testing.T, body, line string) {
	t.Helper()
	if !strings.Contains(body, line) {
		t.Fatalf("exposition missing %q:\n%s", line, body)
	}
}

func TestPrometheusTelemetryActiveCircuitsGauge(t *testing.T) {
	tel := service.NewPrometheusTelemetry()

	tel.ActiveCircuits(1)
	tel.ActiveCircuits(1)
	tel.ActiveCircuits(-1)

	wantMetric(t, scrapeMetrics(t, tel), "mixway_active_circuits 1")

	tel.ActiveCircuits(-1)
	wantMetric(t, scrapeMetrics(t, tel), "mixway_active_circuits 0")
}

func TestPrometheusTelemetryRoundTripHistogram(t *testing.T) {
	tel := service.NewPrometheusTelemetry()

	tel.RoundTripDone(250 * time.Millisecond)
	tel.RoundTripDone(500 * time.Millisecond)

	body := scrapeMetrics(t, tel)
	wantMetric(t, body, "mixway_roundtrip_seconds_count 2")
	wantMetric(t, body, "mixway_roundtrip_seconds_sum 0.75")
	wantMetric(t, body, `mixway_roundtrip_seconds_bucket{le="0.25"} 1`)
}

func TestPrometheusTelemetryEventCounters(t *testing.T) {
	tel := service.NewPrometheusTelemetry()

	tel.CircuitBuilt(3, 120*time.Millisecond)
	tel.CellRelayed(vo.CmdData)
	tel.CellRelayed(vo.CmdData)
	tel.CellDropped("bad tag")
	tel.ReputationEvent(vo.EventTimeout)

	body := scrapeMetrics(t, tel)
	wantMetric(t, body, `mixway_circuits_built_total{hops="3"} 1`)
	wantMetric(t, body, `mixway_cells_relayed_total{cmd="DATA"} 2`)
	wantMetric(t, body, `mixway_cells_dropped_total{reason="bad tag"} 1`)
	wantMetric(t, body, `mixway_reputation_events_total{kind="TIMEOUT"} 1`)
}
