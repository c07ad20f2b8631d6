package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

const metricsNamespace = "mixway"

var _ svc.TelemetrySink = (*PrometheusTelemetry)(nil)

// PrometheusTelemetry counts protocol events on a private registry so
// several instances can coexist in one process. Handler exposes the
// registry for a /metrics endpoint.
type PrometheusTelemetry struct {
	reg *prometheus.Registry

	circuitsBuilt     *prometheus.CounterVec
	buildSeconds      prometheus.Histogram
	circuitsFailed    *prometheus.CounterVec
	circuitsDestroyed *prometheus.CounterVec
	cellsRelayed      *prometheus.CounterVec
	cellsDropped      *prometheus.CounterVec
	handshakeSeconds  prometheus.Histogram
	roundtripSeconds  prometheus.Histogram
	activeCircuits    prometheus.Gauge
	reputationEvents  *prometheus.CounterVec
}

func NewPrometheusTelemetry() *PrometheusTelemetry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &PrometheusTelemetry{
		reg: reg,
		circuitsBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "circuits_built_total",
			Help:      "Circuits built to completion, by hop count",
		}, []string{"hops"}),
		buildSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "circuit_build_seconds",
			Help:      "Time from first hop handshake to an established circuit",
			Buckets:   prometheus.DefBuckets,
		}),
		circuitsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "circuits_failed_total",
			Help:      "Circuits torn down by a fault, by reason",
		}, []string{"reason"}),
		circuitsDestroyed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "circuits_destroyed_total",
			Help:      "Circuits torn down deliberately, by reason",
		}, []string{"reason"}),
		cellsRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cells_relayed_total",
			Help:      "Cells processed and passed on, by command",
		}, []string{"cmd"}),
		cellsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cells_dropped_total",
			Help:      "Cells discarded without processing, by reason",
		}, []string{"reason"}),
		handshakeSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "handshake_seconds",
			Help:      "Time to answer one hop handshake",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		roundtripSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "roundtrip_seconds",
			Help:      "End-to-end time from first data cell to the exit acknowledgment",
			Buckets:   prometheus.DefBuckets,
		}),
		activeCircuits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_circuits",
			Help:      "Circuits currently in service",
		}),
		reputationEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reputation_events_total",
			Help:      "Reputation events recorded against relays, by kind",
		}, []string{"kind"}),
	}
}

// Handler serves the collected metrics in the exposition format.
func (t *PrometheusTelemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.reg, promhttp.HandlerOpts{})
}

func (t *PrometheusTelemetry) CircuitBuilt(hops int, elapsed time.Duration) {
	t.circuitsBuilt.WithLabelValues(strconv.Itoa(hops)).Inc()
	t.buildSeconds.Observe(elapsed.Seconds())
}

func (t *PrometheusTelemetry) CircuitFailed(reason string) {
	t.circuitsFailed.WithLabelValues(reason).Inc()
}

func (t *PrometheusTelemetry) CircuitDestroyed(reason string) {
	t.circuitsDestroyed.WithLabelValues(reason).Inc()
}

func (t *PrometheusTelemetry) CellRelayed(cmd vo.CellCommand) {
	t.cellsRelayed.WithLabelValues(cmd.String()).Inc()
}

func (t *PrometheusTelemetry) CellDropped(reason string) {
	t.cellsDropped.WithLabelValues(reason).Inc()
}

func (t *PrometheusTelemetry) HandshakeDone(elapsed time.Duration) {
	t.handshakeSeconds.Observe(elapsed.Seconds())
}

func (t *PrometheusTelemetry) RoundTripDone(elapsed time.Duration) {
	t.roundtripSeconds.Observe(elapsed.Seconds())
}

func (t *PrometheusTelemetry) ActiveCircuits(delta int) {
	t.activeCircuits.Add(float64(delta))
}

func (t *PrometheusTelemetry) ReputationEvent(kind vo.ReputationEventKind) {
	t.reputationEvents.WithLabelValues(kind.String()).Inc()
}
