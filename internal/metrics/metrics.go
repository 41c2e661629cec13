// Package metrics exposes Prometheus collectors for the selection pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pagepick "github.com/anatolykoptev/go-pagepick"
)

const namespace = "pagepick"

var (
	classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classification lookups by result (cache_hit, ok, error)",
		},
		[]string{"result"},
	)

	classifyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Duration of classification lookups that missed the cache",
			Buckets:   prometheus.DefBuckets,
		},
	)

	selections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Total selection runs",
		},
	)

	selectionImages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_images_total",
			Help:      "Images seen by selection runs, by outcome (candidate, assigned, unused)",
		},
		[]string{"outcome"},
	)

	selectionDiagnostics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_diagnostics_total",
			Help:      "Diagnostics attached to selection reports",
		},
	)

	selectionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_duration_seconds",
			Help:      "End-to-end duration of selection runs",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		},
	)

	panics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Recovered worker panics by stage",
		},
		[]string{"stage"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	registerOnce sync.Once
)

// Init registers collectors with the default registry. Safe to call twice.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(classifications, classifyLatency, selections, selectionImages,
			selectionDiagnostics, selectionLatency, panics, httpRequests, httpLatency)
	})
}

// Handler returns the http.Handler for /metrics.
func Handler() http.Handler { return promhttp.Handler() }

// ObserveClassification records one classification lookup.
func ObserveClassification(ev pagepick.ClassificationEvent) {
	switch {
	case ev.CacheHit:
		classifications.WithLabelValues("cache_hit").Inc()
		return
	case ev.Err != nil:
		classifications.WithLabelValues("error").Inc()
	default:
		classifications.WithLabelValues("ok").Inc()
	}
	classifyLatency.Observe(ev.Duration.Seconds())
}

// ObserveSelection records one pipeline run.
func ObserveSelection(ev pagepick.SelectionEvent) {
	selections.Inc()
	selectionImages.WithLabelValues("candidate").Add(float64(ev.Candidates))
	selectionImages.WithLabelValues("assigned").Add(float64(ev.Assigned))
	selectionImages.WithLabelValues("unused").Add(float64(ev.Unused))
	selectionDiagnostics.Add(float64(ev.Warnings))
	selectionLatency.Observe(ev.Duration.Seconds())
}

// IncPanic counts a recovered panic.
func IncPanic(stage string) { panics.WithLabelValues(stage).Inc() }

// ObserveHTTP records one served request.
func ObserveHTTP(route string, code int, dur time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpLatency.WithLabelValues(route).Observe(dur.Seconds())
}

// Instrument chains the collectors onto cfg's callbacks, keeping any
// callbacks already set.
func Instrument(cfg *pagepick.Config) {
	prevCls, prevSel, prevPanic := cfg.OnClassification, cfg.OnSelection, cfg.OnPanic
	cfg.OnClassification = func(ev pagepick.ClassificationEvent) {
		ObserveClassification(ev)
		if prevCls != nil {
			prevCls(ev)
		}
	}
	cfg.OnSelection = func(ev pagepick.SelectionEvent) {
		ObserveSelection(ev)
		if prevSel != nil {
			prevSel(ev)
		}
	}
	cfg.OnPanic = func(tag string, r any) {
		IncPanic(tag)
		if prevPanic != nil {
			prevPanic(tag, r)
		}
	}
}
