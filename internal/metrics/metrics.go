// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus collectors of runcfg.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Loading
	configLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcfg_config_loads_total",
		Help: "Run config loads by outcome",
	}, []string{"outcome"}) // outcome=valid|invalid|error

	configLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "runcfg_config_load_duration_seconds",
		Help:    "Time spent parsing, resolving and validating a run config",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	configIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcfg_config_issues_total",
		Help: "Validation issues reported by severity",
	}, []string{"severity"}) // severity=error|warning

	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcfg_cache_requests_total",
		Help: "Result cache lookups by result",
	}, []string{"result"}) // result=hit|miss

	// Watching
	watchReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcfg_watch_reloads_total",
		Help: "Watched run config reloads by outcome",
	}, []string{"outcome"}) // outcome=success|invalid|error

	currentStages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "runcfg_current_stages",
		Help: "Number of stages in the currently watched run config",
	})

	currentLoadedAt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "runcfg_current_loaded_timestamp_seconds",
		Help: "Unix time the watched run config was last loaded successfully",
	})

	// HTTP
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcfg_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "runcfg_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// Sinks
	historyRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcfg_history_records_total",
		Help: "History store writes by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcfg_publish_total",
		Help: "Resolved config publishes to Redis by outcome",
	}, []string{"outcome"}) // outcome=success|failure
)

// RecordLoad records one finished load.
func RecordLoad(outcome string, d time.Duration, errors, warnings int) {
	configLoadsTotal.WithLabelValues(outcome).Inc()
	configLoadDuration.Observe(d.Seconds())
	if errors > 0 {
		configIssuesTotal.WithLabelValues("error").Add(float64(errors))
	}
	if warnings > 0 {
		configIssuesTotal.WithLabelValues("warning").Add(float64(warnings))
	}
}

func IncCacheHit()  { cacheRequestsTotal.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheRequestsTotal.WithLabelValues("miss").Inc() }

// RecordReload records a watcher reload. stages and loadedAt are only
// applied on success.
func RecordReload(outcome string, stages int, loadedAt time.Time) {
	watchReloadsTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		currentStages.Set(float64(stages))
		currentLoadedAt.Set(float64(loadedAt.Unix()))
	}
}

func ObserveHTTP(route string, code int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func IncHistoryRecord(ok bool) { historyRecordsTotal.WithLabelValues(outcome(ok)).Inc() }
func IncPublish(ok bool)       { publishTotal.WithLabelValues(outcome(ok)).Inc() }

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
