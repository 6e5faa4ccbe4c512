// Package metrics records fetch outcomes as Prometheus metrics. A run writes
// them once, in the text exposition format, for node_exporter's textfile
// collector or for inspection.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dhcgn/chatlog-reconstruct/stats"
)

type Recorder struct {
	registry *prometheus.Registry

	fetches    *prometheus.CounterVec
	bytes      prometheus.Counter
	pauses     prometheus.Counter
	pausedSecs prometheus.Counter
	references prometheus.Gauge
	records    *prometheus.GaugeVec
	duration   *prometheus.HistogramVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlog_fetch_total",
				Help: "Attachment fetches by outcome",
			},
			[]string{"outcome"},
		),
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatlog_fetch_bytes_total",
			Help: "Bytes written by successful downloads",
		}),
		pauses: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatlog_rate_pauses_total",
			Help: "Rate-limit pauses taken by the download batch",
		}),
		pausedSecs: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatlog_rate_paused_seconds_total",
			Help: "Time spent waiting in rate-limit pauses",
		}),
		references: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatlog_references",
			Help: "Unique attachment references in the combined conversation",
		}),
		records: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chatlog_records",
				Help: "Records per message log and after reconciliation",
			},
			[]string{"source"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatlog_fetch_duration_seconds",
				Help:    "Attachment fetch duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
	}
}

// Record is a stats subscriber.
func (r *Recorder) Record(evt stats.Event) {
	switch evt.Type {
	case stats.EventTypeParsed:
		r.records.WithLabelValues(evt.Source).Set(float64(evt.Count))
	case stats.EventTypeCombined:
		r.records.WithLabelValues("combined").Set(float64(evt.Count))
	case stats.EventTypeReferences:
		r.references.Set(float64(evt.Count))
	case stats.EventTypeDownloaded, stats.EventTypeSkipped, stats.EventTypeRejected, stats.EventTypeFailed:
		outcome := string(evt.Type)
		r.fetches.WithLabelValues(outcome).Inc()
		r.duration.WithLabelValues(outcome).Observe(evt.Duration.Seconds())
		if evt.Type == stats.EventTypeDownloaded {
			r.bytes.Add(float64(evt.Bytes))
		}
	case stats.EventTypePaused:
		r.pauses.Inc()
		r.pausedSecs.Add(evt.Duration.Seconds())
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteFile writes every metric to path atomically.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
