package main

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	bridge "github.com/SaveTheRbtz/pandoc-bridge-go"
)

const metricsNamespace = "pandocbridge"

const (
	resultOK              = "ok"
	resultConversionError = "conversion_error"
	resultStreamError     = "stream_error"
	resultError           = "error"
)

type metrics struct {
	conversions *prometheus.CounterVec
	bytesIn     prometheus.Counter
	bytesOut    prometheus.Counter
	duration    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		conversions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "conversions_total",
			Help:      "Conversions by result.",
		}, []string{"result"}),
		bytesIn: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pulled_bytes_total",
			Help:      "UTF-8 bytes handed to the engine.",
		}),
		bytesOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pushed_bytes_total",
			Help:      "UTF-8 bytes received from the engine.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "conversion_duration_seconds",
			Help:      "Time spent inside the engine.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

func (m *metrics) observe(stats *bridge.Stats, err error) {
	m.conversions.WithLabelValues(result(err)).Inc()
	m.bytesIn.Add(float64(stats.BytesPulled))
	m.bytesOut.Add(float64(stats.BytesPushed))
	m.duration.Observe(stats.Duration.Seconds())
}

func result(err error) string {
	var (
		convErr  *bridge.ConversionError
		readErr  *bridge.StreamReadError
		writeErr *bridge.StreamWriteError
	)
	switch {
	case err == nil:
		return resultOK
	case errors.As(err, &convErr):
		return resultConversionError
	case errors.As(err, &readErr), errors.As(err, &writeErr):
		return resultStreamError
	}
	return resultError
}
