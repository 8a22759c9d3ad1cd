package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TranscriptionMetrics tracks the day transcription worker.
type TranscriptionMetrics struct {
	days         *prometheus.CounterVec
	failures     *prometheus.CounterVec
	dayDuration  prometheus.Histogram
	queueDepth   prometheus.Gauge
	lockConflict prometheus.Counter
}

// NewTranscriptionMetrics registers the transcription metrics on the provided registerer.
func NewTranscriptionMetrics(reg prometheus.Registerer) *TranscriptionMetrics {
	if reg == nil {
		return &TranscriptionMetrics{}
	}
	days := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcription_days_total",
		Help:      "Day transcription runs by terminal outcome.",
	}, []string{"outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcription_recording_failures_total",
		Help:      "Recording pipeline failures by stage.",
	}, []string{"stage"})
	dayDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcription_day_duration_seconds",
		Help:      "Wall time spent processing one day.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transcription_queue_depth",
		Help:      "Jobs waiting for the transcription worker.",
	})
	lockConflict := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcription_lock_conflicts_total",
		Help:      "Start requests rejected because the day was already transcribing.",
	})
	reg.MustRegister(days, failures, dayDuration, queueDepth, lockConflict)
	return &TranscriptionMetrics{
		days:         days,
		failures:     failures,
		dayDuration:  dayDuration,
		queueDepth:   queueDepth,
		lockConflict: lockConflict,
	}
}

// ObserveDay records the outcome and duration of one day run.
func (m *TranscriptionMetrics) ObserveDay(outcome string, duration time.Duration) {
	if m == nil || m.days == nil {
		return
	}
	m.days.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.dayDuration.Observe(duration.Seconds())
}

// IncRecordingFailure counts a failed recording under its pipeline stage.
func (m *TranscriptionMetrics) IncRecordingFailure(stage string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(stage)).Inc()
}

// SetQueueDepth publishes the number of waiting jobs.
func (m *TranscriptionMetrics) SetQueueDepth(depth int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *TranscriptionMetrics) IncLockConflict() {
	if m == nil || m.lockConflict == nil {
		return
	}
	m.lockConflict.Inc()
}
