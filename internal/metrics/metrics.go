// Package metrics registers the Prometheus collectors for exam activity.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce     sync.Once
	sessionsStarted  prometheus.Counter
	submissionsTotal *prometheus.CounterVec
	gradingSeconds   prometheus.Histogram
	scoreEditsTotal  *prometheus.CounterVec
)

// Register initialises the collectors on the default registry.
func Register() {
	registerOnce.Do(func() {
		sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autograde_sessions_started_total",
			Help: "Total number of exam sessions started.",
		})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograde_submissions_total",
			Help: "Exam submissions by trigger and outcome.",
		}, []string{"trigger", "outcome"})

		gradingSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autograde_grading_duration_seconds",
			Help:    "Latency of the grading hand-off.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		})

		scoreEditsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autograde_score_edits_total",
			Help: "Teacher score edits by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(sessionsStarted, submissionsTotal, gradingSeconds, scoreEditsTotal)
	})
}

// SessionsStarted exposes the sessions counter.
func SessionsStarted() prometheus.Counter {
	Register()
	return sessionsStarted
}

// Submissions exposes the submissions counter.
func Submissions() *prometheus.CounterVec {
	Register()
	return submissionsTotal
}

// GradingDuration exposes the grading latency histogram.
func GradingDuration() prometheus.Histogram {
	Register()
	return gradingSeconds
}

// ScoreEdits exposes the score edit counter.
func ScoreEdits() *prometheus.CounterVec {
	Register()
	return scoreEditsTotal
}
