package manager

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	currentRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "statefuld",
			Subsystem: "model",
			Name:      "current_requests",
			Help:      "Requests currently inside the inference pipeline",
		},
		[]string{"model", "version"},
	)

	requestsSuccessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statefuld",
			Subsystem: "model",
			Name:      "requests_success_total",
			Help:      "Successfully completed inference requests",
		},
		[]string{"model", "version"},
	)

	requestsFailTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statefuld",
			Subsystem: "model",
			Name:      "requests_fail_total",
			Help:      "Failed inference requests",
		},
		[]string{"model", "version"},
	)

	waitForHandleSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statefuld",
			Subsystem: "model",
			Name:      "wait_for_handle_seconds",
			Help:      "Time spent waiting for a free inference handle",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"model", "version"},
	)

	phaseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statefuld",
			Subsystem: "model",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each pipeline phase",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase", "model", "version", "handle"},
	)
)

func init() {
	prometheus.MustRegister(currentRequests, requestsSuccessTotal, requestsFailTotal,
		waitForHandleSeconds, phaseDurationSeconds)
}

// reporter observes pipeline metrics for one model version.
type reporter struct {
	model   string
	version string
}

func newReporter(model string, version int64) *reporter {
	return &reporter{model: model, version: strconv.FormatInt(version, 10)}
}

func (r *reporter) requestStarted() {
	currentRequests.WithLabelValues(r.model, r.version).Inc()
}

func (r *reporter) requestFinished(err error) {
	currentRequests.WithLabelValues(r.model, r.version).Dec()
	if err != nil {
		requestsFailTotal.WithLabelValues(r.model, r.version).Inc()
		return
	}
	requestsSuccessTotal.WithLabelValues(r.model, r.version).Inc()
}

func (r *reporter) observeWait(d time.Duration) {
	waitForHandleSeconds.WithLabelValues(r.model, r.version).Observe(d.Seconds())
}

func (r *reporter) observePhase(phase string, handleID int, d time.Duration) {
	phaseDurationSeconds.
		WithLabelValues(phase, r.model, r.version, strconv.Itoa(handleID)).
		Observe(d.Seconds())
}
