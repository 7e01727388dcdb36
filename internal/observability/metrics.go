package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Storage operation results
const (
	ResultOK     = "ok"
	ResultAbsent = "absent"
	ResultError  = "error"
)

var (
	storageOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workshop",
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Storage gateway operations partitioned by operation and result.",
	}, []string{"op", "result"})
	savesCoalesced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workshop",
		Subsystem: "progress",
		Name:      "saves_coalesced_total",
		Help:      "Scheduled saves replaced by a later change before they ran.",
	})
	stepTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workshop",
		Subsystem: "progress",
		Name:      "step_transitions_total",
		Help:      "Step transitions partitioned by activity and direction.",
	}, []string{"activity", "direction"})
	codeSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workshop",
		Subsystem: "progress",
		Name:      "code_submissions_total",
		Help:      "User code submissions partitioned by outcome.",
	}, []string{"outcome"})
	liveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "workshop",
		Subsystem: "server",
		Name:      "live_sessions",
		Help:      "Activity controllers currently held in memory.",
	})
)

func init() {
	prometheus.MustRegister(storageOps, savesCoalesced, stepTransitions, codeSubmissions, liveSessions)
}

// RecordStorageOp counts one storage gateway operation.
func RecordStorageOp(op, result string) {
	storageOps.WithLabelValues(op, result).Inc()
}

// RecordSaveCoalesced counts a pending save that was superseded.
func RecordSaveCoalesced() {
	savesCoalesced.Inc()
}

// RecordStepTransition counts a step change ("forward", "back" or "reset").
func RecordStepTransition(activity, direction string) {
	stepTransitions.WithLabelValues(activity, direction).Inc()
}

// RecordCodeSubmission counts a code-entry attempt ("accepted" or "rejected").
func RecordCodeSubmission(outcome string) {
	codeSubmissions.WithLabelValues(outcome).Inc()
}

// SetLiveSessions reports the number of controllers held by the server.
func SetLiveSessions(n int) {
	liveSessions.Set(float64(n))
}
