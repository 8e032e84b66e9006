// Package metrics defines the Prometheus collectors for authentication,
// lockout, storage-tier and settings-sync activity.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carexps"

// Authentication outcomes used as the "outcome" label of AuthAttempts.
const (
	OutcomeSuccess       = "success"
	OutcomeUserNotFound  = "user_not_found"
	OutcomeWrongPassword = "wrong_password"
	OutcomeNoCredentials = "no_credentials"
	OutcomeInactive      = "inactive"
	OutcomeLocked        = "locked"
)

var (
	// AuthAttempts counts authentication attempts by outcome.
	AuthAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Authentication attempts partitioned by outcome.",
	}, []string{"outcome"})

	// Lockouts counts accounts that crossed the failed-attempt threshold.
	Lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "lockouts_total",
		Help:      "Accounts locked after too many failed attempts.",
	})

	// TierFallbacks counts reads served by a tier other than the first.
	TierFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "tier_fallbacks_total",
		Help:      "Reads served by a lower-priority storage tier.",
	}, []string{"tier"})

	// TierWriteFailures counts failed writes per tier.
	TierWriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "tier_write_failures_total",
		Help:      "Writes that failed on a storage tier.",
	}, []string{"tier"})

	// SettingsSyncs counts settings writes by mode (direct, optimistic, device, import, reset).
	SettingsSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "syncs_total",
		Help:      "Settings writes partitioned by mode.",
	}, []string{"mode"})

	// TaskRuns counts background task executions by job and result (ok, error, panic).
	TaskRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "runs_total",
		Help:      "Background task executions partitioned by job and result.",
	}, []string{"job", "result"})

	// APIRequests counts JSON API requests by operation group and status class (2xx, 4xx, 5xx).
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "API requests partitioned by operation group and status class.",
	}, []string{"op", "class"})

	// APIRequestDuration observes API latency by operation group.
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "API request latency partitioned by operation group.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{AuthAttempts, Lockouts, TierFallbacks, TierWriteFailures, SettingsSyncs, TaskRuns, APIRequests, APIRequestDuration}
}

// Register adds every collector to reg. Collectors that are already
// registered with reg are skipped.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}
