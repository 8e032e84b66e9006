// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AttemptPurger deletes failed login attempts older than a cutoff.
// *failedloginstore.Store implements it.
type AttemptPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reconciler pushes unconfirmed optimistic settings writes to the store.
// *settingsync.Service implements it.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// CredentialRepairer rewrites legacy double-encrypted credentials.
// *usermgmt.Service implements it.
type CredentialRepairer interface {
	RepairCredentials(ctx context.Context) (int, error)
}

// FailedAttemptPurgeJob creates a job that deletes failed login attempts
// older than maxAge. Lockout only ever looks at the trailing window, so rows
// past it are dead weight.
func FailedAttemptPurgeJob(store AttemptPurger, maxAge time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "failed-attempt-purge",
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			deleted, err := store.PurgeOlderThan(ctx, time.Now().Add(-maxAge))
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("purged old failed login attempts",
					zap.Int64("deleted", deleted),
					zap.Duration("max_age", maxAge))
			}
			return nil
		},
	}
}

// SettingsReconcileJob creates a job that retries optimistic settings
// writes the store has not confirmed.
func SettingsReconcileJob(svc Reconciler, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "settings-reconcile",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := svc.Reconcile(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("reconciled pending settings", zap.Int("confirmed", n))
			}
			return nil
		},
	}
}

// CredentialRepairJob creates a job that rewrites double-encrypted
// credentials in single-layer form. It runs once shortly after startup and
// then daily, which catches records written by older replicas.
func CredentialRepairJob(svc CredentialRepairer, logger *zap.Logger) Job {
	return Job{
		Name:     "credential-repair",
		Interval: 24 * time.Hour,
		Delay:    30 * time.Second,
		Run: func(ctx context.Context) error {
			n, err := svc.RepairCredentials(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("repaired double-encrypted credentials", zap.Int("repaired", n))
			}
			return nil
		},
	}
}
