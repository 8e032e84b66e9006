package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/carexps/internal/app/system/tasks"
	"go.uber.org/zap"
)

type fakePurger struct {
	cutoff time.Time
	err    error
}

func (f *fakePurger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

type countFunc func(ctx context.Context) (int, error)

func (f countFunc) Reconcile(ctx context.Context) (int, error)         { return f(ctx) }
func (f countFunc) RepairCredentials(ctx context.Context) (int, error) { return f(ctx) }

func TestFailedAttemptPurgeJob(t *testing.T) {
	p := &fakePurger{}
	job := tasks.FailedAttemptPurgeJob(p, 24*time.Hour, zap.NewNop())

	before := time.Now().Add(-24 * time.Hour)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if p.cutoff.Before(before) || p.cutoff.After(time.Now().Add(-24*time.Hour)) {
		t.Errorf("cutoff = %v, want about 24h ago", p.cutoff)
	}

	p.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Error("Run() should return the store error")
	}
}

func TestSettingsReconcileJob(t *testing.T) {
	calls := 0
	job := tasks.SettingsReconcileJob(countFunc(func(ctx context.Context) (int, error) {
		calls++
		return 2, nil
	}), time.Minute, zap.NewNop())

	if job.Interval != time.Minute {
		t.Errorf("Interval = %v, want 1m", job.Interval)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("Reconcile called %d times, want 1", calls)
	}
}

func TestCredentialRepairJob(t *testing.T) {
	want := errors.New("list failed")
	job := tasks.CredentialRepairJob(countFunc(func(ctx context.Context) (int, error) {
		return 0, want
	}), zap.NewNop())

	if job.Delay <= 0 {
		t.Error("credential repair should not run at startup")
	}
	if err := job.Run(context.Background()); !errors.Is(err, want) {
		t.Errorf("Run() error = %v, want %v", err, want)
	}
}
