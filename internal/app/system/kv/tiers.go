package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/carexps/internal/app/system/metrics"
	"github.com/dalemusser/carexps/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Tiers is a prioritized list of backends. Reads walk the list until one
// tier can serve the key; writes go to every tier.
type Tiers struct {
	backends []Backend
	logger   *zap.Logger
	timeout  time.Duration
}

// NewTiers returns a Tiers over backends in priority order. Each backend
// call runs under timeouts.Short().
func NewTiers(logger *zap.Logger, backends ...Backend) *Tiers {
	return &Tiers{backends: backends, logger: logger, timeout: timeouts.Short()}
}

// Read calls decode with the value of the first tier that holds key and
// whose value decode accepts. A tier that errors, misses, or returns a value
// decode rejects is skipped. Read returns ErrNotFound when no tier served.
func (t *Tiers) Read(ctx context.Context, key string, decode func(raw string) error) error {
	for i, b := range t.backends {
		raw, err := t.get(ctx, b, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				t.logger.Warn("storage tier read failed",
					zap.String("tier", b.Name()),
					zap.Bool("timeout", timeouts.IsTimeout(err)),
					zap.Error(err))
			}
			continue
		}
		if err := decode(raw); err != nil {
			t.logger.Warn("storage tier value rejected",
				zap.String("tier", b.Name()),
				zap.Error(err))
			continue
		}
		if i > 0 {
			metrics.TierFallbacks.WithLabelValues(b.Name()).Inc()
		}
		return nil
	}
	return ErrNotFound
}

// WriteAll writes value to every tier, attempting all of them regardless of
// earlier failures. It returns how many tiers accepted the write, and the
// joined per-tier errors (nil when every tier succeeded).
func (t *Tiers) WriteAll(ctx context.Context, key, value string) (int, error) {
	var (
		ok   int
		errs []error
	)
	for _, b := range t.backends {
		cctx, cancel := timeouts.WithTimeout(ctx, t.timeout, t.logger, "kv.set."+b.Name())
		err := b.Set(cctx, key, value)
		cancel()
		if err != nil {
			metrics.TierWriteFailures.WithLabelValues(b.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		ok++
	}
	return ok, errors.Join(errs...)
}

// DeleteAll deletes key from every tier, best-effort. Missing keys are not
// errors.
func (t *Tiers) DeleteAll(ctx context.Context, key string) error {
	var errs []error
	for _, b := range t.backends {
		cctx, cancel := timeouts.WithTimeout(ctx, t.timeout, t.logger, "kv.delete."+b.Name())
		err := b.Delete(cctx, key)
		cancel()
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tiers) get(ctx context.Context, b Backend, key string) (string, error) {
	cctx, cancel := timeouts.WithTimeout(ctx, t.timeout, t.logger, "kv.get."+b.Name())
	defer cancel()
	return b.Get(cctx, key)
}
