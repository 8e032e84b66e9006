package timeouts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConfigure_KeepsZeroFields(t *testing.T) {
	t.Cleanup(Reset)

	Configure(Config{Short: time.Second})

	if Short() != time.Second {
		t.Errorf("Short() = %v, want 1s", Short())
	}
	if Ping() != DefaultPing {
		t.Errorf("Ping() = %v, want default %v", Ping(), DefaultPing)
	}
	if Long() != DefaultLong {
		t.Errorf("Long() = %v, want default %v", Long(), DefaultLong)
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 10*time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	<-ctx.Done()

	if !IsTimeout(ctx.Err()) {
		t.Errorf("ctx.Err() = %v, want deadline exceeded", ctx.Err())
	}
	if !IsTimeout(fmt.Errorf("wrapped: %w", ctx.Err())) {
		t.Error("IsTimeout should see through wrapping")
	}
	if IsTimeout(context.Canceled) {
		t.Error("IsTimeout(context.Canceled) = true, want false")
	}
}
