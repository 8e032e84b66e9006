package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()

	if err := Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
}

func TestAuthAttempts_Labels(t *testing.T) {
	before := testutil.ToFloat64(AuthAttempts.WithLabelValues(OutcomeLocked))
	AuthAttempts.WithLabelValues(OutcomeLocked).Inc()

	if got := testutil.ToFloat64(AuthAttempts.WithLabelValues(OutcomeLocked)); got != before+1 {
		t.Errorf("locked attempts = %v, want %v", got, before+1)
	}
}
