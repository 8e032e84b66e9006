package audit

import (
	"testing"
	"time"

	"github.com/dalemusser/carexps/internal/testutil"
)

func seed(t *testing.T, s *Store, events ...Event) {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	for _, e := range events {
		if err := s.Log(ctx, e); err != nil {
			t.Fatalf("Log(%s) error = %v", e.EventType, err)
		}
	}
}

func TestStore_FindAndCount(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	now := time.Now().UTC()
	seed(t, s,
		Event{Category: CategoryAuth, EventType: EventLoginSuccess, UserID: "usr_kim", Email: "nurse.kim@clinic.test", Success: true},
		Event{Category: CategoryAuth, EventType: EventLoginFailedWrongPassword, UserID: "usr_kim", Email: "nurse.kim@clinic.test"},
		Event{Category: CategoryAuth, EventType: EventLoginFailedUserNotFound, Email: "intruder@elsewhere.test"},
		Event{Category: CategoryAdmin, EventType: EventUserCreated, UserID: "usr_okafor", Success: true},
		Event{Category: CategorySettings, EventType: EventSettingsReset, UserID: "usr_kim", Success: true, CreatedAt: now.Add(-48 * time.Hour)},
	)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"everything", Filter{}, 5},
		{"one user", Filter{UserID: "usr_kim"}, 3},
		{"unknown email", Filter{Email: "intruder@elsewhere.test"}, 1},
		{"admin category", Filter{Category: CategoryAdmin}, 1},
		{"event type", Filter{EventType: EventLoginSuccess}, 1},
		{"failures only", Filter{Failures: true}, 2},
		{"last day", Filter{Since: now.Add(-24 * time.Hour)}, 4},
		{"older than a day", Filter{Until: now.Add(-24 * time.Hour)}, 1},
	}
	ctx, cancel := testutil.TestContext()
	defer cancel()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Find(ctx, tt.filter, 0, 0)
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Find() = %d events, want %d", len(got), tt.want)
			}
			if n, err := s.Count(ctx, tt.filter); err != nil || n != int64(tt.want) {
				t.Errorf("Count() = %d, %v; want %d", n, err, tt.want)
			}
		})
	}
}

func TestStore_FindNewestFirstAndPages(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		seed(t, s, Event{
			Category:  CategoryAuth,
			EventType: EventLoginSuccess,
			UserID:    "usr_kim",
			Success:   true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	page, err := s.Find(ctx, Filter{UserID: "usr_kim"}, 2, 1)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Find() = %d events, want 2", len(page))
	}
	if want := base.Add(3 * time.Minute); !page[0].CreatedAt.Equal(want) {
		t.Errorf("first event at %v, want %v", page[0].CreatedAt, want)
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Error("events are not newest first")
	}
}

func TestStore_FindEmptyIsNotNil(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	ctx, cancel := testutil.TestContext()
	defer cancel()

	got, err := s.Find(ctx, Filter{UserID: "nobody"}, 10, 0)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("Find() = %v, %v; want empty non-nil slice", got, err)
	}
}

func TestStore_FailedLogins(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	seed(t, s,
		Event{Category: CategoryAuth, EventType: EventLoginLockedOut, Email: "nurse.kim@clinic.test"},
		Event{Category: CategoryAuth, EventType: EventLoginSuccess, UserID: "usr_kim", Success: true},
		Event{Category: CategoryAuth, EventType: EventPasswordChangeUnverified, UserID: "usr_kim"},
		Event{
			Category:  CategoryAuth,
			EventType: EventLoginFailedWrongPassword,
			UserID:    "usr_kim",
			CreatedAt: time.Now().Add(-2 * time.Hour),
		},
	)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	got, err := s.FailedLogins(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("FailedLogins() error = %v", err)
	}
	if len(got) != 1 || got[0].EventType != EventLoginLockedOut {
		t.Errorf("FailedLogins() = %+v, want only the recent lockout", got)
	}
}
