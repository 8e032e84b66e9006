package failedloginstore

import (
	"testing"
	"time"

	"github.com/dalemusser/carexps/internal/domain/models"
	"github.com/dalemusser/carexps/internal/testutil"
)

func TestStore_CreateAndListSince(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	for i, age := range []time.Duration{45 * time.Minute, 10 * time.Minute, time.Minute} {
		err := store.Create(ctx, models.FailedLoginAttempt{
			Email:       "Alice@Example.com",
			Reason:      models.ReasonWrongPassword,
			AttemptedAt: now.Add(-age),
		})
		if err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}
	_ = store.Create(ctx, models.FailedLoginAttempt{Email: "bob@example.com", AttemptedAt: now})

	got, err := store.ListSince(ctx, "alice@example.com", now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ListSince() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListSince() returned %d attempts, want 2", len(got))
	}
	if !got[0].AttemptedAt.After(got[1].AttemptedAt) {
		t.Error("ListSince() should return newest first")
	}
	if got[0].Email != "alice@example.com" {
		t.Errorf("Email = %q, want normalized", got[0].Email)
	}
}

func TestStore_ListSinceExcludesBoundary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// mongo keeps millisecond precision
	since := time.Now().UTC().Truncate(time.Millisecond).Add(-30 * time.Minute)
	_ = store.Create(ctx, models.FailedLoginAttempt{Email: "alice@example.com", AttemptedAt: since})
	_ = store.Create(ctx, models.FailedLoginAttempt{Email: "alice@example.com", AttemptedAt: since.Add(time.Millisecond)})

	got, err := store.ListSince(ctx, "alice@example.com", since)
	if err != nil {
		t.Fatalf("ListSince() error = %v", err)
	}
	if len(got) != 1 || !got[0].AttemptedAt.Equal(since.Add(time.Millisecond)) {
		t.Errorf("ListSince() = %+v, want only the attempt after the boundary", got)
	}
}

func TestStore_DeleteByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_ = store.Create(ctx, models.FailedLoginAttempt{Email: "alice@example.com"})
	_ = store.Create(ctx, models.FailedLoginAttempt{Email: "alice@example.com"})
	_ = store.Create(ctx, models.FailedLoginAttempt{Email: "bob@example.com"})

	n, err := store.DeleteByEmail(ctx, "ALICE@example.com")
	if err != nil || n != 2 {
		t.Fatalf("DeleteByEmail() = %d, %v; want 2", n, err)
	}
	left, _ := store.ListSince(ctx, "bob@example.com", time.Time{})
	if len(left) != 1 {
		t.Errorf("other user's attempts were removed")
	}
}

func TestStore_PurgeOlderThan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	_ = store.Create(ctx, models.FailedLoginAttempt{Email: "a@example.com", AttemptedAt: now.Add(-48 * time.Hour)})
	_ = store.Create(ctx, models.FailedLoginAttempt{Email: "a@example.com", AttemptedAt: now})

	n, err := store.PurgeOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PurgeOlderThan() = %d, %v; want 1", n, err)
	}
}
