package retention_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/raincheck/raincheck/internal/retention"
	"github.com/raincheck/raincheck/internal/store"
	"github.com/raincheck/raincheck/pkg/models"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "raincheck.db"), "")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSession(t *testing.T, st store.Store, id string, updatedAt time.Time) {
	t.Helper()
	sess := &models.Session{
		ID: id,
		Plan: &models.Itinerary{Items: []models.ItineraryItem{
			{Index: 1, Type: models.TypeFestival, Title: "강릉커피축제"},
		}},
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	if err := st.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession(%s) error = %v", id, err)
	}
}

func TestSweepPurgesIdleSessions(t *testing.T) {
	st := newSQLiteStore(t)
	now := time.Now().UTC()
	seedSession(t, st, "stale", now.Add(-48*time.Hour))
	seedSession(t, st, "fresh", now.Add(-time.Hour))

	j := retention.NewJanitor(st, 24*time.Hour, time.Hour)
	if purged := j.Sweep(context.Background()); purged != 1 {
		t.Fatalf("Sweep() purged %d sessions, want 1", purged)
	}

	var nf *store.ErrNotFound
	if _, err := st.GetSession(context.Background(), "stale"); !errors.As(err, &nf) {
		t.Errorf("stale session survived the sweep: err = %v", err)
	}
	if _, err := st.GetSession(context.Background(), "fresh"); err != nil {
		t.Errorf("fresh session was purged: %v", err)
	}
}

func TestSweepKeepsSessionsInsideTTL(t *testing.T) {
	st := newSQLiteStore(t)
	now := time.Now().UTC()
	seedSession(t, st, "a", now.Add(-time.Hour))
	seedSession(t, st, "b", now.Add(-2*time.Hour))

	j := retention.NewJanitor(st, 24*time.Hour, time.Hour)
	if purged := j.Sweep(context.Background()); purged != 0 {
		t.Fatalf("Sweep() purged %d sessions, want 0", purged)
	}

	all, err := st.ListSessions(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListSessions() returned %d sessions, want 2", len(all))
	}
}

func TestSweepEmptyStore(t *testing.T) {
	st := newSQLiteStore(t)
	j := retention.NewJanitor(st, 24*time.Hour, time.Hour)
	if purged := j.Sweep(context.Background()); purged != 0 {
		t.Errorf("Sweep() on empty store purged %d, want 0", purged)
	}
}
