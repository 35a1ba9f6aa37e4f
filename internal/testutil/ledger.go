// Package testutil provides fixtures shared by tests that need a real
// seat ledger: a migrated SQLite database, seeded halls and sessions,
// and a controllable clock.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/database"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/repository"
)

// OpenLedger returns a migrated SQLite database in the test's temp dir.
// It is closed when the test ends.
func OpenLedger(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return db
}

// SeedSession creates a hall of rows x seatsPerRow and a session in it
// priced at priceCents.
func SeedSession(t testing.TB, db *sql.DB, rows, seatsPerRow, priceCents uint32) *model.Session {
	t.Helper()
	ctx := context.Background()
	sessions := repository.NewSessionRepo(db)
	hall := &model.Hall{Name: "Hall", SeatRows: rows, SeatsPerRow: seatsPerRow}
	require.NoError(t, sessions.CreateHall(ctx, hall))
	s := &model.Session{
		HallID:     hall.ID,
		Title:      "Matinee",
		StartsAt:   time.Date(2030, 1, 1, 18, 0, 0, 0, time.UTC),
		PriceCents: priceCents,
	}
	require.NoError(t, sessions.CreateSession(ctx, s))
	out, err := sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	return out
}

// Clock is a manually advanced clock.  It is safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at now.
func NewClock(now time.Time) *Clock { return &Clock{now: now.UTC()} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
