package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/database"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/repository"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/service"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLedgerctl_SeedSeatMapReap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	flags := []string{"--driver", "sqlite3", "--sqlite-path", path}

	out, err := run(t, append([]string{"migrate"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "schema applied")

	out, err = run(t, append([]string{"seed", "--rows", "2", "--seats-per-row", "3", "--format", "json"}, flags...)...)
	require.NoError(t, err)
	var s model.Session
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	require.NotZero(t, s.ID)

	// Place one live hold and one expired hold directly through the engine.
	db, err := database.OpenSQLite(path)
	require.NoError(t, err)
	tickets := repository.NewTicketRepo(db)
	sessions := repository.NewSessionRepo(db)
	ctx := context.Background()
	old := service.NewEngine(tickets, sessions, service.Options{
		Clock: clockAt(time.Now().Add(-time.Hour)),
	})
	_, err = old.HoldSeat(ctx, s.ID, 1, 1, 1)
	require.NoError(t, err)
	live, err := service.NewEngine(tickets, sessions, service.Options{}).HoldSeat(ctx, s.ID, 2, 2, 3)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err = run(t, append([]string{"seat-map", "1"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "  1 ...\n  2 ..h\n", out)

	out, err = run(t, append([]string{"reap"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "released 1 expired holds\n", out)

	out, err = run(t, append([]string{"lookup", live.Code}, flags...)...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, live.Code+"  HELD"), out)

	_, err = run(t, append([]string{"lookup", "TICKET-MISSING"}, flags...)...)
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = run(t, append([]string{"seat-map", "abc"}, flags...)...)
	assert.Error(t, err)
}

func TestLedgerctl_Token(t *testing.T) {
	t.Setenv("JWT_SECRET", "k")
	out, err := run(t, "token", "--owner", "5", "--ttl", "10m")
	require.NoError(t, err)

	tok, err := jwt.Parse(strings.TrimSpace(out), func(*jwt.Token) (interface{}, error) { return []byte("k"), nil })
	require.NoError(t, err)
	claims := tok.Claims.(jwt.MapClaims)
	assert.EqualValues(t, 5, claims["sub"])
	assert.Equal(t, "CUSTOMER", claims["role"])

	_, err = run(t, "token")
	assert.Error(t, err)
}

func TestLedgerctl_InvalidFormat(t *testing.T) {
	_, err := run(t, "reap", "--format", "xml")
	assert.Error(t, err)
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func clockAt(t time.Time) service.Clock { return fixedClock(t) }
