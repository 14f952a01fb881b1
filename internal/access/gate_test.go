package access

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/db"
	"github.com/stwalsh4118/marquee/internal/kvstore"
	"github.com/stwalsh4118/marquee/internal/models"
)

const testPassphrase = "admin123"

// setupGate builds a gate over a migrated SQLite database
func setupGate(t *testing.T) (*Gate, *db.Repositories) {
	t.Helper()

	database, err := db.New(config.DatabaseConfig{
		Path:              filepath.Join(t.TempDir(), "access.db"),
		ConnectionTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(sqlDB, "file://../../migrations"))
	t.Cleanup(func() { _ = database.Close() })

	repos := db.NewRepositories(database)
	gate := NewGate(repos.Settings, repos.Counters, repos.KV, config.AccessConfig{DefaultPassphrase: testPassphrase})
	return gate, repos
}

func login(t *testing.T, g *Gate) Session {
	t.Helper()
	s, err := g.AuthenticateAdmin(context.Background(), testPassphrase)
	require.NoError(t, err)
	return s
}

func TestIsAuthorized(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGate(t)
	admin := login(t, g)

	assert.False(t, g.IsAuthorized(ctx, "device-1"), "empty allow-list")

	_, err := g.AddToAllowList(ctx, admin, "device-1")
	require.NoError(t, err)
	assert.True(t, g.IsAuthorized(ctx, "device-1"))
	assert.False(t, g.IsAuthorized(ctx, "device-2"))

	require.NoError(t, g.SetGlobalEnabled(ctx, admin, false))
	assert.False(t, g.IsAuthorized(ctx, "device-1"), "global flag overrides allow-list")

	require.NoError(t, g.SetGlobalEnabled(ctx, admin, true))
	assert.True(t, g.IsAuthorized(ctx, "device-1"))
}

func TestAuthenticateAdmin(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGate(t)

	_, err := g.AuthenticateAdmin(ctx, "wrong-pass")
	assert.ErrorIs(t, err, ErrRejected)

	s, err := g.AuthenticateAdmin(ctx, testPassphrase)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.True(t, g.ValidSession(s))

	g.Logout(s)
	assert.False(t, g.ValidSession(s))
	g.Logout(s)
}

func TestMutationsRequireSession(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGate(t)
	forged := Session{Token: "not-a-session"}

	assert.ErrorIs(t, g.SetGlobalEnabled(ctx, forged, false), ErrNotAuthorized)
	_, err := g.AddToAllowList(ctx, forged, "device-1")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.ErrorIs(t, g.RemoveFromAllowList(ctx, forged, "device-1"), ErrNotAuthorized)
	assert.ErrorIs(t, g.SetPassphrase(ctx, forged, "long-enough"), ErrNotAuthorized)
	assert.ErrorIs(t, g.SetPassphrase(ctx, forged, "short"), ErrNotAuthorized)
	_, err = g.ExportSnapshot(ctx, forged)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.ErrorIs(t, g.ResetAll(ctx, forged), ErrNotAuthorized)

	admin := login(t, g)
	assert.False(t, g.IsAuthorized(ctx, "device-1"))
	g.Logout(admin)
	assert.ErrorIs(t, g.SetGlobalEnabled(ctx, admin, false), ErrNotAuthorized)
}

func TestAddToAllowList_Duplicate(t *testing.T) {
	ctx := context.Background()
	g, repos := setupGate(t)
	admin := login(t, g)

	res, err := g.AddToAllowList(ctx, admin, "device-1")
	require.NoError(t, err)
	assert.Equal(t, AddAdded, res)

	res, err = g.AddToAllowList(ctx, admin, "device-1")
	require.NoError(t, err)
	assert.Equal(t, AddAlreadyPresent, res)

	s, err := repos.Settings.Get(ctx, models.DefaultAccessSettings(testPassphrase))
	require.NoError(t, err)
	assert.Equal(t, []string{"device-1"}, s.AllowList)

	_, err = g.AddToAllowList(ctx, admin, "")
	assert.ErrorIs(t, err, ErrEmptyIdentity)
}

func TestRemoveFromAllowList(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGate(t)
	admin := login(t, g)

	for _, id := range []string{"a", "b", "c"} {
		_, err := g.AddToAllowList(ctx, admin, id)
		require.NoError(t, err)
	}
	require.NoError(t, g.RemoveFromAllowList(ctx, admin, "b"))
	require.NoError(t, g.RemoveFromAllowList(ctx, admin, "missing"))

	snap, err := g.ExportSnapshot(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, snap.AllowList)
}

func TestSetPassphrase(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGate(t)
	admin := login(t, g)

	assert.ErrorIs(t, g.SetPassphrase(ctx, admin, "12345"), ErrPassphraseTooShort)
	_, err := g.AuthenticateAdmin(ctx, testPassphrase)
	require.NoError(t, err, "old passphrase still active after rejection")

	require.NoError(t, g.SetPassphrase(ctx, admin, "123456"))
	_, err = g.AuthenticateAdmin(ctx, testPassphrase)
	assert.ErrorIs(t, err, ErrRejected)
	_, err = g.AuthenticateAdmin(ctx, "123456")
	assert.NoError(t, err)
	assert.True(t, g.ValidSession(admin), "existing sessions survive a passphrase change")
}

func TestExportSnapshot(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGate(t)
	admin := login(t, g)

	_, err := g.AddToAllowList(ctx, admin, "device-1")
	require.NoError(t, err)
	_, err = g.IncrementCounter(ctx, models.CounterAdsShown)
	require.NoError(t, err)
	n, err := g.IncrementCounter(ctx, models.CounterAdsShown)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	snap, err := g.ExportSnapshot(ctx, admin)
	require.NoError(t, err)
	assert.True(t, snap.GlobalEnabled)
	assert.Equal(t, []string{"device-1"}, snap.AllowList)
	assert.Equal(t, int64(2), snap.Counters[models.CounterAdsShown])
	assert.False(t, snap.ExportedAt.IsZero())

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exported_at"`)
	assert.NotContains(t, string(data), testPassphrase)
}

func TestResetAll(t *testing.T) {
	ctx := context.Background()
	g, _ := setupGate(t)
	admin := login(t, g)

	_, err := g.AddToAllowList(ctx, admin, "device-1")
	require.NoError(t, err)
	require.NoError(t, g.SetGlobalEnabled(ctx, admin, false))
	require.NoError(t, g.SetPassphrase(ctx, admin, "changed-pass"))

	require.NoError(t, g.ResetAll(ctx, admin))
	assert.False(t, g.ValidSession(admin))

	fresh := login(t, g)
	snap, err := g.ExportSnapshot(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, snap.GlobalEnabled)
	assert.Empty(t, snap.AllowList)
}

func TestIdentity_GeneratedOnceAndPersisted(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	cfg := config.AccessConfig{DefaultPassphrase: testPassphrase}

	first := NewGate(nil, nil, store, cfg).Identity(ctx)
	assert.True(t, strings.HasPrefix(first, identityPrefix))

	second := NewGate(nil, nil, store, cfg).Identity(ctx)
	assert.Equal(t, first, second)
}
