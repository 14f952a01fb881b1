//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/db"
	"github.com/stwalsh4118/marquee/internal/server"
)

const testPassphrase = "integration-pass"

// migrationsPath resolves the migrations directory relative to this file
func migrationsPath(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")

	testDir := filepath.Dir(filename)
	rootDir := filepath.Dir(filepath.Dir(testDir))
	return "file://" + filepath.Join(rootDir, "migrations")
}

// testConfig returns a configuration rooted in a temp directory
func testConfig(t *testing.T, metadataURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "marquee.db"), ConnectionTimeout: 5 * time.Second, MigrationsPath: migrationsPath(t)},
		Logging:  config.LoggingConfig{Level: "error"},
		Cache:    config.CacheConfig{TTL: time.Hour, Capacity: 50, Backend: config.CacheBackendSQLite},
		History:  config.HistoryConfig{Capacity: 20},
		Metadata: config.MetadataConfig{
			OEmbedURL:   metadataURL + "/oembed",
			DurationURL: metadataURL + "/duration",
			Timeout:     2 * time.Second,
		},
		Playback: config.PlaybackConfig{Autoplay: true, ProbeTimeout: 2 * time.Second},
		Access:   config.AccessConfig{DefaultPassphrase: testPassphrase, LoginRate: 100, LoginBurst: 100},
		Refresh:  config.RefreshConfig{Interval: 50 * time.Millisecond, AdCatalogPath: filepath.Join(dir, "ads.json")},
	}
}

// setupServer opens a migrated database and builds the full server
func setupServer(t *testing.T, cfg *config.Config) (*server.Server, http.Handler) {
	t.Helper()

	database, err := db.New(cfg.Database)
	require.NoError(t, err, "Failed to open database")
	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(sqlDB, cfg.Database.MigrationsPath), "Failed to run migrations")

	srv, err := server.New(cfg, database)
	require.NoError(t, err, "Failed to build server")

	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = database.Close()
	})
	return srv, srv.Handler()
}

// startServer builds the server and runs Start in the background, returning
// once the refresh loop is up
func startServer(t *testing.T, cfg *config.Config) (*server.Server, http.Handler) {
	t.Helper()
	srv, handler := setupServer(t, cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	require.Eventually(t, srv.RefreshRunning, 2*time.Second, 10*time.Millisecond, "refresh loop did not start")
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("server exited with error: %v", err)
		}
	})
	return srv, handler
}

// writeAdCatalog writes an ad catalog document
func writeAdCatalog(t *testing.T, path string, doc any) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// request performs a JSON request against handler
func request(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}
