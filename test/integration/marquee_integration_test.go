//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/marquee/internal/access"
	"github.com/stwalsh4118/marquee/internal/api"
	"github.com/stwalsh4118/marquee/internal/player"
)

// metadataServer serves oEmbed and duration documents
func metadataServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oembed", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":"Integration Clip","author_name":"Marquee","thumbnail_url":"https://img.example/t.jpg"}`))
	})
	mux.HandleFunc("/duration", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"duration":125.4}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbeddedPlaybackFlow(t *testing.T) {
	meta := metadataServer(t)
	cfg := testConfig(t, meta.URL)
	_, handler := setupServer(t, cfg)

	w := request(t, handler, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(t, handler, http.MethodPost, "/api/player/load",
		api.LoadRequest{URL: "https://youtu.be/dQw4w9WgXcQ"}, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		w := request(t, handler, http.MethodGet, "/api/player", nil, nil)
		var snap player.Snapshot
		if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
			return false
		}
		return snap.State == player.StatePlaying &&
			snap.Display.Title == "Integration Clip" &&
			snap.Display.Duration == "2:05"
	}, 5*time.Second, 20*time.Millisecond)

	w = request(t, handler, http.MethodGet, "/api/history", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist api.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.Items, 1)
	assert.Equal(t, "dQw4w9WgXcQ", hist.Items[0].ID)
	assert.Equal(t, "Integration Clip", hist.Items[0].Title)

	w = request(t, handler, http.MethodGet, "/api/metadata/dQw4w9WgXcQ", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var md api.MetadataResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &md))
	assert.True(t, md.Cached)
	assert.Equal(t, "Marquee", md.Metadata.Author)

	w = request(t, handler, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `marquee_playback_attempts_total{strategy="embedded_platform"} 1`)
}

func TestRefreshStartsAfterDeviceIsAllowListed(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	writeAdCatalog(t, cfg.Refresh.AdCatalogPath, map[string]any{
		"slots": []map[string]string{
			{"id": "a1", "placement": "sidebar", "image_url": "https://ads.example/a1.png"},
			{"id": "a2", "placement": "sidebar", "image_url": "https://ads.example/a2.png"},
		},
	})
	srv, handler := startServer(t, cfg)
	require.True(t, srv.RefreshRunning(), "refresh loop runs from boot while unauthorized")

	w := request(t, handler, http.MethodPost, "/api/admin/login", api.LoginRequest{Passphrase: testPassphrase}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var session access.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	auth := map[string]string{api.SessionHeader: session.Token}

	w = request(t, handler, http.MethodGet, "/api/admin/status", nil, nil)
	var status api.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.False(t, status.IsAuthorized)

	w = request(t, handler, http.MethodPost, "/api/admin/allowlist/"+status.Identity, nil, auth)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Eventually(t, func() bool {
		w := request(t, handler, http.MethodGet, "/api/admin/export", nil, auth)
		var snap access.Snapshot
		if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
			return false
		}
		return snap.Counters["ads_shown"] >= 2
	}, 5*time.Second, 20*time.Millisecond)

	w = request(t, handler, http.MethodGet, "/api/ads", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"a1"`) || strings.Contains(w.Body.String(), `"a2"`))

	w = request(t, handler, http.MethodPut, "/api/visibility", map[string]bool{"visible": false}, nil)
	assert.Contains(t, w.Body.String(), `"running":false`)
}

func TestUnauthorizedDeviceNeverRefreshes(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	writeAdCatalog(t, cfg.Refresh.AdCatalogPath, map[string]any{
		"slots": []map[string]string{
			{"id": "a1", "placement": "sidebar", "image_url": "https://ads.example/a1.png"},
		},
	})
	_, handler := startServer(t, cfg)

	time.Sleep(10 * cfg.Refresh.Interval)

	w := request(t, handler, http.MethodGet, "/api/ads", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"slots":{}}`, w.Body.String())
}
