package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/marquee/internal/ads"
	"github.com/stwalsh4118/marquee/internal/metadata"
	"github.com/stwalsh4118/marquee/internal/refresh"
)

type stubFetcher struct {
	info  metadata.Payload
	err   error
	calls int
}

func (f *stubFetcher) FetchInfo(context.Context, string) (metadata.Payload, error) {
	f.calls++
	return f.info, f.err
}

func (f *stubFetcher) FetchDuration(context.Context, string) (int64, error) {
	return 0, metadata.ErrNoDuration
}

func setupMetadataRouter(fetcher metadata.Fetcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	resolver := metadata.NewResolver(metadata.NewCache(metadata.Options{}), fetcher)
	router := gin.New()
	SetupMetadataRoutes(router.Group("/api"), resolver)
	return router
}

func TestGetMetadata(t *testing.T) {
	fetcher := &stubFetcher{info: metadata.Payload{Title: "Never Gonna Give You Up", Author: "Rick Astley"}}
	router := setupMetadataRouter(fetcher)

	w := doJSON(t, router, http.MethodGet, "/api/metadata/dQw4w9WgXcQ", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp MetadataResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	assert.Equal(t, "Never Gonna Give You Up", resp.Metadata.Title)

	w = doJSON(t, router, http.MethodGet, "/api/metadata/dQw4w9WgXcQ", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, fetcher.calls)
}

func TestGetMetadataErrors(t *testing.T) {
	router := setupMetadataRouter(&stubFetcher{err: errors.New("upstream 500")})

	w := doJSON(t, router, http.MethodGet, "/api/metadata/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/metadata/dQw4w9WgXcQ", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

type allowAll struct{}

func (allowAll) IsAuthorized(context.Context, string) bool { return true }

func TestVisibilityAndAds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	catalog := ads.NewCatalog(filepath.Join(t.TempDir(), "none.json"))
	rotator := ads.NewRotator(catalog, nil, nil)
	scheduler := refresh.NewScheduler(rotator, allowAll{}, nil, 0, nil)
	t.Cleanup(scheduler.Stop)

	router := gin.New()
	SetupRefreshRoutes(router.Group("/api"), scheduler, rotator)

	w := doJSON(t, router, http.MethodPut, "/api/visibility", map[string]bool{"visible": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"visible":true,"running":true}`, w.Body.String())

	w = doJSON(t, router, http.MethodPut, "/api/visibility", map[string]bool{"visible": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"visible":false,"running":false}`, w.Body.String())

	w = doJSON(t, router, http.MethodPut, "/api/visibility", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/ads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"slots":{}}`, w.Body.String())
}
