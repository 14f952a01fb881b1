package player

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/metadata"
	"github.com/stwalsh4118/marquee/internal/source"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360p/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2400000,RESOLUTION=1280x720
720p/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
1080p/playlist.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:4.000,
seg-0.ts
#EXTINF:4.000,
seg-1.ts
#EXT-X-ENDLIST
`

// stubFetcher serves fixed metadata
type stubFetcher struct {
	info     metadata.Payload
	infoErr  error
	duration int64
}

func (f *stubFetcher) FetchInfo(context.Context, string) (metadata.Payload, error) {
	return f.info, f.infoErr
}

func (f *stubFetcher) FetchDuration(context.Context, string) (int64, error) {
	if f.duration == 0 {
		return 0, metadata.ErrNoDuration
	}
	return f.duration, nil
}

// collect returns an emitter that forwards into a buffered channel
func collect() (Emitter, chan Event) {
	ch := make(chan Event, 16)
	return func(ev Event) { ch <- ev }, ch
}

func next(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for backend event")
		return Event{}
	}
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		body       string
		wantLevels []QualityLevel
		wantErr    bool
	}{
		{
			name: "master playlist",
			url:  "https://cdn.example.com/master.m3u8",
			body: masterPlaylist,
			wantLevels: []QualityLevel{
				{Index: 0, Height: 360, BitrateBps: 800000},
				{Index: 1, Height: 720, BitrateBps: 2400000},
				{Index: 2, Height: 1080, BitrateBps: 5000000},
			},
		},
		{
			name:       "media playlist is a single level",
			url:        "https://cdn.example.com/index.m3u8",
			body:       mediaPlaylist,
			wantLevels: []QualityLevel{{Index: 0}},
		},
		{
			name:       "dash manifest",
			url:        "https://cdn.example.com/manifest.mpd?token=1",
			body:       `<?xml version="1.0"?><MPD xmlns="urn:mpeg:dash:schema:mpd:2011"></MPD>`,
			wantLevels: []QualityLevel{{Index: 0}},
		},
		{name: "html page", url: "https://cdn.example.com/x.m3u8", body: "<html></html>", wantErr: true},
		{name: "empty body", url: "https://cdn.example.com/x.m3u8", body: "", wantErr: true},
		{name: "dash without MPD", url: "https://cdn.example.com/x.mpd", body: "<?xml version=\"1.0\"?><foo/>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := ParseManifest(tt.url, []byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrorKindMedia, ClassifyError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevels, levels)
		})
	}
}

func TestAdaptiveBackend_LoadsMasterPlaylist(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(masterPlaylist))
	}))
	defer srv.Close()

	b := NewAdaptiveBackend(srv.Client())
	defer b.Destroy()
	emit, ch := collect()

	require.NoError(t, b.Attach(context.Background(), source.Resolved{
		Strategy:     source.StrategyAdaptiveStream,
		CanonicalURL: srv.URL + "/master.m3u8",
	}, emit))

	levels := next(t, ch)
	assert.Equal(t, EventQualityLevelsChanged, levels.Type)
	assert.Len(t, levels.Levels, 3)
	assert.Equal(t, EventReady, next(t, ch).Type)

	require.NoError(t, b.SelectLevel(1))
	assert.Equal(t, 1, b.CurrentLevel())
	assert.ErrorIs(t, b.SelectLevel(3), ErrInvalidQualityLevel)
	assert.Equal(t, 1, b.CurrentLevel())

	require.NoError(t, b.RecoverMediaError())
	assert.Equal(t, EventQualityLevelsChanged, next(t, ch).Type)
	assert.Equal(t, EventHealthy, next(t, ch).Type)
	assert.Equal(t, int32(2), requests.Load())
}

func TestAdaptiveBackend_Faults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.m3u8":
			http.NotFound(w, r)
		default:
			_, _ = w.Write([]byte("this is not a playlist"))
		}
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		path     string
		wantKind ErrorKind
	}{
		{"not found is a network fault", "/missing.m3u8", ErrorKindNetwork},
		{"garbage is a media fault", "/garbage.m3u8", ErrorKindMedia},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewAdaptiveBackend(srv.Client())
			defer b.Destroy()
			emit, ch := collect()

			require.NoError(t, b.Attach(context.Background(), source.Resolved{CanonicalURL: srv.URL + tt.path}, emit))
			ev := next(t, ch)
			assert.Equal(t, EventFatalError, ev.Type)
			assert.Equal(t, tt.wantKind, ev.Kind)
		})
	}
}

func TestAdaptiveBackend_DestroyedBeforeAttach(t *testing.T) {
	b := NewAdaptiveBackend(http.DefaultClient)
	b.Destroy()
	b.Destroy()

	err := b.Attach(context.Background(), source.Resolved{CanonicalURL: "http://127.0.0.1:1/x.m3u8"}, func(Event) {
		t.Error("destroyed backend must not emit")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, b.Play(), context.Canceled)
}

func TestDirectBackend_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/video.mp4":
			assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
			w.Header().Set("Content-Type", "video/mp4")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte{0})
		case "/page.mp4":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		path     string
		wantType EventType
		wantKind ErrorKind
	}{
		{"data ready", "/video.mp4", EventReady, 0},
		{"html is not media", "/page.mp4", EventFatalError, ErrorKindMedia},
		{"missing file", "/gone.mp4", EventFatalError, ErrorKindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewDirectBackend(srv.Client())
			defer b.Destroy()
			emit, ch := collect()

			require.NoError(t, b.Attach(context.Background(), source.Resolved{CanonicalURL: srv.URL + tt.path}, emit))
			ev := next(t, ch)
			assert.Equal(t, tt.wantType, ev.Type)
			if tt.wantType == EventFatalError {
				assert.Equal(t, tt.wantKind, ev.Kind)
			}
			assert.ErrorIs(t, b.SelectLevel(0), ErrNoManifest)
		})
	}
}

func TestEmbeddedBackend_FallbackMetadata(t *testing.T) {
	resolver := metadata.NewResolver(metadata.NewCache(metadata.Options{}), &stubFetcher{infoErr: errors.New("offline")})
	b := NewEmbeddedBackend(resolver)
	defer b.Destroy()
	emit, ch := collect()

	require.NoError(t, b.Attach(context.Background(), source.Resolved{
		Strategy:   source.StrategyEmbeddedPlatform,
		PlatformID: "dQw4w9WgXcQ",
	}, emit))

	ready := next(t, ch)
	assert.Equal(t, EventReady, ready.Type)
	assert.Equal(t, source.EmbedURL("dQw4w9WgXcQ", false), ready.EmbedURL)
	assert.Equal(t, ready.EmbedURL, b.EmbedURL())

	meta := next(t, ch)
	require.Equal(t, EventMetadataResolved, meta.Type)
	assert.Equal(t, FallbackTitle, meta.Metadata.Title)
	assert.Equal(t, source.ThumbnailURL("dQw4w9WgXcQ"), meta.Metadata.ThumbnailURL)
}

func TestEmbeddedBackend_RequiresPlatformID(t *testing.T) {
	b := NewEmbeddedBackend(nil)
	defer b.Destroy()
	err := b.Attach(context.Background(), source.Resolved{Strategy: source.StrategyEmbeddedPlatform}, func(Event) {})
	assert.Error(t, err)
}

func TestBackendFactory(t *testing.T) {
	f := NewBackendFactory(config.PlaybackConfig{}, nil)

	tests := []struct {
		strategy source.Strategy
		want     any
	}{
		{source.StrategyAdaptiveStream, &AdaptiveBackend{}},
		{source.StrategyDirectFile, &DirectBackend{}},
		{source.StrategyEmbeddedPlatform, &EmbeddedBackend{}},
	}
	for _, tt := range tests {
		b, err := f.New(tt.strategy)
		require.NoError(t, err)
		assert.IsType(t, tt.want, b)
		b.Destroy()
	}

	_, err := f.New(source.Strategy("torrent"))
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
