package beefweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beefweb/beefclient/internal/client"
	"github.com/beefweb/beefclient/internal/query"
)

type recorded struct {
	method string
	path   string
	query  url.Values
	body   string
}

// newTestAPI serves fixed JSON bodies keyed by request path and records every
// request.
func newTestAPI(t *testing.T, bodies map[string]string) (*API, func() []recorded) {
	t.Helper()

	var mu sync.Mutex
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{method: r.Method, path: r.URL.EscapedPath(), query: r.URL.Query(), body: string(data)})
		mu.Unlock()

		if r.URL.Path == "/api/query/updates" {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "data: %s\n\n", bodies[r.URL.Path])
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			if r.Method == http.MethodPost {
				w.WriteHeader(http.StatusOK)
				return
			}
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	s, err := client.New(srv.URL + "/api")
	require.NoError(t, err)
	t.Cleanup(s.Reset)

	return NewAPI(s), func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func TestAPIPlayer(t *testing.T) {
	api, reqs := newTestAPI(t, map[string]string{
		"/api/player": `{"player":{"info":{"name":"foobar2000","title":"foobar2000 v2"},"activeItem":{"playlistId":"p1","index":4,"columns":["A","A - B"]},"playbackState":"playing","volume":{"value":-5}}}`,
	})

	state, err := api.Player(context.Background(), []string{"%artist%", "%artist% - %title%"})
	require.NoError(t, err)

	assert.Equal(t, Playing, state.PlaybackState)
	assert.Equal(t, "p1", state.ActiveItem.PlaylistID)
	assert.Equal(t, 4, state.ActiveItem.Index)
	assert.Equal(t, -5.0, state.Volume.Value)
	assert.Equal(t, "A - B", DisplayTitle(*state))
	assert.Equal(t, http.StatusOK, api.Session().LastStatus())

	got := reqs()
	require.Len(t, got, 1)
	assert.Equal(t, "%artist%,%artist% - %title%", got[0].query.Get("columns"))
}

func TestAPICommands(t *testing.T) {
	api, reqs := newTestAPI(t, nil)
	ctx := context.Background()

	require.NoError(t, api.Play(ctx))
	require.NoError(t, api.Pause(ctx))
	require.NoError(t, api.Stop(ctx))
	require.NoError(t, api.Next(ctx))
	require.NoError(t, api.Previous(ctx))
	require.NoError(t, api.PlayItem(ctx, "p 1", 7))
	require.NoError(t, api.SetVolume(ctx, -10))
	require.NoError(t, api.SetMuted(ctx, true))

	var paths []string
	for _, r := range reqs() {
		assert.Equal(t, http.MethodPost, r.method)
		paths = append(paths, r.path)
	}
	assert.Equal(t, []string{
		"/api/player/play",
		"/api/player/pause",
		"/api/player/stop",
		"/api/player/next",
		"/api/player/previous",
		"/api/player/play/p%201/7",
		"/api/player",
		"/api/player",
	}, paths)

	got := reqs()
	assert.JSONEq(t, `{"volume":-10}`, got[6].body)
	assert.JSONEq(t, `{"isMuted":true}`, got[7].body)
}

func TestAPIPlaylistsAndItems(t *testing.T) {
	api, reqs := newTestAPI(t, map[string]string{
		"/api/playlists":              `{"playlists":[{"id":"p1","index":0,"title":"Default","isCurrent":true,"itemCount":2}]}`,
		"/api/playlists/p1/items/0:2": `{"playlistItems":{"offset":0,"totalCount":2,"items":[{"columns":["one"]},{"columns":["two"]}]}}`,
	})
	ctx := context.Background()

	pls, err := api.Playlists(ctx)
	require.NoError(t, err)
	require.Len(t, pls, 1)
	assert.True(t, pls[0].IsCurrent)

	items, err := api.PlaylistItems(ctx, "p1", 0, 2, []string{"%title%"})
	require.NoError(t, err)
	assert.Equal(t, 2, items.TotalCount)
	require.Len(t, items.Items, 2)
	assert.Equal(t, []string{"two"}, items.Items[1].Columns)

	got := reqs()
	assert.Equal(t, "%title%", got[1].query.Get("columns"))
}

func TestAPIBrowser(t *testing.T) {
	api, reqs := newTestAPI(t, map[string]string{
		"/api/browser/roots":   `{"pathSeparator":"/","roots":[{"name":"Music","path":"/music","type":"D"}]}`,
		"/api/browser/entries": `{"pathSeparator":"/","entries":[{"name":"a.flac","path":"/music/a.flac","type":"F","size":10}]}`,
	})
	ctx := context.Background()

	roots, err := api.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots.Roots, 1)
	assert.Equal(t, "/music", roots.Roots[0].Path)

	entries, err := api.Entries(ctx, "/music")
	require.NoError(t, err)
	require.Len(t, entries.Entries, 1)
	assert.Equal(t, int64(10), entries.Entries[0].Size)
	assert.Equal(t, "/music", reqs()[1].query.Get("path"))
}

func TestAPINotFoundSetsStatus(t *testing.T) {
	api, _ := newTestAPI(t, nil)

	_, err := api.Roots(context.Background())

	var reqErr *client.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	assert.Equal(t, http.StatusNotFound, api.Session().LastStatus())
}

func TestUpdatesQuery(t *testing.T) {
	ref, rng := "p1", "0:10"
	tests := []struct {
		name string
		q    UpdatesQuery
		want string
	}{
		{"empty", UpdatesQuery{}, ""},
		{"player only", UpdatesQuery{Player: true, TrackColumns: []string{"%title%"}}, "player=true&trcolumns=%25title%25"},
		{
			name: "playlist items",
			q:    UpdatesQuery{PlaylistItems: true, PlaylistRef: &ref, PlaylistRange: &rng, PlaylistColumns: []string{"a", "b"}},
			want: "playlistItems=true&plcolumns=a%2Cb&plrange=0%3A10&plref=p1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := query.Encode(tt.q); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubscribePlayer(t *testing.T) {
	api, reqs := newTestAPI(t, map[string]string{
		"/api/query/updates": `{"player":{"playbackState":"paused","activeItem":{"index":1,"columns":["x","Y - Z"]}}}`,
	})

	states := make(chan PlayerState, 1)
	sub, err := api.SubscribePlayer([]string{"%title%"}, func(s PlayerState) { states <- s })
	require.NoError(t, err)
	defer sub.Close()

	select {
	case st := <-states:
		assert.Equal(t, Paused, st.PlaybackState)
		assert.Equal(t, []string{"Y", "Z"}, TitleParts(DisplayTitle(st)))
	case <-time.After(5 * time.Second):
		t.Fatal("no player update delivered")
	}

	got := reqs()
	require.NotEmpty(t, got)
	assert.Equal(t, "true", got[0].query.Get("player"))
	assert.Equal(t, "%title%", got[0].query.Get("trcolumns"))
}

func TestArtworkURL(t *testing.T) {
	api, _ := newTestAPI(t, nil)

	got, err := api.ArtworkURL("p1", 3)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/api/artwork/p1/3", u.Path)
}

func TestUpdatesDecode(t *testing.T) {
	var u Updates
	require.NoError(t, json.Unmarshal([]byte(`{"playlists":[{"id":"p1"}]}`), &u))
	assert.Nil(t, u.Player)
	assert.Nil(t, u.PlaylistItems)
	assert.Len(t, u.Playlists, 1)
}
