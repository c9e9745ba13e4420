package beefweb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/beefweb/beefclient/internal/client"
)

// API is a typed view of a beefweb server. All paths are relative to the
// session's base URL, which normally ends in /api.
type API struct {
	s *client.Session
}

// NewAPI wraps s.
func NewAPI(s *client.Session) *API {
	return &API{s: s}
}

// Session returns the underlying session.
func (a *API) Session() *client.Session { return a.s }

// Player returns the current player state. columns are title-format
// expressions evaluated for the active item.
func (a *API) Player(ctx context.Context, columns []string) (*PlayerState, error) {
	resp, err := client.GetJSON[playerResponse](ctx, a.s, "player", PlayerQuery{Columns: columns})
	if err != nil {
		return nil, err
	}
	return &resp.Player, nil
}

// Play starts or resumes playback.
func (a *API) Play(ctx context.Context) error { return a.command(ctx, "play") }

// Pause pauses playback.
func (a *API) Pause(ctx context.Context) error { return a.command(ctx, "pause") }

// Stop stops playback.
func (a *API) Stop(ctx context.Context) error { return a.command(ctx, "stop") }

// Next skips to the next track.
func (a *API) Next(ctx context.Context) error { return a.command(ctx, "next") }

// Previous goes back to the previous track.
func (a *API) Previous(ctx context.Context) error { return a.command(ctx, "previous") }

// PlayItem starts playing item index of playlist plref.
func (a *API) PlayItem(ctx context.Context, plref string, index int) error {
	return a.s.Post(ctx, "player/play/"+url.PathEscape(plref)+"/"+strconv.Itoa(index), nil, nil)
}

func (a *API) command(ctx context.Context, name string) error {
	return a.s.Post(ctx, "player/"+name, nil, nil)
}

// SetVolume sets the absolute volume, in the units reported by Volume.
func (a *API) SetVolume(ctx context.Context, value float64) error {
	return a.s.Post(ctx, "player", map[string]any{"volume": value}, nil)
}

// SetMuted mutes or unmutes the player.
func (a *API) SetMuted(ctx context.Context, muted bool) error {
	return a.s.Post(ctx, "player", map[string]any{"isMuted": muted}, nil)
}

// Playlists lists all playlists.
func (a *API) Playlists(ctx context.Context) ([]Playlist, error) {
	resp, err := client.GetJSON[playlistsResponse](ctx, a.s, "playlists", nil)
	if err != nil {
		return nil, err
	}
	return resp.Playlists, nil
}

// PlaylistItems returns up to count items of playlist plref starting at offset.
func (a *API) PlaylistItems(ctx context.Context, plref string, offset, count int, columns []string) (*PlaylistItems, error) {
	path := fmt.Sprintf("playlists/%s/items/%d:%d", url.PathEscape(plref), offset, count)
	resp, err := client.GetJSON[playlistItemsResponse](ctx, a.s, path, PlayerQuery{Columns: columns})
	if err != nil {
		return nil, err
	}
	return &resp.PlaylistItems, nil
}

// Roots lists the file browser roots.
func (a *API) Roots(ctx context.Context) (*Roots, error) {
	resp, err := client.GetJSON[Roots](ctx, a.s, "browser/roots", nil)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Entries lists the directory at path.
func (a *API) Entries(ctx context.Context, path string) (*Entries, error) {
	resp, err := client.GetJSON[Entries](ctx, a.s, "browser/entries", EntriesQuery{Path: path})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Query fetches the sections selected by q once.
func (a *API) Query(ctx context.Context, q UpdatesQuery) (*Updates, error) {
	resp, err := client.GetJSON[Updates](ctx, a.s, "query", q)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubscribeUpdates opens a query/updates stream. fn receives every decoded
// event; the first event carries the full state of each requested section.
func (a *API) SubscribeUpdates(q UpdatesQuery, fn func(Updates), opts ...client.SubscribeOption) (*client.Subscription, error) {
	opts = append(opts, client.WithQuery(q))
	return a.s.Subscribe("query/updates", client.Decode(fn), opts...)
}

// SubscribePlayer is SubscribeUpdates restricted to player state.
func (a *API) SubscribePlayer(columns []string, fn func(PlayerState), opts ...client.SubscribeOption) (*client.Subscription, error) {
	q := UpdatesQuery{Player: true, TrackColumns: columns}
	return a.SubscribeUpdates(q, func(u Updates) {
		if u.Player != nil {
			fn(*u.Player)
		}
	}, opts...)
}

// ArtworkURL returns the absolute URL of the artwork for item index of
// playlist plref.
func (a *API) ArtworkURL(plref string, index int) (string, error) {
	return a.s.URL("artwork/"+url.PathEscape(plref)+"/"+strconv.Itoa(index), nil)
}
