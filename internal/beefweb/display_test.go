package beefweb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		name  string
		state PlayerState
		want  string
	}{
		{
			name: "stopped shows player title",
			state: PlayerState{
				Info:          PlayerInfo{Title: "foobar2000"},
				PlaybackState: Stopped,
				ActiveItem:    ActiveItem{Columns: []string{"a", "Artist - Song"}},
			},
			want: "foobar2000",
		},
		{
			name: "playing shows title column",
			state: PlayerState{
				Info:          PlayerInfo{Title: "foobar2000"},
				PlaybackState: Playing,
				ActiveItem:    ActiveItem{Columns: []string{"a", "Artist - Song"}},
			},
			want: "Artist - Song",
		},
		{
			name: "paused with missing column",
			state: PlayerState{
				PlaybackState: Paused,
				ActiveItem:    ActiveItem{Columns: []string{"only"}},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayTitle(tt.state); got != tt.want {
				t.Errorf("DisplayTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArtworkPath(t *testing.T) {
	tests := []struct {
		name  string
		state PlayerState
		want  string
	}{
		{"stopped", PlayerState{PlaybackState: Stopped, ActiveItem: ActiveItem{PlaylistID: "p1", Index: 3}}, NoCoverPath},
		{"playing", PlayerState{PlaybackState: Playing, ActiveItem: ActiveItem{PlaylistID: "p1", Index: 3}}, "/api/artwork/p1/3"},
		{"paused first item", PlayerState{PlaybackState: Paused, ActiveItem: ActiveItem{PlaylistID: "p2", Index: 0}}, "/api/artwork/p2/0"},
		{"no active item", PlayerState{PlaybackState: Playing, ActiveItem: ActiveItem{PlaylistID: "p1", Index: -1}}, NoCoverPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArtworkPath(tt.state); got != tt.want {
				t.Errorf("ArtworkPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNowPlayingFrom(t *testing.T) {
	state := PlayerState{
		PlaybackState: Playing,
		ActiveItem:    ActiveItem{PlaylistID: "p1", Index: 2, Columns: []string{"x", "Band - Album - Track"}},
	}

	got := NowPlayingFrom(state, false)
	want := NowPlaying{
		Title:   "Band - Album - Track",
		Parts:   []string{"Band", "Album", "Track"},
		Artwork: "/api/artwork/p1/2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NowPlayingFrom() mismatch (-want +got):\n%s", diff)
	}

	if got := NowPlayingFrom(state, true).Artwork; got != NoCoverPath {
		t.Errorf("NowPlayingFrom(failed).Artwork = %q, want %q", got, NoCoverPath)
	}
}
