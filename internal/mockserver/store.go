// Package mockserver is an in-memory beefweb server used for demos and
// integration tests. It serves the JSON API, server-sent events and a
// websocket feed from a simulated player.
package mockserver

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beefweb/beefclient/internal/beefweb"
)

var (
	// ErrNotFound is returned for unknown playlists, items and paths.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for malformed arguments.
	ErrInvalid = errors.New("invalid argument")
)

// Playback modes, indexes into PlaybackModes.
const (
	ModeDefault = iota
	ModeRepeatPlaylist
	ModeRepeatTrack
)

// PlaybackModes are the mode names reported in player state.
var PlaybackModes = []string{"Default", "Repeat (playlist)", "Repeat (track)"}

// Track is one playlist entry.
type Track struct {
	Artist   string
	Album    string
	Title    string
	Duration float64 // seconds
}

type playlist struct {
	id     string
	title  string
	tracks []Track
}

func (p *playlist) totalTime() float64 {
	var total float64
	for _, t := range p.tracks {
		total += t.Duration
	}
	return total
}

// Store holds the simulated player. All getters return copies.
type Store struct {
	mu        sync.RWMutex
	info      beefweb.PlayerInfo
	state     beefweb.PlaybackState
	mode      int
	current   int // index into playlists
	item      int // index into the current playlist, -1 when none
	position  float64
	volume    beefweb.Volume
	playlists []*playlist
	separator string
	roots     []beefweb.FileSystemEntry
	dirs      map[string][]beefweb.FileSystemEntry
}

// NewStore returns a stopped player with a small demo library.
func NewStore() *Store {
	s := &Store{
		info: beefweb.PlayerInfo{
			Name:          "foobar2000",
			Title:         "foobar2000",
			Version:       "2.1.5",
			PluginVersion: "0.8.0",
		},
		state:     beefweb.Stopped,
		mode:      ModeRepeatPlaylist,
		item:      -1,
		volume:    beefweb.Volume{Type: "db", Min: -100, Max: 0, Value: 0},
		separator: "/",
		playlists: []*playlist{
			{id: "p1", title: "Default", tracks: []Track{
				{Artist: "Boards of Canada", Album: "Music Has the Right to Children", Title: "Roygbiv", Duration: 151},
				{Artist: "Aphex Twin", Album: "Selected Ambient Works 85-92", Title: "Xtal", Duration: 294},
				{Artist: "Bonobo", Album: "Black Sands", Title: "Kiara", Duration: 228},
				{Artist: "Tycho", Album: "Dive", Title: "Hours", Duration: 322},
			}},
			{id: "p2", title: "Jazz", tracks: []Track{
				{Artist: "Miles Davis", Album: "Kind of Blue", Title: "So What", Duration: 562},
				{Artist: "John Coltrane", Album: "Blue Train", Title: "Moment's Notice", Duration: 548},
				{Artist: "Bill Evans Trio", Album: "Waltz for Debby", Title: "My Foolish Heart", Duration: 296},
			}},
		},
		roots: []beefweb.FileSystemEntry{
			{Name: "Music", Path: "/music", Type: "D"},
		},
		dirs: map[string][]beefweb.FileSystemEntry{
			"/music": {
				{Name: "ambient", Path: "/music/ambient", Type: "D"},
				{Name: "jazz", Path: "/music/jazz", Type: "D"},
			},
			"/music/ambient": {
				{Name: "roygbiv.flac", Path: "/music/ambient/roygbiv.flac", Type: "F", Size: 18_404_112},
				{Name: "xtal.flac", Path: "/music/ambient/xtal.flac", Type: "F", Size: 35_120_880},
			},
			"/music/jazz": {
				{Name: "so-what.flac", Path: "/music/jazz/so-what.flac", Type: "F", Size: 67_993_344},
			},
		},
	}
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	for _, entries := range s.dirs {
		for i := range entries {
			entries[i].Timestamp = stamp
		}
	}
	return s
}

// Player returns the player state with columns evaluated for the active item.
func (s *Store) Player(columns []string) beefweb.PlayerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := beefweb.ActiveItem{PlaylistIndex: -1, Index: -1}
	if t, ok := s.activeTrack(); ok {
		pl := s.playlists[s.current]
		active = beefweb.ActiveItem{
			PlaylistID:    pl.id,
			PlaylistIndex: s.current,
			Index:         s.item,
			Position:      s.position,
			Duration:      t.Duration,
			Columns:       formatColumns(columns, t),
		}
	}
	return beefweb.PlayerState{
		Info:          s.info,
		ActiveItem:    active,
		PlaybackState: s.state,
		PlaybackMode:  s.mode,
		PlaybackModes: append([]string(nil), PlaybackModes...),
		Volume:        s.volume,
	}
}

// Playlists lists all playlists.
func (s *Store) Playlists() []beefweb.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]beefweb.Playlist, 0, len(s.playlists))
	for i, pl := range s.playlists {
		result = append(result, beefweb.Playlist{
			ID:        pl.id,
			Index:     i,
			Title:     pl.title,
			IsCurrent: i == s.current,
			ItemCount: len(pl.tracks),
			TotalTime: pl.totalTime(),
		})
	}
	return result
}

// Items returns up to count tracks of playlist plref starting at offset.
func (s *Store) Items(plref string, offset, count int, columns []string) (beefweb.PlaylistItems, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.lookup(plref)
	if err != nil {
		return beefweb.PlaylistItems{}, err
	}
	if offset < 0 || count < 0 {
		return beefweb.PlaylistItems{}, fmt.Errorf("range %d:%d: %w", offset, count, ErrInvalid)
	}
	tracks := s.playlists[idx].tracks
	items := []beefweb.PlaylistItem{}
	for i := offset; i < len(tracks) && i < offset+count; i++ {
		items = append(items, beefweb.PlaylistItem{Columns: formatColumns(columns, tracks[i])})
	}
	return beefweb.PlaylistItems{Offset: offset, TotalCount: len(tracks), Items: items}, nil
}

// Track returns item index of playlist plref.
func (s *Store) Track(plref string, index int) (Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.lookup(plref)
	if err != nil {
		return Track{}, err
	}
	tracks := s.playlists[idx].tracks
	if index < 0 || index >= len(tracks) {
		return Track{}, fmt.Errorf("item %d of playlist %s: %w", index, plref, ErrNotFound)
	}
	return tracks[index], nil
}

// Roots lists the file browser roots.
func (s *Store) Roots() beefweb.Roots {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return beefweb.Roots{
		PathSeparator: s.separator,
		Roots:         append([]beefweb.FileSystemEntry(nil), s.roots...),
	}
}

// Entries lists the directory at path.
func (s *Store) Entries(path string) (beefweb.Entries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.dirs[strings.TrimRight(path, s.separator)]
	if !ok {
		return beefweb.Entries{}, fmt.Errorf("directory %q: %w", path, ErrNotFound)
	}
	return beefweb.Entries{
		PathSeparator: s.separator,
		Entries:       append([]beefweb.FileSystemEntry(nil), entries...),
	}, nil
}

// Play starts the active item, or the first item of the current playlist
// when nothing is active.
func (s *Store) Play() Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.item < 0 {
		if len(s.playlists[s.current].tracks) == 0 {
			return 0
		}
		s.item, s.position = 0, 0
	}
	if s.state == beefweb.Playing {
		return 0
	}
	s.state = beefweb.Playing
	return ChangePlayer
}

// Pause pauses playback. It does nothing unless playing.
func (s *Store) Pause() Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != beefweb.Playing {
		return 0
	}
	s.state = beefweb.Paused
	return ChangePlayer
}

// Stop stops playback and rewinds the active item.
func (s *Store) Stop() Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == beefweb.Stopped {
		return 0
	}
	s.state = beefweb.Stopped
	s.position = 0
	return ChangePlayer
}

// Next moves to the following item, wrapping around the playlist.
func (s *Store) Next() Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(1)
}

// Previous moves to the preceding item, wrapping around the playlist.
func (s *Store) Previous() Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step(-1)
}

func (s *Store) step(delta int) Change {
	n := len(s.playlists[s.current].tracks)
	if n == 0 {
		return 0
	}
	s.item = ((s.item+delta)%n + n) % n
	s.position = 0
	if s.state == beefweb.Stopped {
		s.state = beefweb.Playing
	}
	return ChangePlayer
}

// PlayItem starts item index of playlist plref and makes it current.
func (s *Store) PlayItem(plref string, index int) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.lookup(plref)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(s.playlists[idx].tracks) {
		return 0, fmt.Errorf("item %d of playlist %s: %w", index, plref, ErrNotFound)
	}
	changes := ChangePlayer
	if idx != s.current {
		changes |= ChangePlaylists
	}
	s.current, s.item, s.position = idx, index, 0
	s.state = beefweb.Playing
	return changes, nil
}

// PlayerUpdate is the body of POST /player. Nil fields are left unchanged.
type PlayerUpdate struct {
	Volume       *float64 `json:"volume,omitempty"`
	IsMuted      *bool    `json:"isMuted,omitempty"`
	PlaybackMode *int     `json:"playbackMode,omitempty"`
	Position     *float64 `json:"position,omitempty"`
}

// Update applies u. Volume and position are clamped to their ranges.
func (s *Store) Update(u PlayerUpdate) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.PlaybackMode != nil && (*u.PlaybackMode < 0 || *u.PlaybackMode >= len(PlaybackModes)) {
		return 0, fmt.Errorf("playback mode %d: %w", *u.PlaybackMode, ErrInvalid)
	}

	var changes Change
	if u.Volume != nil {
		s.volume.Value = math.Max(s.volume.Min, math.Min(s.volume.Max, *u.Volume))
		changes |= ChangePlayer
	}
	if u.IsMuted != nil {
		s.volume.IsMuted = *u.IsMuted
		changes |= ChangePlayer
	}
	if u.PlaybackMode != nil {
		s.mode = *u.PlaybackMode
		changes |= ChangePlayer
	}
	if u.Position != nil {
		if t, ok := s.activeTrack(); ok {
			s.position = math.Max(0, math.Min(t.Duration, *u.Position))
			changes |= ChangePlayer
		}
	}
	return changes, nil
}

// Advance moves the playback position forward by d while playing and
// applies the playback mode at the end of a track.
func (s *Store) Advance(d time.Duration) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.activeTrack()
	if s.state != beefweb.Playing || !ok {
		return 0
	}
	s.position += d.Seconds()
	if s.position < t.Duration {
		return ChangePlayer
	}

	s.position = 0
	n := len(s.playlists[s.current].tracks)
	switch {
	case s.mode == ModeRepeatTrack:
	case s.mode == ModeRepeatPlaylist:
		s.item = (s.item + 1) % n
	case s.item+1 < n:
		s.item++
	default:
		s.state = beefweb.Stopped
	}
	return ChangePlayer
}

func (s *Store) activeTrack() (Track, bool) {
	if s.item < 0 {
		return Track{}, false
	}
	tracks := s.playlists[s.current].tracks
	if s.item >= len(tracks) {
		return Track{}, false
	}
	return tracks[s.item], true
}

// lookup resolves a playlist reference, either an id or a numeric index.
func (s *Store) lookup(plref string) (int, error) {
	for i, pl := range s.playlists {
		if pl.id == plref {
			return i, nil
		}
	}
	if i, err := strconv.Atoi(plref); err == nil && i >= 0 && i < len(s.playlists) {
		return i, nil
	}
	return 0, fmt.Errorf("playlist %q: %w", plref, ErrNotFound)
}

// formatColumns evaluates a tiny subset of title formatting: %artist%,
// %album%, %title% and %length% are substituted, everything else is literal.
func formatColumns(columns []string, t Track) []string {
	if len(columns) == 0 {
		return nil
	}
	r := strings.NewReplacer(
		"%artist%", t.Artist,
		"%album%", t.Album,
		"%title%", t.Title,
		"%length%", formatLength(t.Duration),
	)
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = r.Replace(c)
	}
	return out
}

func formatLength(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
