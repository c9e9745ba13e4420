// Package beefweb provides typed access to a beefweb player API on top of a
// client.Session. Types mirror the server's JSON without importing server
// packages.
package beefweb

// PlaybackState is the player's transport state.
type PlaybackState string

const (
	Stopped PlaybackState = "stopped"
	Playing PlaybackState = "playing"
	Paused  PlaybackState = "paused"
)

// PlayerInfo describes the player application.
type PlayerInfo struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	Version       string `json:"version"`
	PluginVersion string `json:"pluginVersion"`
}

// ActiveItem is the track currently loaded in the player. Index is -1 when
// no playlist item is active.
type ActiveItem struct {
	PlaylistID    string   `json:"playlistId"`
	PlaylistIndex int      `json:"playlistIndex"`
	Index         int      `json:"index"`
	Position      float64  `json:"position"`
	Duration      float64  `json:"duration"`
	Columns       []string `json:"columns"`
}

// Volume mirrors the player's volume control.
type Volume struct {
	Type    string  `json:"type"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Value   float64 `json:"value"`
	IsMuted bool    `json:"isMuted"`
}

// PlayerState is the payload of GET /player and of player updates.
type PlayerState struct {
	Info          PlayerInfo    `json:"info"`
	ActiveItem    ActiveItem    `json:"activeItem"`
	PlaybackState PlaybackState `json:"playbackState"`
	PlaybackMode  int           `json:"playbackMode"`
	PlaybackModes []string      `json:"playbackModes,omitempty"`
	Volume        Volume        `json:"volume"`
}

// Playlist is one entry of GET /playlists.
type Playlist struct {
	ID        string  `json:"id"`
	Index     int     `json:"index"`
	Title     string  `json:"title"`
	IsCurrent bool    `json:"isCurrent"`
	ItemCount int     `json:"itemCount"`
	TotalTime float64 `json:"totalTime"`
}

// PlaylistItem holds the requested title-format columns of one track.
type PlaylistItem struct {
	Columns []string `json:"columns"`
}

// PlaylistItems is a window of a playlist.
type PlaylistItems struct {
	Offset     int            `json:"offset"`
	TotalCount int            `json:"totalCount"`
	Items      []PlaylistItem `json:"items"`
}

// FileSystemEntry is a file or directory exposed by the file browser.
type FileSystemEntry struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Type      string `json:"type"` // "D" for directories, "F" for files
	Size      int64  `json:"size"`
	Timestamp int64  `json:"timestamp"`
}

// Roots is the payload of GET /browser/roots.
type Roots struct {
	PathSeparator string            `json:"pathSeparator"`
	Roots         []FileSystemEntry `json:"roots"`
}

// Entries is the payload of GET /browser/entries.
type Entries struct {
	PathSeparator string            `json:"pathSeparator"`
	Entries       []FileSystemEntry `json:"entries"`
}

// Updates is the payload of GET /query and of every /query/updates event.
// Only the sections that were requested (and changed, for updates) are set.
type Updates struct {
	Player        *PlayerState   `json:"player,omitempty"`
	Playlists     []Playlist     `json:"playlists,omitempty"`
	PlaylistItems *PlaylistItems `json:"playlistItems,omitempty"`
}

type playerResponse struct {
	Player PlayerState `json:"player"`
}

type playlistsResponse struct {
	Playlists []Playlist `json:"playlists"`
}

type playlistItemsResponse struct {
	PlaylistItems PlaylistItems `json:"playlistItems"`
}
