package beefweb

import (
	"fmt"
	"strings"
)

// NoCoverPath is shown when no artwork is available.
const NoCoverPath = "no-cover.webp"

// TitleColumn is the index in ActiveItem.Columns holding the display title.
const TitleColumn = 1

// DisplayTitle is the title shown for state: the title column of the active
// item while playing or paused, the player title when stopped.
func DisplayTitle(state PlayerState) string {
	if state.PlaybackState == Stopped {
		return state.Info.Title
	}
	if len(state.ActiveItem.Columns) > TitleColumn {
		return state.ActiveItem.Columns[TitleColumn]
	}
	return ""
}

// ArtworkPath is the server path of the active item's artwork, or
// NoCoverPath when stopped or nothing is active.
func ArtworkPath(state PlayerState) string {
	if state.PlaybackState == Stopped || state.ActiveItem.Index < 0 {
		return NoCoverPath
	}
	return fmt.Sprintf("/api/artwork/%s/%d", state.ActiveItem.PlaylistID, state.ActiveItem.Index)
}

// TitleParts splits a display title on '-' into trimmed parts.
func TitleParts(title string) []string {
	parts := strings.Split(title, "-")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// NowPlaying holds the derived display fields of a player state.
type NowPlaying struct {
	Title   string
	Parts   []string
	Artwork string
}

// NowPlayingFrom derives the display fields of state. artworkFailed is set
// by callers that could not load the artwork and forces the placeholder.
func NowPlayingFrom(state PlayerState, artworkFailed bool) NowPlaying {
	title := DisplayTitle(state)
	artwork := ArtworkPath(state)
	if artworkFailed {
		artwork = NoCoverPath
	}
	return NowPlaying{Title: title, Parts: TitleParts(title), Artwork: artwork}
}
