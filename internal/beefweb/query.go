package beefweb

import "github.com/beefweb/beefclient/internal/query"

// PlayerQuery selects the title-format columns of the active item.
type PlayerQuery struct {
	Columns []string
}

// Query implements query.Encoder.
func (q PlayerQuery) Query() query.List {
	return query.List{query.Strings("columns", q.Columns)}
}

// UpdatesQuery selects what /query and /query/updates report.
type UpdatesQuery struct {
	Player          bool
	TrackColumns    []string
	Playlists       bool
	PlaylistItems   bool
	PlaylistRef     *string
	PlaylistRange   *string
	PlaylistColumns []string
}

// Query implements query.Encoder. Unset sections are left out entirely.
func (q UpdatesQuery) Query() query.List {
	return query.List{
		flag("player", q.Player),
		query.Strings("trcolumns", q.TrackColumns),
		flag("playlists", q.Playlists),
		flag("playlistItems", q.PlaylistItems),
		query.Opt("plref", q.PlaylistRef),
		query.Opt("plrange", q.PlaylistRange),
		query.Strings("plcolumns", q.PlaylistColumns),
	}
}

// EntriesQuery lists one directory of the file browser.
type EntriesQuery struct {
	Path string
}

// Query implements query.Encoder.
func (q EntriesQuery) Query() query.List {
	return query.List{query.Set("path", q.Path)}
}

func flag(key string, on bool) query.Param {
	if !on {
		return query.Absent(key)
	}
	return query.Bool(key, true)
}
