package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/beefweb/beefclient/internal/beefweb"
	"github.com/beefweb/beefclient/internal/theme"
)

// statusColumns are the title-format columns requested for the active item;
// the display title sits at beefweb.TitleColumn.
var statusColumns = []string{"%artist%", "%artist% - %title%"}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the player state and playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api := beefweb.NewAPI(opts.session)

			var (
				state     *beefweb.PlayerState
				playlists []beefweb.Playlist
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				var err error
				state, err = api.Player(ctx, statusColumns)
				return err
			})
			g.Go(func() error {
				var err error
				playlists, err = api.Playlists(ctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			artwork := beefweb.ArtworkPath(*state)
			if artwork != beefweb.NoCoverPath {
				u, err := api.ArtworkURL(state.ActiveItem.PlaylistID, state.ActiveItem.Index)
				if err != nil {
					return err
				}
				artwork = u
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(*state, playlists, artwork))
			return nil
		},
	}
}

// renderStatus draws the player summary box followed by the playlist list.
func renderStatus(state beefweb.PlayerState, playlists []beefweb.Playlist, artwork string) string {
	np := beefweb.NowPlayingFrom(state, false)

	glyph := lipgloss.NewStyle().
		Foreground(theme.StateColor(state.PlaybackState)).
		Render(theme.StateGlyph(state.PlaybackState))
	title := np.Title
	if title == "" {
		title = theme.StyleDimmed.Render("(no title)")
	}

	lines := []string{
		glyph + " " + theme.StyleHeader.Render(title),
		theme.StyleDimmed.Render(fmt.Sprintf("%s  volume %.0f", state.PlaybackState, state.Volume.Value)),
	}
	if state.Volume.IsMuted {
		lines[1] += theme.StyleDimmed.Render(" (muted)")
	}
	if len(state.PlaybackModes) > state.PlaybackMode && state.PlaybackMode >= 0 {
		lines = append(lines, theme.StyleDimmed.Render("mode "+state.PlaybackModes[state.PlaybackMode]))
	}
	lines = append(lines, theme.StyleDimmed.Render("artwork ")+theme.StyleAccent.Render(artwork))

	var list []string
	for _, p := range playlists {
		marker := " "
		if p.IsCurrent {
			marker = theme.StyleAccent.Render("*")
		}
		list = append(list, fmt.Sprintf("%s %s %s", marker, p.Title,
			theme.StyleDimmed.Render(fmt.Sprintf("(%d items)", p.ItemCount))))
	}

	sections := []string{theme.StyleBorder.Render(strings.Join(lines, "\n"))}
	if len(list) > 0 {
		sections = append(sections, theme.StyleHeader.Render("Playlists"), strings.Join(list, "\n"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
