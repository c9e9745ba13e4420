package app

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/beefweb/beefclient/internal/query"
	"github.com/beefweb/beefclient/internal/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var altScreen bool

	cmd := &cobra.Command{
		Use:   "watch <path> [key=value...]",
		Short: "Subscribe to a push endpoint and show each payload",
		Long: `watch opens a subscription to a push endpoint and prints every payload as
it arrives. Press r to reset the session and resubscribe, c to clear the
screen, space to freeze the list and q to quit.`,
		Example: `  beefctl watch query/updates player=true trcolumns=%artist%,%title%
  beefctl watch --push ws query/updates playlists=true`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q query.Encoder
			if len(args) > 1 {
				q = query.Parse(args[1:])
			}

			m := watch.New(opts.session, args[0], q)
			popts := []tea.ProgramOption{tea.WithContext(cmd.Context())}
			if altScreen {
				popts = append(popts, tea.WithAltScreen())
			}

			_, err := tea.NewProgram(m, popts...).Run()
			return err
		},
	}

	cmd.Flags().BoolVar(&altScreen, "alt-screen", true, "Use the terminal's alternate screen")
	return cmd
}
