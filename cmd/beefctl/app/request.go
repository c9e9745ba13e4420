package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/beefweb/beefclient/internal/query"
	"github.com/beefweb/beefclient/internal/theme"
)

func newGetCmd(opts *rootOptions) *cobra.Command {
	var (
		extract    string
		showStatus bool
	)

	cmd := &cobra.Command{
		Use:   "get <path> [key=value...]",
		Short: "Send a GET request and print the JSON response",
		Example: `  beefctl get player columns=%artist%,%title%
  beefctl get playlists --extract 'playlists.#.title'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body json.RawMessage
			err := opts.session.Get(cmd.Context(), args[0], query.Parse(args[1:]), &body)
			if showStatus {
				writeStatus(cmd.ErrOrStderr(), opts.session.LastStatus())
			}
			if err != nil {
				return err
			}
			return writeBody(cmd.OutOrStdout(), body, extract)
		},
	}

	cmd.Flags().StringVar(&extract, "extract", "", "Print only the value at this gjson path")
	cmd.Flags().BoolVar(&showStatus, "status", false, "Print the HTTP status code to stderr")
	return cmd
}

func newPostCmd(opts *rootOptions) *cobra.Command {
	var showStatus bool

	cmd := &cobra.Command{
		Use:   "post <path> [json-body]",
		Short: "Send a POST request with an optional JSON body",
		Example: `  beefctl post player/play
  beefctl post player '{"volume": -10}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("request body is not valid JSON")
				}
				payload = json.RawMessage(args[1])
			}

			var body json.RawMessage
			err := opts.session.Post(cmd.Context(), args[0], payload, &body)
			if showStatus {
				writeStatus(cmd.ErrOrStderr(), opts.session.LastStatus())
			}
			if err != nil {
				return err
			}
			return writeBody(cmd.OutOrStdout(), body, "")
		},
	}

	cmd.Flags().BoolVar(&showStatus, "status", false, "Print the HTTP status code to stderr")
	return cmd
}

// writeBody prints body indented, or only the value at path when path is set.
// Empty bodies print nothing.
func writeBody(w io.Writer, body json.RawMessage, path string) error {
	if len(body) == 0 {
		return nil
	}
	if path != "" {
		res := gjson.GetBytes(body, path)
		if !res.Exists() {
			return fmt.Errorf("path %q not found in response", path)
		}
		if res.IsObject() || res.IsArray() {
			_, err := fmt.Fprint(w, gjson.Get(res.Raw, "@pretty").Raw)
			return err
		}
		_, err := fmt.Fprintln(w, res.String())
		return err
	}
	_, err := fmt.Fprint(w, gjson.GetBytes(body, "@pretty").Raw)
	return err
}

func writeStatus(w io.Writer, code int) {
	style := lipgloss.NewStyle().Bold(true).Foreground(theme.StatusColor(code))
	fmt.Fprintln(w, style.Render(fmt.Sprintf("HTTP %d", code)))
}
