// Package watch implements the interactive view behind beefctl watch: it
// subscribes to one push endpoint and renders the payloads as they arrive.
package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/tidwall/gjson"

	"github.com/beefweb/beefclient/internal/beefweb"
	"github.com/beefweb/beefclient/internal/client"
	"github.com/beefweb/beefclient/internal/query"
	"github.com/beefweb/beefclient/internal/theme"
)

const (
	// DefaultMaxLines is how many payloads the view keeps.
	DefaultMaxLines = 200

	progressWidth = 30
)

// subscribedMsg reports the outcome of (re)subscribing.
type subscribedMsg struct {
	sub *client.Subscription
	err error
}

// Model is the Bubble Tea model of the watch view.
type Model struct {
	session *client.Session
	path    string
	query   query.Encoder
	feed    *Feed
	keys    KeyMap

	sub      *client.Subscription
	lines    []string
	maxLines int
	frozen   bool

	received int
	failures int
	resets   int
	lastErr  error

	player   *beefweb.PlayerState
	width    int
	height   int
	quitting bool
}

// New builds a watch model for path. q may be nil.
func New(session *client.Session, path string, q query.Encoder) Model {
	return Model{
		session:  session,
		path:     path,
		query:    q,
		feed:     NewFeed(),
		keys:     DefaultKeyMap(),
		maxLines: DefaultMaxLines,
	}
}

// Init subscribes and starts reading the feed.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.subscribe(), m.feed.Next())
}

func (m Model) subscribe() tea.Cmd {
	session, path, q, feed := m.session, m.path, m.query, m.feed
	return func() tea.Msg {
		opts := []client.SubscribeOption{
			client.WithErrorHandler(client.ForwardErrors(feed.Send, path)),
		}
		if q != nil {
			opts = append(opts, client.WithQuery(q))
		}
		sub, err := session.Subscribe(path, client.Forward(feed.Send, path), opts...)
		return subscribedMsg{sub: sub, err: err}
	}
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case subscribedMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.sub = msg.sub
		m.lastErr = nil
		return m, nil

	case client.PushMsg:
		m.received++
		m.observe(msg.Data)
		return m, m.feed.Next()

	case client.PushErrorMsg:
		m.failures++
		m.lastErr = msg.Err
		return m, m.feed.Next()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.feed.Close()
		m.session.Reset()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Reset):
		m.session.Reset()
		m.resets++
		m.sub = nil
		m.player = nil
		return m, m.subscribe()

	case key.Matches(msg, m.keys.Clear):
		m.lines = nil
		return m, nil

	case key.Matches(msg, m.keys.Freeze):
		m.frozen = !m.frozen
		return m, nil
	}
	return m, nil
}

// observe records a payload. The player section, when present, feeds the
// now playing header.
func (m *Model) observe(data json.RawMessage) {
	if p := gjson.GetBytes(data, "player"); p.IsObject() {
		var state beefweb.PlayerState
		if err := json.Unmarshal([]byte(p.Raw), &state); err == nil {
			m.player = &state
		}
	} else if gjson.GetBytes(data, "playbackState").Exists() {
		var state beefweb.PlayerState
		if err := json.Unmarshal(data, &state); err == nil {
			m.player = &state
		}
	}

	if m.frozen {
		return
	}
	line := gjson.GetBytes(data, "@ugly").Raw
	if line == "" {
		line = string(data)
	}
	m.lines = append(m.lines, line)
	if over := len(m.lines) - m.maxLines; over > 0 {
		m.lines = m.lines[over:]
	}
}

// View renders the model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{m.renderHeader()}
	if m.player != nil {
		sections = append(sections, m.renderPlayer())
	}
	sections = append(sections, m.renderLines())
	if m.lastErr != nil {
		sections = append(sections, theme.StyleError.Render("error: "+m.lastErr.Error()))
	}
	sections = append(sections, m.renderHelp())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	endpoint := m.path
	if m.sub != nil {
		endpoint = m.sub.Endpoint()
	}

	status := fmt.Sprintf("%d received  %d errors  %d resets", m.received, m.failures, m.resets)
	if m.frozen {
		status += "  " + theme.StyleAccent.Render("frozen")
	}

	title := theme.StyleHeader.Render("beefctl watch") + " " + theme.StyleDimmed.Render(endpoint)
	return lipgloss.JoinVertical(lipgloss.Left, title, theme.StyleDimmed.Render(status))
}

func (m Model) renderPlayer() string {
	np := beefweb.NowPlayingFrom(*m.player, false)
	state := m.player.PlaybackState

	glyph := lipgloss.NewStyle().Foreground(theme.StateColor(state)).Render(theme.StateGlyph(state))
	title := np.Title
	if title == "" {
		title = theme.StyleDimmed.Render("(nothing)")
	}

	lines := []string{glyph + " " + title}
	item := m.player.ActiveItem
	if state != beefweb.Stopped && item.Duration > 0 {
		lines = append(lines, progressBar(item.Position, item.Duration, progressWidth)+" "+
			theme.StyleDimmed.Render(clock(item.Position)+" / "+clock(item.Duration)))
	}
	volume := fmt.Sprintf("volume %.0f", m.player.Volume.Value)
	if m.player.Volume.IsMuted {
		volume += " (muted)"
	}
	lines = append(lines, theme.StyleDimmed.Render(volume))

	return theme.StyleBorder.Render(strings.Join(lines, "\n"))
}

func (m Model) renderLines() string {
	if len(m.lines) == 0 {
		return theme.StyleDimmed.Render("waiting for updates...")
	}

	lines := m.lines
	if limit := m.height - 10; m.height > 0 && limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = fitLine(l, m.width)
	}
	return strings.Join(out, "\n")
}

// fitLine cuts l to fit one terminal row of width cells. Zero width means
// unknown and leaves l as is.
func fitLine(l string, width int) string {
	if width <= 4 {
		return l
	}
	return ansi.Truncate(l, width-1, "...")
}

func (m Model) renderHelp() string {
	var parts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, theme.StyleAccent.Render(h.Key)+" "+h.Desc)
	}
	return theme.StyleDimmed.Render(strings.Join(parts, "  "))
}

func progressBar(position, duration float64, width int) string {
	filled := 0
	if duration > 0 {
		filled = int(position / duration * float64(width))
	}
	filled = max(0, min(filled, width))
	return theme.StyleAccent.Render(strings.Repeat("█", filled)) +
		theme.StyleDimmed.Render(strings.Repeat("░", width-filled))
}

func clock(seconds float64) string {
	s := max(0, int(seconds))
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
