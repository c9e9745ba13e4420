package client

import (
	"context"
	"encoding/json"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/beefweb/beefclient/internal/query"
)

// --- Bubble Tea messages ---

// ResponseMsg carries the outcome of a FetchCmd.
type ResponseMsg struct {
	Path   string
	Status int
	Body   json.RawMessage
	Err    error
}

// PushMsg delivers one subscription payload.
type PushMsg struct {
	Tag  string
	Data json.RawMessage
}

// PushErrorMsg delivers a subscription error.
type PushErrorMsg struct {
	Tag string
	Err error
}

// FetchCmd returns a Bubble Tea command that GETs path and reports the result
// as a ResponseMsg.
func (s *Session) FetchCmd(ctx context.Context, path string, q query.Encoder) tea.Cmd {
	return func() tea.Msg {
		var body json.RawMessage
		err := s.Get(ctx, path, q, &body)
		return ResponseMsg{Path: path, Status: s.LastStatus(), Body: body, Err: err}
	}
}

// Forward returns a MessageHandler that sends every payload into a Bubble Tea
// program, usually via (*tea.Program).Send.
func Forward(send func(tea.Msg), tag string) MessageHandler {
	return func(data json.RawMessage) error {
		send(PushMsg{Tag: tag, Data: data})
		return nil
	}
}

// ForwardErrors is Forward for subscription errors.
func ForwardErrors(send func(tea.Msg), tag string) func(error) {
	return func(err error) {
		send(PushErrorMsg{Tag: tag, Err: err})
	}
}
