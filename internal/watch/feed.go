package watch

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Feed carries subscription messages into the Bubble Tea update loop. The
// subscription side calls Send; the model reads one message per Next command.
type Feed struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

// NewFeed returns an open feed.
func NewFeed() *Feed {
	return &Feed{
		events: make(chan tea.Msg),
		done:   make(chan struct{}),
	}
}

// Send blocks until the model takes msg or the feed is closed.
func (f *Feed) Send(msg tea.Msg) {
	select {
	case f.events <- msg:
	case <-f.done:
	}
}

// Next returns a command that waits for the next message.
func (f *Feed) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-f.events:
			return msg
		case <-f.done:
			return nil
		}
	}
}

// Close releases pending and future senders.
func (f *Feed) Close() {
	f.once.Do(func() { close(f.done) })
}
