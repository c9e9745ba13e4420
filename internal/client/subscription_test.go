package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beefweb/beefclient/internal/query"
)

// collector gathers subscription callbacks for assertions.
type collector struct {
	mu      sync.Mutex
	msgs    []string
	errs    []error
	active  atomic.Int32
	overlap atomic.Bool
}

func (c *collector) onMessage(data json.RawMessage) error {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.active.Add(-1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(data))
	return nil
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func (c *collector) errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

func TestSubscribeEndpoint(t *testing.T) {
	requested := make(chan string, 4)
	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		requested <- r.URL.String()
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		pr, pw := io.Pipe()
		go func() {
			<-r.Context().Done()
			pw.CloseWithError(r.Context().Err())
		}()
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"text/event-stream"}},
			Body:       pr,
			Request:    r,
		}, nil
	})

	s := newTestSession(t, "http://localhost:8880/api", WithRoundTripper(rt))
	sub, err := s.Subscribe("player", func(json.RawMessage) error { return nil },
		WithQuery(query.List{query.Set("columns", "title,artist")}))
	require.NoError(t, err)

	const want = "http://localhost:8880/api/player?columns=title%2Cartist"
	assert.Equal(t, want, sub.Endpoint())
	select {
	case got := <-requested:
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription never connected")
	}
	sub.Close()
}

func TestSubscribeQueryReplacesPathQuery(t *testing.T) {
	s := newTestSession(t, "http://localhost:8880/api", WithRoundTripper(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		<-r.Context().Done()
		return nil, r.Context().Err()
	})))

	sub, err := s.Subscribe("query/updates?stale=1", nil, WithQuery(query.List{query.Bool("player", true)}))
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, "http://localhost:8880/api/query/updates?player=true", sub.Endpoint())

	plain, err := s.Subscribe("query/updates?keep=1", nil)
	require.NoError(t, err)
	defer plain.Close()
	assert.Equal(t, "http://localhost:8880/api/query/updates?keep=1", plain.Endpoint())
}

func TestCloseTwiceUnregistersOnce(t *testing.T) {
	s := newTestSession(t, "http://localhost:8880/api", WithRoundTripper(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		<-r.Context().Done()
		return nil, r.Context().Err()
	})))

	first, err := s.Subscribe("a", nil)
	require.NoError(t, err)
	second, err := s.Subscribe("b", nil)
	require.NoError(t, err)
	require.Equal(t, 2, s.Subscriptions())

	first.Close()
	first.Close()

	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	assert.Equal(t, 1, s.Subscriptions())
	s.mu.Lock()
	_, tracked := s.subs[second]
	s.mu.Unlock()
	assert.True(t, tracked)

	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("closed subscription still running")
	}
}

func TestCloseAfterResetIsNoop(t *testing.T) {
	s := newTestSession(t, "http://localhost:8880/api", WithRoundTripper(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		<-r.Context().Done()
		return nil, r.Context().Err()
	})))

	old, err := s.Subscribe("a", nil)
	require.NoError(t, err)
	s.Reset()

	fresh, err := s.Subscribe("a", nil)
	require.NoError(t, err)

	old.Close()
	assert.Equal(t, 1, s.Subscriptions())
	assert.False(t, fresh.Closed())
}

func TestSubscriptionDropsMalformedPayloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, "data: {\"a\":1}\n\ndata: not json\n\nevent: ping\ndata: {\"ignored\":true}\n\ndata: [1,\ndata: 2]\n\n")
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv.URL)
	var c collector
	sub, err := s.Subscribe("updates", c.onMessage, WithErrorHandler(c.onError))
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return len(c.messages()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{`{"a":1}`, "[1,\n2]"}, c.messages())

	errs := c.errors()
	require.Len(t, errs, 1)
	var serr *SubscriptionError
	require.ErrorAs(t, errs[0], &serr)
	assert.ErrorIs(t, serr, ErrMalformedPayload)
	assert.Equal(t, sub.Endpoint(), serr.Endpoint)
	assert.False(t, sub.Closed(), "malformed payloads must not close the subscription")
}

func TestDecodeRejectionIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, "data: {\"n\":1}\n\ndata: \"three\"\n\ndata: {\"n\":2}\n\n")
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	type payload struct {
		N int `json:"n"`
	}
	var (
		mu  sync.Mutex
		got []int
		c   collector
	)
	s := newTestSession(t, srv.URL)
	sub, err := s.Subscribe("updates", Decode(func(p payload) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p.N)
	}), WithErrorHandler(c.onError))
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2 && len(c.errors()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{1, 2}, got)
	mu.Unlock()

	var serr *SubscriptionError
	require.ErrorAs(t, c.errors()[0], &serr)
	assert.ErrorIs(t, serr, ErrMalformedPayload)
	assert.False(t, sub.Closed(), "rejected payloads must not close the subscription")
}

func TestSubscriptionReconnectsWithLastEventID(t *testing.T) {
	var attempts atomic.Int32
	lastIDs := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		lastIDs <- r.Header.Get("Last-Event-ID")
		if n == 1 {
			writeEvents(w, "retry: 10\nid: 41\ndata: {\"n\":1}\n\n")
			return
		}
		writeEvents(w, "id: 42\ndata: {\"n\":2}\n\n")
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv.URL)
	var c collector
	sub, err := s.Subscribe("updates", c.onMessage, WithErrorHandler(c.onError))
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return len(c.messages()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, c.messages())
	assert.Equal(t, "", <-lastIDs)
	assert.Equal(t, "41", <-lastIDs)

	errs := c.errors()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "connection lost")
}

func TestSubscriptionReportsUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv.URL)
	var c collector
	sub, err := s.Subscribe("updates", c.onMessage, WithErrorHandler(c.onError))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.errors()) >= 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Subscriptions(), "subscription stays tracked until closed")
	sub.Close()
	assert.ErrorIs(t, c.errors()[0], ErrUnexpectedStatus)
	assert.Empty(t, c.messages())
}

func TestCallbacksAreSerializedAcrossSubscriptions(t *testing.T) {
	var events strings.Builder
	for i := 0; i < 50; i++ {
		events.WriteString("data: {}\n\n")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, events.String())
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv.URL)
	var c collector
	for i := 0; i < 4; i++ {
		_, err := s.Subscribe("updates", func(data json.RawMessage) error {
			defer time.Sleep(time.Microsecond)
			return c.onMessage(data)
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(c.messages()) == 200 }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, c.overlap.Load(), "callbacks ran concurrently")
}

func TestNoDeliveryAfterClose(t *testing.T) {
	send := make(chan string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, "")
		for {
			select {
			case <-r.Context().Done():
				return
			case ev := <-send:
				io.WriteString(w, ev)
				w.(http.Flusher).Flush()
			}
		}
	}))
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv.URL)
	var c collector
	sub, err := s.Subscribe("updates", c.onMessage)
	require.NoError(t, err)

	send <- "data: 1\n\n"
	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, 5*time.Second, 5*time.Millisecond)

	sub.Close()
	<-sub.Done()
	select {
	case send <- "data: 2\n\n":
	case <-time.After(100 * time.Millisecond):
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"1"}, c.messages())
}

func TestWebSocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/query/updates", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("player"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"player":{"playbackState":"playing"}}`))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		conn.WriteMessage(websocket.TextMessage, []byte(`oops`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"player":{"playbackState":"paused"}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv.URL+"/api", WithPushTransport(PushWebSocket))
	var c collector
	sub, err := s.Subscribe("query/updates", c.onMessage,
		WithQuery(query.List{query.Bool("player", true)}), WithErrorHandler(c.onError))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.messages()) == 2 }, 5*time.Second, 10*time.Millisecond)
	want := []string{`{"player":{"playbackState":"playing"}}`, `{"player":{"playbackState":"paused"}}`}
	if diff := cmp.Diff(want, c.messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, c.errors(), 1)
	assert.ErrorIs(t, c.errors()[0], ErrMalformedPayload)

	s.Reset()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("websocket not released on reset")
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8880/api/x?a=1", "ws://localhost:8880/api/x?a=1", false},
		{"https://host/api", "wss://host/api", false},
		{"ws://host/api", "ws://host/api", false},
		{"ftp://host/api", "", true},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestReadEvents(t *testing.T) {
	type event struct {
		Name string
		Data string
	}
	tests := []struct {
		name      string
		input     string
		want      []event
		wantID    string
		wantRetry time.Duration
	}{
		{
			name:  "single event",
			input: "data: {\"a\":1}\n\n",
			want:  []event{{"", `{"a":1}`}},
		},
		{
			name:  "multi-line data joined",
			input: "data: line1\ndata: line2\n\n",
			want:  []event{{"", "line1\nline2"}},
		},
		{
			name:  "comments and unknown fields ignored",
			input: ": keepalive\nfoo: bar\ndata:x\n\n",
			want:  []event{{"", "x"}},
		},
		{
			name:  "named event",
			input: "event: update\ndata: 1\n\ndata: 2\n\n",
			want:  []event{{"update", "1"}, {"", "2"}},
		},
		{
			name:  "crlf line endings",
			input: "data: 1\r\n\r\n",
			want:  []event{{"", "1"}},
		},
		{
			name:  "no dispatch without blank line",
			input: "data: 1\n",
			want:  nil,
		},
		{
			name:  "empty data not dispatched",
			input: "data:\n\nevent: x\n\n",
			want:  nil,
		},
		{
			name:      "id and retry recorded",
			input:     "id: 7\nretry: 250\ndata: 1\n\nretry: bogus\n\n",
			want:      []event{{"", "1"}},
			wantID:    "7",
			wantRetry: 250 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				st  streamState
				got []event
			)
			err := readEvents(strings.NewReader(tt.input), &st, func(name string, data []byte) {
				got = append(got, event{name, string(data)})
			})
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantID, st.lastEventID)
			assert.Equal(t, tt.wantRetry, st.retry)
		})
	}
}

func TestParsePushTransport(t *testing.T) {
	tests := []struct {
		in      string
		want    PushTransport
		wantErr bool
	}{
		{"", PushSSE, false},
		{"sse", PushSSE, false},
		{"WS", PushWebSocket, false},
		{"websocket", PushWebSocket, false},
		{"carrier-pigeon", PushSSE, true},
	}
	for _, tt := range tests {
		got, err := ParsePushTransport(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, s string) PushTransport {
	t.Helper()
	p, err := ParsePushTransport(s)
	require.NoError(t, err)
	return p
}

func TestDecode(t *testing.T) {
	type payload struct {
		N int `json:"n"`
	}
	var got []payload
	h := Decode(func(p payload) { got = append(got, p) })
	require.NoError(t, h(json.RawMessage(`{"n":3}`)))
	err := h(json.RawMessage(`"not an object"`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, []payload{{N: 3}}, got)
}

func TestTeaBridge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/query/updates" {
			writeEvents(w, "data: {\"player\":true}\n\n")
			<-r.Context().Done()
			return
		}
		io.WriteString(w, `{"roots":[]}`)
	}))
	t.Cleanup(srv.Close)

	s := newTestSession(t, srv.URL+"/api")

	msg := s.FetchCmd(context.Background(), "browser/roots", nil)()
	resp, ok := msg.(ResponseMsg)
	require.True(t, ok)
	require.NoError(t, resp.Err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"roots":[]}`, string(resp.Body))

	msgs := make(chan tea.Msg, 4)
	send := func(m tea.Msg) { msgs <- m }
	sub, err := s.Subscribe("query/updates", Forward(send, "updates"), WithErrorHandler(ForwardErrors(send, "updates")))
	require.NoError(t, err)
	defer sub.Close()

	select {
	case m := <-msgs:
		push, ok := m.(PushMsg)
		require.True(t, ok, "got %T", m)
		assert.Equal(t, "updates", push.Tag)
		assert.JSONEq(t, `{"player":true}`, string(push.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("no push message forwarded")
	}
}
