package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/beefweb/beefclient/internal/query"
)

// PushTransport selects the connection used by subscriptions.
type PushTransport int

const (
	// PushSSE reads a text/event-stream response. This is the default.
	PushSSE PushTransport = iota
	// PushWebSocket reads one JSON payload per websocket text frame.
	PushWebSocket
)

func (p PushTransport) String() string {
	switch p {
	case PushSSE:
		return "sse"
	case PushWebSocket:
		return "ws"
	default:
		return fmt.Sprintf("PushTransport(%d)", int(p))
	}
}

// ParsePushTransport accepts "sse", "ws" or "websocket".
func ParsePushTransport(s string) (PushTransport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sse", "eventsource":
		return PushSSE, nil
	case "ws", "websocket":
		return PushWebSocket, nil
	default:
		return PushSSE, fmt.Errorf("unknown push transport %q", s)
	}
}

// MessageHandler receives the JSON data of every push message. A non-nil
// error rejects the payload; it is logged and reported to the subscription's
// error handler.
type MessageHandler func(data json.RawMessage) error

// Decode adapts a typed callback to a MessageHandler. Payloads that do not
// decode into T are rejected with an error wrapping ErrMalformedPayload.
func Decode[T any](fn func(T)) MessageHandler {
	return func(data json.RawMessage) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: decode %T: %w", ErrMalformedPayload, v, err)
		}
		fn(v)
		return nil
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	query   query.Encoder
	onError func(error)
}

// WithQuery sets the query string of the subscription endpoint, replacing any
// query in the path.
func WithQuery(q query.Encoder) SubscribeOption {
	return func(o *subscribeOptions) { o.query = q }
}

// WithErrorHandler receives every *SubscriptionError of the subscription:
// connection failures and malformed payloads.
func WithErrorHandler(fn func(error)) SubscribeOption {
	return func(o *subscribeOptions) { o.onError = fn }
}

// Subscription is a push channel owned by a Session. Closing it removes it
// from the session before the connection is released.
type Subscription struct {
	id        string
	owner     *Session
	endpoint  string
	onMessage MessageHandler
	onError   func(error)
	log       zerolog.Logger

	ctx     context.Context
	release context.CancelFunc
	once    sync.Once
	closed  atomic.Bool
	done    chan struct{}
}

// streamState survives reconnects of one subscription.
type streamState struct {
	lastEventID string
	retry       time.Duration
}

// Subscribe opens a push subscription to path and returns at once; the
// connection is established in the background and reconnects with backoff
// until the subscription is closed. Each message payload is checked to be
// JSON and handed to onMessage. Callbacks of one session never run
// concurrently.
func (s *Session) Subscribe(path string, onMessage MessageHandler, opts ...SubscribeOption) (*Subscription, error) {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}

	u, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if o.query != nil {
		u.RawQuery = query.Encode(o.query)
	}
	endpoint := u.String()

	ctx, release := context.WithCancel(context.Background())
	sub := &Subscription{
		id:        uuid.NewString(),
		owner:     s,
		endpoint:  endpoint,
		onMessage: onMessage,
		onError:   o.onError,
		ctx:       ctx,
		release:   release,
		done:      make(chan struct{}),
	}
	sub.log = s.log.With().Str("subscription", sub.id).Str("endpoint", endpoint).Logger()

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	s.metrics.subscriptions.Inc()

	sub.log.Debug().Str("transport", s.push.String()).Msg("subscription opened")
	go sub.run(s.push)
	return sub, nil
}

// ID returns a unique identifier for logs and messages.
func (sub *Subscription) ID() string { return sub.id }

// Endpoint returns the absolute URL the subscription connects to.
func (sub *Subscription) Endpoint() string { return sub.endpoint }

// Closed reports whether Close was called or the owning session was reset.
func (sub *Subscription) Closed() bool { return sub.closed.Load() }

// Done is closed once the background connection has been released.
func (sub *Subscription) Done() <-chan struct{} { return sub.done }

// Close deregisters the subscription from its session and releases the
// connection. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.close(true)
}

// close releases the connection. unregister is false when the owner is
// discarding its whole subscription set during Reset.
func (sub *Subscription) close(unregister bool) {
	if unregister {
		sub.owner.unregister(sub)
	}
	sub.once.Do(func() {
		sub.closed.Store(true)
		sub.release()
		sub.log.Debug().Bool("unregister", unregister).Msg("subscription closed")
	})
}

func (sub *Subscription) run(transport PushTransport) {
	defer close(sub.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = sub.owner.reconnectInitial
	bo.MaxInterval = sub.owner.reconnectMax

	var st streamState
	for {
		var (
			connected bool
			err       error
		)
		switch transport {
		case PushWebSocket:
			connected, err = sub.consumeWebSocket(sub.ctx, &st)
		default:
			connected, err = sub.consumeEventStream(sub.ctx, &st)
		}
		if sub.ctx.Err() != nil {
			return
		}
		if connected {
			bo.Reset()
		}
		if err == nil {
			err = io.EOF
		}
		sub.fail(fmt.Errorf("connection lost: %w", err))

		delay := bo.NextBackOff()
		if st.retry > 0 {
			delay = st.retry
		}
		sub.log.Warn().Err(err).Dur("retry_in", delay).Msg("subscription disconnected")

		timer := time.NewTimer(delay)
		select {
		case <-sub.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// deliver validates data and hands it to the subscriber on the session's
// dispatch lock. Malformed or rejected payloads are dropped and reported.
func (sub *Subscription) deliver(data []byte) {
	if !json.Valid(data) {
		sub.owner.metrics.message("malformed")
		sub.log.Warn().Str("data", truncate(data, 128)).Msg("dropping malformed push payload")
		sub.fail(ErrMalformedPayload)
		return
	}
	sub.owner.metrics.message("delivered")
	var rejected error
	sub.owner.dispatch(func() {
		if sub.closed.Load() || sub.onMessage == nil {
			return
		}
		rejected = sub.onMessage(json.RawMessage(data))
	})
	if rejected != nil {
		sub.owner.metrics.message("rejected")
		sub.log.Warn().Err(rejected).Str("data", truncate(data, 128)).Msg("push payload rejected")
		sub.fail(rejected)
	}
}

func (sub *Subscription) fail(err error) {
	if sub.onError == nil {
		return
	}
	serr := &SubscriptionError{Endpoint: sub.endpoint, Err: err}
	sub.owner.dispatch(func() {
		if sub.closed.Load() {
			return
		}
		sub.onError(serr)
	})
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
