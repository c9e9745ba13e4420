// Package client manages a session against one beefweb base URL: JSON
// requests that share a single cancellation epoch, and push subscriptions
// that are tracked so they can be torn down together on Reset.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/beefweb/beefclient/internal/query"
)

const (
	// RequestTimeout bounds every Get and Post. It is not configurable per call.
	RequestTimeout = 5 * time.Second

	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Session is one logical connection context to a base URL. All methods are
// safe for concurrent use.
type Session struct {
	baseURL *url.URL
	log     zerolog.Logger
	metrics *metrics
	headers http.Header
	push    PushTransport
	rt      http.RoundTripper
	jar     http.CookieJar

	reconnectInitial time.Duration
	reconnectMax     time.Duration

	// pushClient has no timeout; streams live until closed.
	pushClient *http.Client

	mu         sync.Mutex
	lastStatus int
	epoch      context.Context
	cancel     context.CancelCauseFunc
	subs       map[*Subscription]struct{}
	httpClient *http.Client

	// dispatchMu serializes subscription callbacks.
	dispatchMu sync.Mutex
}

// Option configures a Session.
type Option func(*options)

type options struct {
	logger           zerolog.Logger
	registerer       prometheus.Registerer
	roundTripper     http.RoundTripper
	push             PushTransport
	reconnectInitial time.Duration
	reconnectMax     time.Duration
	headers          http.Header
}

// WithLogger sets the session logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer exports session metrics to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithRoundTripper replaces the HTTP transport used for requests and event
// streams.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) { o.roundTripper = rt }
}

// WithPushTransport selects how subscriptions connect.
func WithPushTransport(p PushTransport) Option {
	return func(o *options) { o.push = p }
}

// WithReconnect sets the subscription reconnect backoff bounds.
func WithReconnect(initial, maxDelay time.Duration) Option {
	return func(o *options) {
		o.reconnectInitial = initial
		o.reconnectMax = maxDelay
	}
}

// WithHeader adds a header to every request and push connection.
func WithHeader(key, value string) Option {
	return func(o *options) { o.headers.Add(key, value) }
}

// New creates a session bound to baseURL, which must be an absolute http or
// https URL.
func New(baseURL string, opts ...Option) (*Session, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""

	o := options{
		logger:           zerolog.Nop(),
		reconnectInitial: reconnectBaseDelay,
		reconnectMax:     reconnectMaxDelay,
		headers:          make(http.Header),
	}
	for _, opt := range opts {
		opt(&o)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	s := &Session{
		baseURL:          u,
		log:              o.logger.With().Str("component", "session").Str("base_url", u.String()).Logger(),
		metrics:          newMetrics(o.registerer),
		headers:          o.headers,
		push:             o.push,
		rt:               o.roundTripper,
		jar:              jar,
		reconnectInitial: o.reconnectInitial,
		reconnectMax:     o.reconnectMax,
		pushClient:       &http.Client{Transport: o.roundTripper, Jar: jar},
	}
	s.init()
	return s, nil
}

// init arms a fresh epoch. Callers other than New must hold s.mu.
func (s *Session) init() {
	s.lastStatus = 0
	s.epoch, s.cancel = context.WithCancelCause(context.Background())
	s.subs = make(map[*Subscription]struct{})
	s.httpClient = &http.Client{
		Timeout:   RequestTimeout,
		Transport: s.rt,
		Jar:       s.jar,
	}
}

// BaseURL returns the URL the session was created with.
func (s *Session) BaseURL() string {
	return s.baseURL.String()
}

// LastStatus returns the status code of the most recent response, or 0 while
// a call is in flight or when no response was received.
func (s *Session) LastStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

// Subscriptions returns the number of tracked subscriptions.
func (s *Session) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Reset cancels every in-flight request with ErrCanceled, closes every
// tracked subscription and re-arms the session under the same base URL.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel(ErrCanceled)
	for sub := range s.subs {
		sub.close(false)
	}
	s.metrics.subscriptions.Sub(float64(len(s.subs)))
	s.metrics.resets.Inc()
	s.log.Debug().Int("subscriptions", len(s.subs)).Msg("session reset")

	s.init()
}

func (s *Session) unregister(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	s.metrics.subscriptions.Dec()
}

// URL resolves path against the base URL. Absolute URLs are returned as is.
// Relative paths are appended to the base path, so "player" under
// "http://host/api" becomes "http://host/api/player". Encoded parameters from
// q are appended to any query already present in path.
func (s *Session) URL(path string, q query.Encoder) (string, error) {
	u, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if enc := query.Encode(q); enc != "" {
		if u.RawQuery != "" {
			u.RawQuery += "&" + enc
		} else {
			u.RawQuery = enc
		}
	}
	return u.String(), nil
}

func (s *Session) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}

	u := *s.baseURL
	u.RawQuery = ref.RawQuery
	if rel := strings.TrimLeft(ref.EscapedPath(), "/"); rel != "" || ref.Path != "" {
		raw := strings.TrimRight(s.baseURL.EscapedPath(), "/") + "/" + rel
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("parse path %q: %w", path, err)
		}
		u.Path = unescaped
		u.RawPath = raw
	}
	return &u, nil
}

// Get issues a GET for path with q as its query string and decodes the JSON
// response into out. out may be nil.
func (s *Session) Get(ctx context.Context, path string, q query.Encoder, out any) error {
	target, err := s.URL(path, q)
	if err != nil {
		return &RequestError{Method: http.MethodGet, URL: path, Err: err}
	}
	return s.do(ctx, http.MethodGet, target, nil, out)
}

// Post sends body as JSON to path and decodes the JSON response into out.
// A nil body sends no payload; out may be nil.
func (s *Session) Post(ctx context.Context, path string, body any, out any) error {
	target, err := s.URL(path, nil)
	if err != nil {
		return &RequestError{Method: http.MethodPost, URL: path, Err: err}
	}
	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return &RequestError{Method: http.MethodPost, URL: target, Err: fmt.Errorf("encode body: %w", err)}
		}
	}
	return s.do(ctx, http.MethodPost, target, payload, out)
}

// GetJSON is Get returning the decoded value.
func GetJSON[T any](ctx context.Context, s *Session, path string, q query.Encoder) (T, error) {
	var out T
	err := s.Get(ctx, path, q, &out)
	return out, err
}

// PostJSON is Post returning the decoded value.
func PostJSON[T any](ctx context.Context, s *Session, path string, body any) (T, error) {
	var out T
	err := s.Post(ctx, path, body, &out)
	return out, err
}

func (s *Session) do(ctx context.Context, method, target string, payload []byte, out any) error {
	s.mu.Lock()
	s.lastStatus = 0
	epoch, hc := s.epoch, s.httpClient
	s.mu.Unlock()

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(epoch, func() { cancel(context.Cause(epoch)) })
	defer stop()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return &RequestError{Method: method, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	s.applyHeaders(req.Header)

	s.log.Debug().Str("method", method).Str("url", target).Msg("request")
	resp, err := hc.Do(req)
	if err != nil {
		return s.failed(reqCtx, method, target, 0, err)
	}
	defer resp.Body.Close()

	s.setStatus(epoch, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return s.failed(reqCtx, method, target, resp.StatusCode, err)
	}
	s.metrics.request(method, strconv.Itoa(resp.StatusCode))
	s.log.Debug().Str("method", method).Str("url", target).Int("status", resp.StatusCode).Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: data, Err: ErrUnexpectedStatus}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: data, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (s *Session) failed(reqCtx context.Context, method, target string, status int, err error) error {
	if errors.Is(context.Cause(reqCtx), ErrCanceled) {
		s.metrics.request(method, "canceled")
		s.log.Debug().Str("method", method).Str("url", target).Msg("request canceled by reset")
		return fmt.Errorf("%s %s: %w", method, target, ErrCanceled)
	}
	s.metrics.request(method, "error")
	return &RequestError{Method: method, URL: target, StatusCode: status, Err: err}
}

// setStatus records code unless the session was reset since the call began.
func (s *Session) setStatus(epoch context.Context, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch {
		s.lastStatus = code
	}
}

func (s *Session) applyHeaders(h http.Header) {
	for k, vs := range s.headers {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
}

func (s *Session) dispatch(fn func()) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	fn()
}
