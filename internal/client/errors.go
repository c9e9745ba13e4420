package client

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrCanceled is returned by Get and Post when the call was still in
	// flight while the session was reset. Callers should treat it as an
	// expected outcome rather than a failure.
	ErrCanceled = errors.New("canceled by session reset")

	// ErrUnexpectedStatus marks a response outside the 2xx range.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrUnexpectedContentType marks a push response that is not an event stream.
	ErrUnexpectedContentType = errors.New("unexpected content type")

	// ErrMalformedPayload marks a push message whose data is not valid JSON.
	ErrMalformedPayload = errors.New("malformed push payload")
)

// RequestError describes a failed Get or Post: a transport error, a
// timeout, a non-2xx response or an undecodable body.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int // 0 when no response was received
	Body       []byte
	Err        error
}

func (e *RequestError) Error() string {
	if errors.Is(e.Err, ErrUnexpectedStatus) {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, strings.TrimSpace(string(e.Body)))
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Timeout reports whether the request hit the client timeout.
func (e *RequestError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// SubscriptionError is reported to a subscription's error handler when the
// push connection fails or a message cannot be parsed. It never reaches the
// session itself.
type SubscriptionError struct {
	Endpoint string
	Err      error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.Endpoint, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
