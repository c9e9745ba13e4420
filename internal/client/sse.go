package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxEventSize bounds a single event stream line.
const maxEventSize = 1 << 20

func (sub *Subscription) consumeEventStream(ctx context.Context, st *streamState) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if st.lastEventID != "" {
		req.Header.Set("Last-Event-ID", st.lastEventID)
	}
	sub.owner.applyHeaders(req.Header)

	resp, err := sub.owner.pushClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return false, fmt.Errorf("%w: %q", ErrUnexpectedContentType, ct)
	}

	sub.log.Debug().Msg("event stream connected")
	err = readEvents(resp.Body, st, func(event string, data []byte) {
		if event != "" && event != "message" {
			return
		}
		sub.deliver(data)
	})
	return true, err
}

// readEvents parses a text/event-stream body and calls fn for every
// dispatched event. The id and retry fields are recorded in st. It returns
// nil when the stream ends cleanly.
func readEvents(r io.Reader, st *streamState, fn func(event string, data []byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxEventSize)

	var (
		event   string
		data    bytes.Buffer
		hasData bool
	)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if hasData && data.Len() > 0 {
				fn(event, bytes.Clone(data.Bytes()))
			}
			event = ""
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			event = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				st.lastEventID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				st.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	return sc.Err()
}
