package mockserver

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beefweb/beefclient/internal/beefweb"
)

// Change is a set of state sections that changed.
type Change uint8

const (
	ChangePlayer Change = 1 << iota
	ChangePlaylists
	ChangePlaylistItems

	ChangeAll = ChangePlayer | ChangePlaylists | ChangePlaylistItems
)

// watch is what one push client asked for, parsed from the same query
// parameters as GET /query.
type watch struct {
	player    bool
	trcolumns []string
	playlists bool
	items     bool
	plref     string
	offset    int
	count     int
	plcolumns []string
}

func parseWatch(q url.Values) (watch, error) {
	w := watch{
		player:    q.Get("player") == "true",
		trcolumns: splitColumns(q.Get("trcolumns")),
		playlists: q.Get("playlists") == "true",
		items:     q.Get("playlistItems") == "true",
		plref:     q.Get("plref"),
		plcolumns: splitColumns(q.Get("plcolumns")),
	}
	if !w.items {
		return w, nil
	}
	if w.plref == "" {
		return w, fmt.Errorf("plref is required with playlistItems: %w", ErrInvalid)
	}
	var err error
	w.offset, w.count, err = parseRange(q.Get("plrange"))
	if err != nil {
		return w, err
	}
	return w, nil
}

// parseRange parses "offset:count".
func parseRange(s string) (offset, count int, err error) {
	first, second, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("range %q: %w", s, ErrInvalid)
	}
	offset, err = strconv.Atoi(first)
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("range %q: %w", s, ErrInvalid)
	}
	count, err = strconv.Atoi(second)
	if err != nil || count < 0 {
		return 0, 0, fmt.Errorf("range %q: %w", s, ErrInvalid)
	}
	return offset, count, nil
}

func splitColumns(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// updates builds the payload for changes. ok is false when nothing the
// client watches has changed.
func (w watch) updates(store *Store, changes Change) (u beefweb.Updates, ok bool) {
	if w.player && changes&ChangePlayer != 0 {
		p := store.Player(w.trcolumns)
		u.Player = &p
		ok = true
	}
	if w.playlists && changes&ChangePlaylists != 0 {
		u.Playlists = store.Playlists()
		ok = true
	}
	if w.items && changes&(ChangePlaylistItems|ChangePlaylists) != 0 {
		if items, err := store.Items(w.plref, w.offset, w.count, w.plcolumns); err == nil {
			u.PlaylistItems = &items
			ok = true
		}
	}
	return u, ok
}

// frame is one encoded event queued for a client.
type frame struct {
	id   uint64
	data []byte
}

// subscriber is one connected push client.
type subscriber struct {
	watch watch
	send  chan frame
}

func (c *subscriber) close() {
	close(c.send)
}

// Broadcaster fans state changes out to push clients. Clients that cannot
// keep up with their send buffer are disconnected.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*subscriber]bool
	store   *Store
	log     zerolog.Logger
	seq     uint64

	throttle   time.Duration
	flushMu    sync.Mutex
	pending    Change
	flushTimer *time.Timer
}

// NewBroadcaster returns a broadcaster over store. A positive throttle
// coalesces changes queued within that window into one event.
func NewBroadcaster(store *Store, throttle time.Duration, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*subscriber]bool),
		store:    store,
		throttle: throttle,
		log:      log,
	}
}

// AddClient registers a client and queues the full state of every section it
// watches as its first event.
func (b *Broadcaster) AddClient(w watch) *subscriber {
	c := &subscriber{watch: w, send: make(chan frame, 64)}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = true
	if u, ok := w.updates(b.store, ChangeAll); ok {
		if data, err := json.Marshal(u); err == nil {
			b.seq++
			c.send <- frame{id: b.seq, data: data}
		}
	}
	return c
}

// RemoveClient unregisters c and closes its send channel. Removing a client
// twice is a no-op.
func (b *Broadcaster) RemoveClient(c *subscriber) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Queue schedules changes for broadcast after the throttle window, or
// immediately when there is none.
func (b *Broadcaster) Queue(changes Change) {
	if changes == 0 {
		return
	}
	if b.throttle <= 0 {
		b.Notify(changes)
		return
	}

	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.pending |= changes
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	changes := b.pending
	b.pending = 0
	b.flushTimer = nil
	b.flushMu.Unlock()

	b.Notify(changes)
}

// Notify sends changes to every client watching them now.
func (b *Broadcaster) Notify(changes Change) {
	if changes == 0 {
		return
	}

	var slow []*subscriber
	b.mu.Lock()
	for c := range b.clients {
		u, ok := c.watch.updates(b.store, changes)
		if !ok {
			continue
		}
		data, err := json.Marshal(u)
		if err != nil {
			b.log.Error().Err(err).Msg("broadcast marshal error")
			continue
		}
		b.seq++
		select {
		case c.send <- frame{id: b.seq, data: data}:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.Unlock()

	for _, c := range slow {
		b.log.Warn().Msg("push client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

// ClientCount returns the number of connected push clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
