package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// retryMillis is the reconnect delay advertised to event-stream clients.
	retryMillis = 1000
	// keepAliveInterval is how often an idle event stream gets a comment line.
	keepAliveInterval = 15 * time.Second
	writeWait         = 10 * time.Second
)

// Server serves the beefweb API from a Store.
type Server struct {
	store       *Store
	broadcaster *Broadcaster
	log         zerolog.Logger
	upgrader    websocket.Upgrader
	keepAlive   time.Duration
}

// NewServer returns a server over store. Mutations are announced through
// broadcaster.
func NewServer(store *Store, broadcaster *Broadcaster, log zerolog.Logger) *Server {
	s := &Server{
		store:       store,
		broadcaster: broadcaster,
		log:         log,
		keepAlive:   keepAliveInterval,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}
	return s
}

// Routes returns the HTTP handler for the whole API under /api.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/player", s.handlePlayer)
		r.Post("/player", s.handleUpdatePlayer)
		r.Get("/player/updates", s.handlePlayerUpdates)
		r.Post("/player/{command}", s.handleCommand)
		r.Post("/player/play/{plref}/{index}", s.handlePlayItem)

		r.Get("/playlists", s.handlePlaylists)
		r.Get("/playlists/{plref}/items/{range}", s.handlePlaylistItems)

		r.Get("/browser/roots", s.handleRoots)
		r.Get("/browser/entries", s.handleEntries)

		r.Get("/query", s.handleQuery)
		r.Get("/query/updates", s.handleUpdates)
		r.Get("/ws", s.handleUpdates)

		r.Get("/artwork/{plref}/{index}", s.handleArtwork)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		event := s.log.Debug()
		if status >= 500 {
			event = s.log.Error()
		} else if status >= 400 {
			event = s.log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("bytes", ww.BytesWritten()).
			Msg("http_request")
	})
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	columns := splitColumns(r.URL.Query().Get("columns"))
	writeJSON(w, map[string]any{"player": s.store.Player(columns)})
}

func (s *Server) handleUpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var u PlayerUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	changes, err := s.store.Update(u)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.broadcaster.Queue(changes)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var changes Change
	switch chi.URLParam(r, "command") {
	case "play":
		changes = s.store.Play()
	case "pause":
		changes = s.store.Pause()
	case "stop":
		changes = s.store.Stop()
	case "next":
		changes = s.store.Next()
	case "previous":
		changes = s.store.Previous()
	default:
		writeError(w, http.StatusNotFound, "unknown command")
		return
	}
	s.broadcaster.Queue(changes)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlayItem(w http.ResponseWriter, r *http.Request) {
	plref, err := pathParam(r, "plref")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid playlist reference")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item index")
		return
	}
	changes, err := s.store.PlayItem(plref, index)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.broadcaster.Queue(changes)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"playlists": s.store.Playlists()})
}

func (s *Server) handlePlaylistItems(w http.ResponseWriter, r *http.Request) {
	plref, err := pathParam(r, "plref")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid playlist reference")
		return
	}
	offset, count, err := parseRange(chi.URLParam(r, "range"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	items, err := s.store.Items(plref, offset, count, splitColumns(r.URL.Query().Get("columns")))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]any{"playlistItems": items})
}

func (s *Server) handleRoots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.Roots())
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Entries(r.URL.Query().Get("path"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	wt, err := parseWatch(r.URL.Query())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	u, _ := wt.updates(s.store, ChangeAll)
	writeJSON(w, u)
}

func (s *Server) handleArtwork(w http.ResponseWriter, r *http.Request) {
	plref, err := pathParam(r, "plref")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid playlist reference")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item index")
		return
	}
	t, err := s.store.Track(plref, index)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	fmt.Fprintf(w, `<svg xmlns="http://www.w3.org/2000/svg" width="256" height="256">`+
		`<rect width="256" height="256" fill="#1e1e2e"/>`+
		`<text x="128" y="120" fill="#cdd6f4" text-anchor="middle" font-size="18">%s</text>`+
		`<text x="128" y="150" fill="#a6adc8" text-anchor="middle" font-size="14">%s</text></svg>`,
		html.EscapeString(t.Album), html.EscapeString(t.Artist))
}

// handlePlayerUpdates streams player state only, with columns taken from the
// columns parameter.
func (s *Server) handlePlayerUpdates(w http.ResponseWriter, r *http.Request) {
	wt := watch{player: true, trcolumns: splitColumns(r.URL.Query().Get("columns"))}
	s.serveUpdates(w, r, wt)
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	wt, err := parseWatch(r.URL.Query())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.serveUpdates(w, r, wt)
}

// serveUpdates upgrades websocket handshakes and serves everything else as an
// event stream.
func (s *Server) serveUpdates(w http.ResponseWriter, r *http.Request, wt watch) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r, wt)
		return
	}
	s.serveEventStream(w, r, wt)
}

func (s *Server) serveEventStream(w http.ResponseWriter, r *http.Request, wt watch) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	c := s.broadcaster.AddClient(wt)
	defer s.broadcaster.RemoveClient(c)
	s.log.Info().Str("remote", r.RemoteAddr).Msg("event stream client connected")
	defer s.log.Info().Str("remote", r.RemoteAddr).Msg("event stream client disconnected")

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case f, ok := <-c.send:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", f.id, f.data); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, wt watch) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	s.log.Info().Str("remote", r.RemoteAddr).Msg("websocket client connected")
	c := s.broadcaster.AddClient(wt)
	go writePump(conn, c)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.log.Info().Str("remote", r.RemoteAddr).Msg("websocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writePump(conn *websocket.Conn, c *subscriber) {
	defer conn.Close()
	for f := range c.send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

// checkOrigin accepts same-host and loopback origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func pathParam(r *http.Request, name string) (string, error) {
	return url.PathUnescape(chi.URLParam(r, name))
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	var body apiError
	body.Error.Message = msg
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ListenAndServe serves handler on host:port until ctx is done, then shuts
// the server down gracefully.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler, log zerolog.Logger) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	// Request contexts derive from ctx so open streams end before Shutdown
	// waits on them.
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
