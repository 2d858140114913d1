package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/harun/templog/internal/observability"
	"github.com/harun/templog/internal/tracing"
	"github.com/harun/templog/pkg/session"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// SessionReader reads the session log
type SessionReader interface {
	ReadSessions(ctx context.Context, retainOnlyLast bool) ([]session.Record, error)
}

// SessionCompactor compacts the session log, returning the sessions
// found before compaction
type SessionCompactor interface {
	CompactNow(ctx context.Context) ([]session.Record, error)
}

// Config holds server configuration
type Config struct {
	Host      string
	Port      int
	AuthToken string

	// RateLimit caps /sessions requests per client host per minute.
	// Zero disables limiting.
	RateLimit int

	Sessions SessionReader
	// Compactor handles ?delete requests. When nil, Sessions compacts
	// directly without archiving.
	Compactor SessionCompactor
	Clock     clock.Clock
	Logger    zerolog.Logger
}

// Server serves the session log over HTTP
type Server struct {
	host        string
	port        int
	sessions    SessionReader
	compactor   SessionCompactor
	auth        *TokenAuth
	limiter     *RateLimiter
	clients     *ClientRegistry
	broadcaster *EventBroadcaster
	upgrader    websocket.Upgrader
	logger      zerolog.Logger

	server   *http.Server
	listener net.Listener

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	liveWG         sync.WaitGroup
}

// NewServer creates a new Server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session reader is required")
	}

	observability.EnsureRegistered()

	logger := cfg.Logger.With().Str("component", "gateway").Logger()
	clients := NewClientRegistry()

	return &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		sessions:    cfg.Sessions,
		compactor:   cfg.Compactor,
		auth:        NewTokenAuth(cfg.AuthToken),
		limiter:     NewRateLimiter(cfg.RateLimit, cfg.Clock),
		clients:     clients,
		broadcaster: NewEventBroadcaster(clients, logger),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/sessions", s.instrument("/sessions", http.HandlerFunc(s.handleSessions)))
	mux.Handle("/sessions/live", s.instrument("/sessions/live", http.HandlerFunc(s.handleLive)))
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", ContentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start binds the listening socket and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting HTTP server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop disconnects live clients and shuts the server down
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	if s.isShuttingDown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	s.broadcaster.Broadcast(EventShutdown, map[string]interface{}{
		"message": "Server is shutting down",
	})

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}
	s.liveWG.Wait()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Broadcaster returns the live feed broadcaster
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// ClientCount returns the number of connected live feed clients
func (s *Server) ClientCount() int {
	return s.clients.Count()
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !s.limiter.Allow(clientHost(r)) {
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	compact := wantsCompaction(r)
	if compact && !s.auth.Authorize(r) {
		observability.RecordSecurityAudit(ctx, "sessions.delete", clientHost(r), "denied", map[string]interface{}{
			"path": r.URL.Path,
		})
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var (
		records []session.Record
		err     error
	)
	switch {
	case compact && s.compactor != nil:
		records, err = s.compactor.CompactNow(tracing.WithActor(ctx, "http:"+clientHost(r)))
	default:
		records, err = s.sessions.ReadSessions(ctx, compact)
	}
	if err != nil {
		logger.Error().Err(err).Bool("compact", compact).Msg("Failed to read sessions")
		s.writeError(w, http.StatusInternalServerError, "failed to read sessions")
		return
	}

	if compact && len(records) > 0 {
		s.broadcaster.Broadcast(EventCompact, SessionEvent{StartAt: records[len(records)-1].StartAt})
	}

	contentType := negotiate(r)
	body, err := encode(contentType, records)
	if err != nil {
		logger.Error().Err(err).Str("content_type", contentType).Msg("Failed to encode sessions")
		s.writeError(w, http.StatusInternalServerError, "failed to encode sessions")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	s.liveWG.Add(1)
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.liveWG.Done()
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		clientID = tracing.NewRequestID()
	}
	client := &Client{
		ID:          clientID,
		Conn:        conn,
		ConnectedAt: time.Now(),
		IPAddress:   clientHost(r),
	}
	s.clients.Add(client)

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", client.IPAddress).
		Msg("Live client connected")

	go s.handleClient(client)
}

// handleClient drains the connection until the peer goes away. The live
// feed is one-way; inbound messages are ignored.
func (s *Server) handleClient(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("clientId", client.ID).Msg("Live client disconnected")
		s.liveWG.Done()
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// instrument attaches a request ID to the context and records metrics
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = tracing.NewRequestID()
		}
		ctx := tracing.WithRequestID(r.Context(), requestID)
		ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		observability.RecordHTTPRequest(route, rec.status, time.Since(start))
	})
}

// wantsCompaction reports whether the request asks for the log to be
// compacted: a bare "delete" query, or delete=1 / delete=true.
func wantsCompaction(r *http.Request) bool {
	if r.URL.RawQuery == "delete" {
		return true
	}
	values, ok := r.URL.Query()["delete"]
	if !ok || len(values) == 0 {
		return false
	}
	switch values[0] {
	case "", "1", "true":
		return true
	}
	return false
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
