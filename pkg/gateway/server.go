package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sameehj/scriptguard/pkg/metrics"
	"github.com/sameehj/scriptguard/pkg/report"
	"github.com/sameehj/scriptguard/pkg/validator"
)

const (
	httpShutdownTimeout = 5 * time.Second
	wsWriteTimeout      = 10 * time.Second
	sessionBuffer       = 16
	defaultMaxBodyBytes = 1 << 20
)

// Server exposes the validator over HTTP and streams reports to websocket
// subscribers.
type Server struct {
	addr        string
	validator   *validator.Validator
	authorizer  Authorizer
	sandbox     string
	dialect     validator.Dialect
	maxSessions int
	maxBody     int64
	logger      *slog.Logger
	started     time.Time
	upgrader    websocket.Upgrader

	done     chan struct{}
	doneOnce sync.Once

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewServer(addr string, v *validator.Validator, authorizer Authorizer) *Server {
	if authorizer == nil {
		authorizer = NoopAuthorizer{}
	}
	if v == nil {
		v = validator.New()
	}
	return &Server{
		addr:       addr,
		validator:  v,
		authorizer: authorizer,
		dialect:    validator.DialectBash,
		maxBody:    defaultMaxBodyBytes,
		started:    time.Now(),
		done:       make(chan struct{}),
		sessions:   make(map[string]*Session),
	}
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetDefaults sets the sandbox root and dialect used when a request omits them.
func (s *Server) SetDefaults(sandbox string, dialect validator.Dialect) {
	s.sandbox = sandbox
	s.dialect = validator.ParseDialect(string(dialect))
}

func (s *Server) SetMaxSessions(max int) {
	s.maxSessions = max
}

func (s *Server) SetMaxBodyBytes(max int64) {
	if max > 0 {
		s.maxBody = max
	}
}

// Handler returns the routed, authorized HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/validate", s.handleValidate)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.Handle("/metrics", promhttp.Handler())
	return s.authorize(mux)
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.authorizer.Allow(r.Context(), r.RemoteAddr); err != nil {
			if errors.Is(err, ErrForbidden) {
				s.logWarn("request_denied", "remote", r.RemoteAddr, "path", r.URL.Path)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			s.logError("authorize_failed", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "authorization unavailable", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.doneOnce.Do(func() { close(s.done) })
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logError("shutdown_failed", "error", err)
		}
	}()

	s.logInfo("gateway_listening", "addr", listener.Addr().String())
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type validateRequest struct {
	Source  string `json:"source"`
	Script  string `json:"script"`
	Sandbox string `json:"sandbox"`
	Dialect string `json:"dialect"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var req validateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sandbox := req.Sandbox
	if sandbox == "" {
		sandbox = s.sandbox
	}
	if sandbox == "" {
		http.Error(w, "sandbox is required", http.StatusBadRequest)
		return
	}
	dialect := s.dialect
	if req.Dialect != "" {
		dialect = validator.ParseDialect(req.Dialect)
	}
	source := req.Source
	if source == "" {
		source = "request"
	}

	start := time.Now()
	result := s.validator.Validate(req.Script, sandbox, dialect)
	metrics.Observe(result, time.Since(start))
	rep := report.New(source, sandbox, dialect, result)

	s.logInfo("script_validated", "id", rep.ID, "source", source, "valid", rep.Valid, "violations", len(rep.Violations))
	w.Header().Set("X-Request-ID", rep.ID)
	writeJSON(w, http.StatusOK, rep)
	s.Publish(rep)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"uptime":   time.Since(s.started).Seconds(),
		"sessions": s.sessionCount(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	session := &Session{
		ID:         uuid.NewString(),
		RemoteAddr: r.RemoteAddr,
		StartedAt:  time.Now(),
		send:       make(chan *report.Report, sessionBuffer),
	}
	// registered before the handshake completes so no report published
	// after the client sees the upgrade is lost
	if !s.tryRegister(session) {
		s.logWarn("session_limit_reached", "remote", r.RemoteAddr, "limit", s.maxSessions)
		http.Error(w, "too many subscribers", http.StatusServiceUnavailable)
		return
	}
	defer s.unregister(session.ID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logWarn("upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	s.logInfo("session_start", "id", session.ID, "remote", session.RemoteAddr)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			s.logInfo("session_end", "id", session.ID, "remote", session.RemoteAddr)
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case rep := <-session.send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(rep); err != nil {
				s.logWarn("session_write_failed", "id", session.ID, "error", err)
				return
			}
		}
	}
}

// Publish pushes a report to every subscriber. Slow subscribers drop
// reports rather than block the caller.
func (s *Server) Publish(rep *report.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		select {
		case session.send <- rep:
		default:
			s.logWarn("session_report_dropped", "id", session.ID, "report", rep.ID)
		}
	}
}

// tryRegister adds the session unless the subscriber cap is already reached.
func (s *Server) tryRegister(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return false
	}
	s.sessions[session.ID] = session
	return true
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) ListSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) String() string {
	return fmt.Sprintf("gateway(%s)", s.Addr())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
