// Package devserver is a stand-in lease service implementing the signing
// endpoints. It backs `leasesign dev-server` and the end-to-end tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"leasesign/internal/field"
	"leasesign/internal/gateway"
)

// Received is one accepted submission.
type Received struct {
	RequestID      string
	IdempotencyKey string
	Submission     gateway.Submission
	At             time.Time
}

type failure struct {
	status  int
	message string
}

type entry struct {
	session gateway.Session
	signed  bool
	// idempotency key -> request id of the accepted submission
	accepted map[string]string
}

// Server holds sessions in memory.
type Server struct {
	mu         sync.Mutex
	sessions   map[string]*entry
	documents  map[string]string
	received   map[string][]Received
	failLoad   map[string][]failure
	failSubmit map[string][]failure
	loads      map[string]int
	bearer     string
	latency    time.Duration
	logger     *slog.Logger
	router     chi.Router
	now        func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithBearerToken requires "Authorization: Bearer <token>" on every call.
func WithBearerToken(token string) Option {
	return func(s *Server) { s.bearer = token }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithLatency delays every response, to make loading states visible.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// New returns an empty server.
func New(opts ...Option) *Server {
	s := &Server{
		sessions:   make(map[string]*entry),
		documents:  make(map[string]string),
		received:   make(map[string][]Received),
		failLoad:   make(map[string][]failure),
		failSubmit: make(map[string][]failure),
		loads:      make(map[string]int),
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.authenticate)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/api/sign/{token}", func(api chi.Router) {
		api.Get("/", s.handleLoad)
		api.Post("/", s.handleSubmit)
	})
	r.Get("/documents/{name}", s.handleDocument)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info("dev server listening", "addr", ln.Addr().String())
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// AddSession registers a session under token, replacing any previous one.
func (s *Server) AddSession(token string, sess gateway.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = &entry{session: sess, accepted: make(map[string]string)}
}

// AddDocument serves html at /documents/{name}.
func (s *Server) AddDocument(name, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[name] = html
}

// FailNextLoad makes the next GET for token answer status with message.
// Calls queue up.
func (s *Server) FailNextLoad(token string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLoad[token] = append(s.failLoad[token], failure{status, message})
}

// FailNextSubmit makes the next POST for token answer status with message.
// Calls queue up.
func (s *Server) FailNextSubmit(token string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSubmit[token] = append(s.failSubmit[token], failure{status, message})
}

// Submissions returns the accepted submissions for token.
func (s *Server) Submissions(token string) []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received[token]...)
}

// Loads counts GET requests for token.
func (s *Server) Loads(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[token]
}

// Signed reports whether token has an accepted submission.
func (s *Server) Signed(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[token]
	return ok && e.signed
}

type ctxKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		if s.latency > 0 {
			select {
			case <-time.After(s.latency):
			case <-r.Context().Done():
				return
			}
		}
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.bearer != "" && r.URL.Path != "/health" {
			if r.Header.Get("Authorization") != "Bearer "+s.bearer {
				writeError(w, http.StatusUnauthorized, "Authentication required.")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func popFailure(m map[string][]failure, token string) (failure, bool) {
	q := m[token]
	if len(q) == 0 {
		return failure{}, false
	}
	m[token] = q[1:]
	return q[0], true
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	s.mu.Lock()
	s.loads[token]++
	if f, ok := popFailure(s.failLoad, token); ok {
		s.mu.Unlock()
		writeError(w, f.status, f.message)
		return
	}
	e, ok := s.sessions[token]
	var sess gateway.Session
	signed := false
	if ok {
		sess = e.session
		signed = e.signed
	}
	s.mu.Unlock()

	switch {
	case !ok:
		writeError(w, http.StatusNotFound, "This signing link is invalid or has expired.")
	case signed:
		writeError(w, http.StatusGone, "This lease has already been signed.")
	case sess.ExpiresAt != nil && !s.now().Before(*sess.ExpiresAt):
		writeError(w, http.StatusGone, "This signing link has expired.")
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	doc, ok := s.documents[name]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Document not found.")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	reqID, _ := r.Context().Value(ctxKey{}).(string)

	var sub gateway.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed submission.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := popFailure(s.failSubmit, token); ok {
		writeError(w, f.status, f.message)
		return
	}
	e, ok := s.sessions[token]
	if !ok {
		writeError(w, http.StatusNotFound, "This signing link is invalid or has expired.")
		return
	}
	if e.signed {
		if prev, replay := e.accepted[key]; replay && key != "" {
			writeJSON(w, http.StatusOK, map[string]any{"status": "signed", "requestId": prev, "replayed": true})
			return
		}
		writeError(w, http.StatusConflict, "This lease has already been signed.")
		return
	}
	if msg := validate(e.session, sub); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	e.signed = true
	e.accepted[key] = reqID
	s.received[token] = append(s.received[token], Received{
		RequestID:      reqID,
		IdempotencyKey: key,
		Submission:     sub,
		At:             s.now(),
	})
	s.logger.Info("lease signed", "request_id", reqID, "fields", len(e.session.Fields))
	writeJSON(w, http.StatusOK, map[string]any{"status": "signed", "requestId": reqID})
}

func validate(sess gateway.Session, sub gateway.Submission) string {
	if !sub.Consent {
		return "You must consent to sign electronically."
	}
	if !strings.HasPrefix(sub.SignatureImage, "data:image/") {
		return "A signature image is required."
	}
	if strings.TrimSpace(sub.SignerName) == "" {
		return "Signer name is required."
	}
	have := make(map[string]bool)
	for _, v := range sub.InitialsData {
		if v.Value != "" {
			have[v.ID] = true
		}
	}
	for _, v := range sub.FieldValues {
		if v.Value != "" {
			have[v.ID] = true
		}
	}
	for _, f := range sess.Fields {
		if !f.Required || f.Type == field.TypeSignature {
			continue
		}
		if !have[f.ID] {
			return "Missing value for " + labelOf(f) + "."
		}
	}
	return ""
}

func labelOf(f field.Field) string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
