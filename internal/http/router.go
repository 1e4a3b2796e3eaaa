package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"transcript-chat-service/internal/app"
	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/metrics"
	"transcript-chat-service/internal/service/media"
	"transcript-chat-service/internal/service/qa"
	"transcript-chat-service/internal/service/session"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{
		sessions: application.Sessions,
		validate: application.Validator.Validate,
		metrics:  application.Metrics,
		upgrader: newUpgrader(application.Cfg.Service.AllowedOrigins),
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe(application.Metrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.deleteSession)
			r.Post("/index", h.ensureIndex)
			r.Post("/query", h.query)
			r.Post("/reset", h.reset)
			r.Get("/stream", h.stream)
		})
	})

	return r
}

type handlers struct {
	sessions *session.Manager
	validate func(any) error
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

type indexRequest struct {
	Path string `json:"path"`
	URL  string `json:"url" validate:"omitempty,url"`
}

type queryRequest struct {
	Question string `json:"question" validate:"max=4000"`
}

type indexResponse struct {
	session.State
	ChunkCount int `json:"chunkCount"`
}

type queryResponse struct {
	QueryID string                  `json:"queryId"`
	Answer  string                  `json:"answer"`
	Sources []models.SourceDocument `json:"sources"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	_, conv := h.sessions.Create()
	writeJSON(w, http.StatusCreated, conv.Snapshot())
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conv.Snapshot())
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) ensureIndex(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req indexRequest
	if !h.decode(w, r, &req) {
		return
	}

	handle, err := conv.EnsureIndexBuilt(r.Context(), media.Ref{Path: req.Path, URL: req.URL})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{State: conv.Snapshot(), ChunkCount: handle.Len()})
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := conv.SubmitQuery(r.Context(), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	for range reply.Deltas {
	}
	writeJSON(w, http.StatusOK, queryResponse{QueryID: reply.QueryID, Answer: reply.Answer, Sources: reply.Sources})
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	conv.Reset()
	writeJSON(w, http.StatusOK, conv.Snapshot())
}

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) (*session.Conversation, bool) {
	conv, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return conv, true
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error(), Kind: session.KindInput.String()})
		return false
	}
	if err := h.validate(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: session.KindInput.String()})
		return false
	}
	return true
}

// observe records request metrics per route pattern and logs each request.
func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			duration := time.Since(start)
			m.RecordRequest("http", r.Method+" "+route, strconv.Itoa(status), duration.Seconds())

			log.Info().
				Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Str("requestId", middleware.GetReqID(r.Context())).
				Dur("duration", duration).
				Msg("HTTP request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	if k := session.KindOf(err); k != 0 {
		resp.Kind = k.String()
	}
	writeJSON(w, StatusCode(err), resp)
}

// StatusCode maps a session error to an HTTP status.
func StatusCode(err error) int {
	var (
		notFound *media.NotFoundError
		limited  *qa.RateLimitError
	)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotReady), errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionReset):
		return http.StatusConflict
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrResource), errors.Is(err, session.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
