package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/logging"
	"transcript-chat-service/internal/service/session"
)

const writeWait = 10 * time.Second

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients), same-host origins and the configured ones. "*" allows all.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[normalizeOrigin(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		return set[normalizeOrigin(origin)]
	}
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

// Frame types sent to websocket clients.
const (
	FrameDelta = "delta"
	FrameDone  = "done"
	FrameError = "error"
)

// Frame is one server message on the answer stream.
type Frame struct {
	Type    string                  `json:"type"`
	Text    string                  `json:"text,omitempty"`
	QueryID string                  `json:"queryId,omitempty"`
	Answer  string                  `json:"answer,omitempty"`
	Sources []models.SourceDocument `json:"sources,omitempty"`
	Status  int                     `json:"status,omitempty"`
	Kind    string                  `json:"kind,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// stream upgrades to a websocket and answers every {"question": ...} message
// with delta frames followed by a done frame. A rejected question gets an
// error frame and the connection stays open.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	start := time.Now()
	h.metrics.RecordStreamStart("websocket")
	logger := logging.WithSession(conv.ID())
	logger.Info().Msg("Answer stream opened")

	ctx := r.Context()
	var streamErr error
	for {
		var req queryRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				streamErr = err
			}
			break
		}
		if err := h.validate(req); err != nil {
			if streamErr = send(conn, Frame{Type: FrameError, Status: http.StatusBadRequest, Kind: session.KindInput.String(), Error: err.Error()}); streamErr != nil {
				break
			}
			continue
		}
		if streamErr = h.answer(ctx, conn, conv, req.Question); streamErr != nil {
			break
		}
	}

	h.metrics.RecordStreamEnd("websocket", streamErr, time.Since(start).Seconds())
	logger.Info().Err(streamErr).Dur("duration", time.Since(start)).Msg("Answer stream closed")
}

// answer streams one reply. A write failure cancels delivery; the session
// still commits the full answer.
func (h *handlers) answer(ctx context.Context, conn *websocket.Conn, conv *session.Conversation, question string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reply, err := conv.SubmitQuery(ctx, question)
	if err != nil {
		f := Frame{Type: FrameError, Status: StatusCode(err), Error: err.Error()}
		if k := session.KindOf(err); k != 0 {
			f.Kind = k.String()
		}
		return send(conn, f)
	}

	var writeErr error
	for delta := range reply.Deltas {
		if writeErr != nil {
			continue
		}
		if writeErr = send(conn, Frame{Type: FrameDelta, Text: delta}); writeErr != nil {
			cancel()
		}
	}
	if writeErr != nil {
		return writeErr
	}
	return send(conn, Frame{Type: FrameDone, QueryID: reply.QueryID, Answer: reply.Answer, Sources: reply.Sources})
}

func send(conn *websocket.Conn, f Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
