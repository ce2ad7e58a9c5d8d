package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/goliatone/go-formrules/pkg/form"
)

// ErrUnknownForm is returned by a Factory for ids it does not know.
var ErrUnknownForm = errors.New("live: unknown form")

// Factory builds a fresh form for a session.
type Factory func(ctx context.Context, formID string) (*form.Form, error)

// Handler upgrades requests to WebSocket sessions. The form id is read from
// the "form" query parameter.
type Handler struct {
	factory      Factory
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	sendBuffer   int
	writeTimeout time.Duration
	newID        func() string
}

// Option customises a Handler.
type Option func(*Handler)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithOriginCheck replaces the upgrader origin check.
func WithOriginCheck(fn func(r *http.Request) bool) Option {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// WithAllowAnyOrigin accepts cross-origin connections.
func WithAllowAnyOrigin() Option {
	return WithOriginCheck(func(*http.Request) bool { return true })
}

// WithSendBuffer sets how many outgoing frames may queue per session.
func WithSendBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(factory Factory, opts ...Option) *Handler {
	h := &Handler{
		factory: factory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		sendBuffer:   64,
		writeTimeout: 10 * time.Second,
		newID:        func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	formID := r.URL.Query().Get("form")
	f, err := h.factory(r.Context(), formID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownForm) {
			status = http.StatusNotFound
		}
		h.logger.Warn("live: build form", "form", formID, "err", err)
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live: upgrade", "form", formID, "err", err)
		return
	}

	s := newSession(h.newID(), formID, f, conn, h)
	s.run(r.Context())
}
