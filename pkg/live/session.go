package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/goliatone/go-formrules/pkg/form"
)

// session binds one connection to one form. Only the writer goroutine touches
// the connection for writes.
type session struct {
	id           string
	formID       string
	form         *form.Form
	conn         *websocket.Conn
	logger       *slog.Logger
	writeTimeout time.Duration

	out    chan ServerFrame
	done   chan struct{}
	closer sync.Once
}

func newSession(id, formID string, f *form.Form, conn *websocket.Conn, h *Handler) *session {
	return &session{
		id:           id,
		formID:       formID,
		form:         f,
		conn:         conn,
		logger:       h.logger.With("session", id, "form", formID),
		writeTimeout: h.writeTimeout,
		out:          make(chan ServerFrame, h.sendBuffer),
		done:         make(chan struct{}),
	}
}

func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var unsubscribe []func()
	for _, name := range []string{form.EventValidating, form.EventValidated, form.EventAvailability, form.EventReset, form.EventClear} {
		unsubscribe = append(unsubscribe, s.form.On(name, s.onEvent))
	}
	defer func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx)
	}()

	s.logger.Debug("live: session opened")
	if err := s.form.Mount(ctx); err != nil {
		s.send(errorFrame(err))
	}
	s.send(s.hello())

	s.readLoop(ctx)

	s.close()
	cancel()
	<-writerDone
	_ = s.conn.Close()
	s.logger.Debug("live: session closed")
}

func (s *session) hello() ServerFrame {
	fields := s.form.Fields()
	paths := make([]string, 0, len(fields))
	for _, fl := range fields {
		paths = append(paths, fl.Path())
	}
	return ServerFrame{Type: FrameHello, Session: s.id, Form: s.formID, Fields: paths}
}

func (s *session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("live: read", "err", err)
			}
			return
		}
		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.send(errorFrame(fmt.Errorf("live: decode frame: %w", err)))
			continue
		}
		if err := s.handle(ctx, frame); err != nil {
			s.send(errorFrame(err))
		}
	}
}

func (s *session) handle(ctx context.Context, frame ClientFrame) error {
	switch frame.Type {
	case FrameChange:
		return s.form.SetValue(frame.Field, frame.Value)
	case FrameUpdate:
		s.form.Update(frame.Data)
		return nil
	case FrameValidate:
		valid, err := s.form.Validate(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		s.send(resultFrame(s.form, valid))
		return nil
	case FrameErrors:
		s.form.ClearInjected()
		if len(frame.Errors) > 0 {
			if err := s.form.InjectErrors(frame.Errors); err != nil {
				return err
			}
		}
		s.snapshot()
		s.send(resultFrame(s.form, !s.form.Invalid()))
		return nil
	case FrameReset:
		s.form.Reset()
		return nil
	case FrameClear:
		s.form.Clear()
		return nil
	default:
		return fmt.Errorf("live: unknown frame type %q", frame.Type)
	}
}

// onEvent runs on whichever goroutine emitted the event.
func (s *session) onEvent(ev form.Event) {
	if ev.Field == "" {
		s.snapshot()
		return
	}
	fl, ok := s.form.Field(ev.Field)
	if !ok {
		return
	}
	frame := stateFrame(ev)
	if ev.Name != form.EventValidated {
		available := fl.Available()
		frame.Available = &available
		frame.Messages = fl.Errors()
	}
	s.send(frame)
}

// snapshot pushes the current state of every field.
func (s *session) snapshot() {
	for _, fl := range s.form.Fields() {
		available := fl.Available()
		s.send(ServerFrame{
			Type:      FrameState,
			Field:     fl.Path(),
			State:     fl.State().String(),
			Available: &available,
			Messages:  fl.Errors(),
		})
	}
}

// send queues a frame; frames for a closed session are dropped.
func (s *session) send(frame ServerFrame) {
	select {
	case <-s.done:
	case s.out <- frame:
	}
}

func (s *session) close() {
	s.closer.Do(func() { close(s.done) })
}

func (s *session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case frame := <-s.out:
			if err := s.write(frame); err != nil {
				s.logger.Warn("live: write", "err", err)
				s.close()
				_ = s.conn.Close()
				return
			}
		}
	}
}

// drain flushes queued frames and says goodbye.
func (s *session) drain() {
	for {
		select {
		case frame := <-s.out:
			if err := s.write(frame); err != nil {
				return
			}
		default:
			deadline := time.Now().Add(s.writeTimeout)
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func (s *session) write(frame ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("live: encode frame: %w", err)
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
