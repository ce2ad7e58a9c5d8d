package live_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formrules/pkg/form"
	"github.com/goliatone/go-formrules/pkg/live"
	"github.com/goliatone/go-formrules/pkg/testsupport"
)

const signup = `
id: signup
fields:
  - name: email
    rules: required|email
  - name: password
    rules: required|min:8
  - name: newsletter
    type: boolean
  - name: topics
    conditions: newsletter == true
    rules: required
`

func factory(t *testing.T) live.Factory {
	t.Helper()
	def := testsupport.MustLoad(t, signup)
	return func(_ context.Context, id string) (*form.Form, error) {
		if id != def.ID {
			return nil, fmt.Errorf("%w: %q", live.ErrUnknownForm, id)
		}
		return form.New(def)
	}
}

func dial(t *testing.T, server *httptest.Server, formID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/?form=" + formID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame live.ClientFrame) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// readUntil reads frames until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(live.ServerFrame) bool) live.ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame live.ServerFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		if match(frame) {
			return frame
		}
	}
}

func TestSession_Hello(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(live.NewHandler(factory(t)))
	defer server.Close()

	conn := dial(t, server, "signup")
	hello := readUntil(t, conn, func(f live.ServerFrame) bool { return f.Type == live.FrameHello })

	assert.NotEmpty(t, hello.Session)
	assert.Equal(t, "signup", hello.Form)
	assert.Equal(t, []string{"email", "password", "newsletter", "topics"}, hello.Fields)
}

func TestSession_ChangePushesFieldState(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(live.NewHandler(factory(t)))
	defer server.Close()

	conn := dial(t, server, "signup")
	readUntil(t, conn, func(f live.ServerFrame) bool { return f.Type == live.FrameHello })

	sendFrame(t, conn, live.ClientFrame{Type: live.FrameChange, Field: "password", Value: "short"})
	state := readUntil(t, conn, func(f live.ServerFrame) bool {
		return f.Type == live.FrameState && f.Field == "password" && f.State == form.Invalid.String()
	})
	require.NotEmpty(t, state.Messages)
	assert.Contains(t, state.Messages[0], "8")

	sendFrame(t, conn, live.ClientFrame{Type: live.FrameChange, Field: "password", Value: "long enough"})
	readUntil(t, conn, func(f live.ServerFrame) bool {
		return f.Type == live.FrameState && f.Field == "password" && f.State == form.Valid.String()
	})
}

func TestSession_ConditionTogglesAvailability(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(live.NewHandler(factory(t)))
	defer server.Close()

	conn := dial(t, server, "signup")
	readUntil(t, conn, func(f live.ServerFrame) bool { return f.Type == live.FrameHello })

	sendFrame(t, conn, live.ClientFrame{Type: live.FrameChange, Field: "newsletter", Value: true})
	frame := readUntil(t, conn, func(f live.ServerFrame) bool {
		return f.Type == live.FrameState && f.Field == "topics" && f.Available != nil
	})
	assert.True(t, *frame.Available)
}

func TestSession_ValidateAndInjectErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(live.NewHandler(factory(t)))
	defer server.Close()

	conn := dial(t, server, "signup")
	readUntil(t, conn, func(f live.ServerFrame) bool { return f.Type == live.FrameHello })

	sendFrame(t, conn, live.ClientFrame{Type: live.FrameUpdate, Data: map[string]any{
		"email":    "ada@example.com",
		"password": "correct horse",
	}})
	sendFrame(t, conn, live.ClientFrame{Type: live.FrameValidate})
	result := readUntil(t, conn, func(f live.ServerFrame) bool { return f.Type == live.FrameResult })
	require.NotNil(t, result.Valid)
	assert.True(t, *result.Valid)
	assert.Empty(t, result.Errors)

	sendFrame(t, conn, live.ClientFrame{Type: live.FrameErrors, Errors: map[string]any{
		"email": []any{"The email has already been taken."},
		"form":  "Try again later.",
	}})
	result = readUntil(t, conn, func(f live.ServerFrame) bool { return f.Type == live.FrameResult })
	require.NotNil(t, result.Valid)
	assert.False(t, *result.Valid)
	assert.Equal(t, []string{"The email has already been taken."}, result.Errors["email"])
	assert.Equal(t, []string{"Try again later."}, result.FormErrs)
}

func TestSession_UnknownFrame(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(live.NewHandler(factory(t)))
	defer server.Close()

	conn := dial(t, server, "signup")
	sendFrame(t, conn, live.ClientFrame{Type: "dance"})
	frame := readUntil(t, conn, func(f live.ServerFrame) bool { return f.Type == live.FrameError })
	assert.Contains(t, frame.Error, "dance")
}

func TestHandler_UnknownForm(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(live.NewHandler(factory(t)))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/?form=missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
