package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formrules/pkg/live"
	"github.com/goliatone/go-formrules/pkg/model"
)

const contactDoc = `
id: contact
fields:
  - name: email
    rules: required|email
  - name: message
    rules: required|min:10
  - name: internal_ref
    submit: false
`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	def, err := model.Load([]byte(contactDoc))
	require.NoError(t, err)
	srv := httptest.NewServer(New(map[string]model.FormModel{def.ID: def}, nil, nil))
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestServer_ListAndDefinition(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/forms")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"forms": []any{"contact"}}, decode(t, resp))

	resp, err = http.Get(srv.URL + "/forms/contact")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "contact", body["id"])

	resp, err = http.Get(srv.URL + "/forms/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Validate(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	resp, err := http.Post(srv.URL+"/forms/contact/validate", "application/json",
		strings.NewReader(`{"email":"nope","message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, false, body["valid"])
	errs, ok := body["errors"].(map[string]any)
	require.True(t, ok, "errors: %#v", body["errors"])
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "message")

	resp, err = http.Post(srv.URL+"/forms/contact/validate", "application/json",
		strings.NewReader(`{"email":"ada@example.com","message":"hello there, world","internal_ref":"x1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, map[string]any{"email": "ada@example.com", "message": "hello there, world"}, body["data"])

	resp, err = http.Post(srv.URL+"/forms/contact/validate", "application/json", strings.NewReader(`[`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Live(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live?form=contact"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello live.ServerFrame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, live.FrameHello, hello.Type)
	assert.Equal(t, "contact", hello.Form)
}
