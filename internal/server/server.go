// Package server exposes form definitions over HTTP: a JSON validation
// endpoint for submitted payloads and a WebSocket endpoint for live
// sessions.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/goliatone/go-formrules/pkg/form"
	"github.com/goliatone/go-formrules/pkg/live"
	"github.com/goliatone/go-formrules/pkg/model"
)

// maxBody caps request payloads.
const maxBody = 1 << 20

// OptionsFunc returns the form options used for def.
type OptionsFunc func(def model.FormModel) []form.Option

// Server serves a fixed set of form definitions.
type Server struct {
	forms   map[string]model.FormModel
	options OptionsFunc
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New builds the routes:
//
//	GET  /forms                 ids of the known forms
//	GET  /forms/{id}            the definition
//	POST /forms/{id}/validate   validate a JSON object of values
//	GET  /live?form={id}        WebSocket session
func New(forms map[string]model.FormModel, options OptionsFunc, logger *slog.Logger, liveOpts ...live.Option) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if options == nil {
		options = func(model.FormModel) []form.Option { return nil }
	}
	s := &Server{forms: forms, options: options, logger: logger, mux: http.NewServeMux()}

	liveOpts = append([]live.Option{live.WithLogger(logger)}, liveOpts...)
	s.mux.HandleFunc("GET /forms", s.list)
	s.mux.HandleFunc("GET /forms/{id}", s.definition)
	s.mux.HandleFunc("POST /forms/{id}/validate", s.validate)
	s.mux.Handle("GET /live", live.NewHandler(s.build, liveOpts...))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) build(_ context.Context, id string) (*form.Form, error) {
	def, ok := s.forms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", live.ErrUnknownForm, id)
	}
	return form.New(def, s.options(def)...)
}

func (s *Server) list(w http.ResponseWriter, _ *http.Request) {
	ids := make([]string, 0, len(s.forms))
	for id := range s.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.writeJSON(w, http.StatusOK, map[string]any{"forms": ids})
}

func (s *Server) definition(w http.ResponseWriter, r *http.Request) {
	def, ok := s.forms[r.PathValue("id")]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown form"})
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

// validationResponse mirrors the shape InjectErrors accepts.
type validationResponse struct {
	Valid      bool                `json:"valid"`
	Errors     map[string][]string `json:"errors,omitempty"`
	FormErrors []string            `json:"form_errors,omitempty"`
	Data       map[string]any      `json:"data,omitempty"`
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, err := s.build(r.Context(), id)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}

	var values map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&values); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	f.Load(values)
	valid, err := f.Validate(r.Context())
	if err != nil {
		s.logger.Warn("validate form", "form", id, "err", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}

	status := http.StatusOK
	resp := validationResponse{Valid: valid}
	if valid {
		resp.Data = f.Filtered()
	} else {
		status = http.StatusUnprocessableEntity
		resp.Errors = f.Errors()
		resp.FormErrors = f.FormErrors()
	}
	s.logger.Debug("validated form", "form", id, "valid", valid)
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response", "err", err)
	}
}
