// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"golang.org/x/sync/errgroup"

	"github.com/agentwire/a2a"
)

// Server exposes a TaskManager over HTTP. Every operation is a POST of a
// JSON body to "/" + method; responses wrap the payload in a result or
// error envelope. Streaming operations respond with Server-Sent Events.
// The agent card is served at the well-known path.
type Server struct {
	manager *TaskManager
	logger  *slog.Logger
	httpSrv *http.Server
}

// NewServer creates an HTTP server around the task manager, listening on
// addr once started.
func NewServer(manager *TaskManager, addr string) (*Server, error) {
	if manager == nil {
		return nil, errors.New("manager cannot be nil")
	}

	s := &Server{
		manager: manager,
		logger:  manager.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /"+string(a2a.MethodMessageSend), s.handleSendMessage)
	mux.HandleFunc("POST /"+string(a2a.MethodMessageStream), s.handleSendMessageStream)
	mux.HandleFunc("POST /"+string(a2a.MethodTasksCreate), s.handleCreateTask)
	mux.HandleFunc("POST /"+string(a2a.MethodTasksSend), s.handleSendTaskMessage)
	mux.HandleFunc("POST /"+string(a2a.MethodTasksSendStream), s.handleSendTaskMessageStream)
	mux.HandleFunc("POST /"+string(a2a.MethodTasksGet), s.handleGetTask)
	mux.HandleFunc("POST /"+string(a2a.MethodTasksCancel), s.handleCancelTask)
	mux.HandleFunc("POST /"+string(a2a.MethodTasksList), s.handleListTasks)
	mux.HandleFunc("GET "+a2a.AgentCardWellKnownPath, s.handleAgentCard)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the server's HTTP handler, for mounting into an existing
// mux or an httptest server.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start runs the server until ctx is canceled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", slog.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var params a2a.SendMessageParams
	if !s.decodeParams(w, r, &params) {
		return
	}
	resp, err := s.manager.SendMessage(r.Context(), params.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, a2a.SendMessageResult{Message: resp})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var params a2a.CreateTaskParams
	if !s.decodeParams(w, r, &params) {
		return
	}
	t, err := s.manager.CreateTask(r.Context(), params.ContextID, params.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, t)
}

func (s *Server) handleSendTaskMessage(w http.ResponseWriter, r *http.Request) {
	var params a2a.TaskMessageParams
	if !s.decodeParams(w, r, &params) {
		return
	}
	t, err := s.manager.SendTaskMessage(r.Context(), params.TaskID, params.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, t)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	var params a2a.TaskIDParams
	if !s.decodeParams(w, r, &params) {
		return
	}
	t, err := s.manager.GetTask(r.Context(), params.TaskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, t)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	var params a2a.TaskIDParams
	if !s.decodeParams(w, r, &params) {
		return
	}
	t, err := s.manager.CancelTask(r.Context(), params.TaskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var params a2a.ListTasksParams
	if !s.decodeParams(w, r, &params) {
		return
	}
	tasks, err := s.manager.ListTasks(r.Context(), params.ContextID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*a2a.Task{}
	}
	s.writeResult(w, tasks)
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	baseURL := "http://" + r.Host
	if r.TLS != nil {
		baseURL = "https://" + r.Host
	}
	card, err := s.manager.AgentCard(r.Context(), baseURL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, card); err != nil {
		s.logger.Warn("failed to write agent card", slog.Any("error", err))
	}
}

// decodeParams decodes and validates the request body, writing a
// validation error response on failure.
func (s *Server) decodeParams(w http.ResponseWriter, r *http.Request, params interface {
	Validate() error
}) bool {
	if err := json.UnmarshalRead(r.Body, params); err != nil {
		var verr *a2a.ValidationError
		if !errors.As(err, &verr) {
			err = &a2a.ValidationError{Field: "body", Message: fmt.Sprintf("malformed request: %v", err)}
		}
		s.writeError(w, err)
		return false
	}
	if err := params.Validate(); err != nil {
		s.writeError(w, err)
		return false
	}
	return true
}

func (s *Server) writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, resultEnvelope{Result: result}); err != nil {
		s.logger.Warn("failed to write response", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	obj := a2a.NewErrorObject(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(obj.Kind))
	if werr := json.MarshalWrite(w, errorEnvelope{Error: obj}); werr != nil {
		s.logger.Warn("failed to write error response", slog.Any("error", werr))
	}
}

// statusForKind maps wire error kinds to HTTP status codes.
func statusForKind(kind a2a.ErrorKind) int {
	switch kind {
	case a2a.ErrorKindValidation:
		return http.StatusBadRequest
	case a2a.ErrorKindTaskNotFound:
		return http.StatusNotFound
	case a2a.ErrorKindTaskClosed, a2a.ErrorKindConcurrency:
		return http.StatusConflict
	case a2a.ErrorKindHandlerExecution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type resultEnvelope struct {
	Result any `json:"result"`
}

type errorEnvelope struct {
	Error *a2a.ErrorObject `json:"error"`
}
