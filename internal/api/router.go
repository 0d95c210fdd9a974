// Package api exposes the session over local HTTP and a websocket feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/moodtune/moodtune/internal/session"
	"github.com/moodtune/moodtune/internal/workflow"
)

const maxBodyBytes = 64 << 10

// Workflow is the controller surface the routes drive.
type Workflow interface {
	Snapshot() session.State
	Subscribe() (<-chan session.State, func())
	SubmitText(ctx context.Context, text string) error
	ScanFace(ctx context.Context) error
	CancelScan() bool
}

type handlers struct {
	workflow Workflow
	logger   *slog.Logger
}

// NewRouter builds the HTTP surface around wf.
func NewRouter(wf Workflow, logger *slog.Logger) http.Handler {
	h := &handlers{workflow: wf, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.health)
	r.Get("/state", h.state)
	r.Post("/text", h.submitText)
	r.Post("/scan", h.scan)
	r.Delete("/scan", h.cancelScan)
	r.Get("/events", h.events)

	return r
}

// Serve runs handler on listener until ctx is cancelled.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	if logger != nil {
		logger.Info("http api listening", "addr", listener.Addr().String())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http api: %w", err)
		}
		return nil
	}
}

type textRequest struct {
	Text string `json:"text"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.workflow.Snapshot())
}

func (h *handlers) submitText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	if err := h.workflow.SubmitText(r.Context(), req.Text); err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.workflow.Snapshot())
}

func (h *handlers) scan(w http.ResponseWriter, r *http.Request) {
	if err := h.workflow.ScanFace(r.Context()); err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.workflow.Snapshot())
}

func (h *handlers) cancelScan(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.workflow.CancelScan()})
}

func (h *handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.logger == nil {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"http_request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrEmptyText):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, workflow.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
