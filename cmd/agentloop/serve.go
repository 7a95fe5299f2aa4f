package main

import (
	"context"
	"errors"
	"io"
	"maps"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentloop"
	"github.com/hupe1980/agentloop/stream"
)

const (
	wsWriteTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// runServe handles "agentloop serve".
func runServe(ctx context.Context, _ io.Writer, stderr io.Writer, configPath string) error {
	a, err := newApp(stderr, configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := &http.Server{
		Addr:              a.cfg.Listen.Addr(),
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server.listen", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("server.shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /v1/runs", a.handleRuns)
	return mux
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleRuns upgrades to a websocket and executes one run per input frame.
// Each run streams event frames followed by one output frame.
func (a *app) handleRuns(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("server.upgrade.failed", "error", err.Error())
		return
	}
	defer func() { _ = conn.Close() }()

	ctx := r.Context()
	ws := stream.NewWebSocket(conn, wsWriteTimeout)

	for {
		var req agentloop.Input
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug("server.read.closed", "error", err.Error())
			}
			return
		}

		if req.Message == "" {
			if err := ws.WriteFrame(ctx, stream.Frame{Type: stream.FrameError, Error: "message is required"}); err != nil {
				return
			}
			continue
		}

		in := a.mergeInput(req)
		in.Emitter = ws

		out := a.loop.Run(ctx, in)
		if err := ws.WriteFrame(ctx, stream.Frame{Type: stream.FrameOutput, Output: out}); err != nil {
			a.logger.Warn("server.write.failed", "error", err.Error())
			return
		}
	}
}

// mergeInput fills unset request fields from the configured defaults.
// Request credentials take precedence over configured ones.
func (a *app) mergeInput(req agentloop.Input) agentloop.Input {
	in := a.baseInput()
	in.Message = req.Message
	in.Images = req.Images
	if req.SystemPrompt != "" {
		in.SystemPrompt = req.SystemPrompt
	}
	if req.Model.Identifier != "" {
		in.Model = req.Model
	}
	if req.Tools != nil {
		in.Tools = req.Tools
	}
	if req.MaxIterations != 0 {
		in.MaxIterations = req.MaxIterations
	}
	if len(req.Credentials) > 0 {
		creds := maps.Clone(in.Credentials)
		if creds == nil {
			creds = map[string]string{}
		}
		maps.Copy(creds, req.Credentials)
		in.Credentials = creds
	}
	return in
}
