package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/browser"

	"tutorbook/internal/backend"
	"tutorbook/internal/config"
	"tutorbook/internal/diagram"
	"tutorbook/internal/history"
	"tutorbook/internal/logger"
	"tutorbook/internal/render"
)

// app holds the pieces every subcommand shares. history is opened lazily
// because render and preview never touch it.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	composer *render.Composer
}

func setup() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	diagram.Init(diagram.Config{
		Engine:   cfg.Diagram.Engine,
		KrokiURL: cfg.Diagram.KrokiURL,
		CLIPath:  cfg.Diagram.CLIPath,
		Timeout:  cfg.Diagram.Timeout,
	}, nil)

	composer := render.New(render.Options{
		CodeStyle:     cfg.Render.CodeStyle,
		DarkCodeStyle: cfg.Render.DarkCodeStyle,
	})
	log.Debug("configuration loaded",
		"backend", cfg.Backend.BaseURL,
		"diagram_engine", cfg.Diagram.Engine,
	)
	return &app{cfg: cfg, log: log, composer: composer}, nil
}

func (a *app) close() {
	a.log.Sync()
}

func (a *app) newBackend() *backend.Client {
	return backend.NewClient(a.cfg.Backend.BaseURL, a.cfg.Backend.Timeout)
}

func (a *app) openHistory() (*history.Store, error) {
	s, err := history.Open(a.cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return s, nil
}

// listenAndServe runs h until ctx is done, optionally opening the browser on
// the chosen address.
func listenAndServe(ctx context.Context, a *app, h http.Handler, addr string, open bool) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s/", ln.Addr().String())

	httpServer := &http.Server{
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	fmt.Printf("tutorbook: open %s\n", url)
	a.log.Info("listening", "addr", ln.Addr().String())
	if open {
		if err := browser.OpenURL(url); err != nil {
			a.log.Warn("could not open browser", "error", err)
		}
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
