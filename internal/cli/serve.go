package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/amplifier/internal/engine"
	"github.com/lazypower/amplifier/internal/logging"
	"github.com/lazypower/amplifier/internal/server"
	"github.com/lazypower/amplifier/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New("serve")

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	eng := engine.New(st, cfg.Engine)
	if cfg.Engine.ScheduleInterval > 0 {
		eng.StartScheduler(cfg.Engine.ScheduleInterval)
		logger.Info("scheduler started", "interval", cfg.Engine.ScheduleInterval)
	}
	defer eng.Stop()

	srv := server.New(st, eng, VersionString(), server.Options{
		RunEvery: cfg.Server.RunEvery,
		RunBurst: cfg.Server.RunBurst,
	})
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		attrs := []any{"addr", addr, "driver", cfg.Database.Driver}
		if db, ok := st.(*store.DB); ok {
			attrs = append(attrs, "db", db.Path)
		}
		logger.Info("amplifier serving", attrs...)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
