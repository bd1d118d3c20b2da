package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	srv := server.New(server.Deps{
		Cfg:       app.cfg,
		EventLog:  app.events,
		Index:     app.idx,
		Searcher:  app.searcher(),
		Syncer:    app.syncer(),
		Analyzer:  app.analyzer(),
		Compactor: app.compactor(),
		Version:   VersionString(),
		Logger:    app.log,
	})

	addr := app.cfg.Server.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "evlog serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  log: %s\n", app.cfg.Memory.EventsPath())
		fmt.Fprintf(os.Stderr, "  index: %s\n", app.cfg.Memory.IndexPath())
		if app.provider != nil {
			fmt.Fprintf(os.Stderr, "  embedder: %s (%s)\n", app.provider.ID(), app.provider.Model())
		}
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
