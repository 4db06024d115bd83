package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/capturefinery/internal/api"
	"github.com/banshee-data/capturefinery/internal/config"
	"github.com/banshee-data/capturefinery/internal/history"
	"github.com/banshee-data/capturefinery/internal/host"
	"github.com/banshee-data/capturefinery/internal/refinery"
)

// shutdownTimeout bounds how long serve waits for the HTTP server and any
// running sweep to stop.
const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		hf         hostFlags
		listen     string
		source     string
		configPath string
		historyDB  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sweep control and history over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := &config.SweepConfig{}
			if configPath != "" {
				loaded, err := config.LoadSweepConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			hf.applyHost(cmd, cfg)
			if cmd.Flags().Changed("history-db") {
				cfg.HistoryDB = &historyDB
			}
			if !hf.simulate && cfg.GetHostURL() == "" {
				return errors.New("no host: set --host-url, host_url in --config, or use --simulate")
			}

			var store *history.Store
			if path := cfg.GetHistoryDB(); path != "" {
				db, err := history.Open(path)
				if err != nil {
					return err
				}
				defer db.Close()
				store = history.NewStore(db)
			}

			factory := func(hof *refinery.HallOfFame, start int) (host.Host, func(), error) {
				return hf.openHost(cfg, hof, start)
			}
			srv := api.NewServer(source, cfg, factory, store)
			return serve(cmd.Context(), listen, srv)
		},
	}
	hf.bind(cmd)
	fl := cmd.Flags()
	fl.StringVar(&listen, "listen", ":8090", "HTTP listen address")
	fl.StringVar(&source, "source", "", "Source definition path (required)")
	fl.StringVarP(&configPath, "config", "c", "", "Sweep config file (.json, .yaml or .yml)")
	fl.StringVar(&historyDB, "history-db", "", "Record sweeps in this sqlite database")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func serve(parent context.Context, listen string, srv *api.Server) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              listen,
		Handler:           api.LoggingMiddleware(srv.ServeMux()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Printf("Graceful shutdown complete")
	return nil
}
