package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/workroomhq/workroom/internal/config"
	"github.com/workroomhq/workroom/internal/hub"
	"github.com/workroomhq/workroom/internal/logger"
	"github.com/workroomhq/workroom/internal/server"
	"github.com/workroomhq/workroom/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "workroomd",
		Short: "workroom session orchestration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			if db, _ := cmd.Flags().GetString("db"); db != "" {
				cfg.Database.Path = db
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.File)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			h := hub.New(hub.Options{
				Store:              st,
				Shell:              cfg.Terminal.Shell,
				CommandTimeout:     cfg.Terminal.CommandTimeout,
				InboundBytesPerSec: cfg.Channel.InboundBytesPerSec,
				Logger:             log,
			})
			srv := server.NewServer(h, st, log)

			httpSrv := &http.Server{
				Addr:    cfg.Server.Addr,
				Handler: srv,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("workroomd listening", "addr", cfg.Server.Addr)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return httpSrv.Close()
			case err := <-errCh:
				return err
			}
		},
	}

	root.Flags().String("addr", "", "listen address (overrides config)")
	root.Flags().String("db", "", "sqlite database path (overrides config)")
	root.Flags().String("config", "workroom.yaml", "config file path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
