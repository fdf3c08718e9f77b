package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/assembly"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/auth"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/drafts"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server", "web"},
	Short:   "Start the HTTP API server and upload page",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		if f.Changed("port") {
			cfg.Server.Port, _ = f.GetInt("port")
		}
		if f.Changed("base-path") {
			cfg.Server.BasePath, _ = f.GetString("base-path")
		}
		ctx := cmd.Context()

		store, err := drafts.Open(ctx, cfg.Drafts.Options())
		if err != nil {
			return fmt.Errorf("failed to open draft store: %w", err)
		}
		defer store.Close()

		janitor, err := drafts.NewJanitor(store, cfg.Drafts.TTL(), cfg.Drafts.PurgeSchedule, log)
		if err != nil {
			return err
		}
		janitor.Start()
		defer janitor.Stop()

		resolver := auth.NewResolver(cfg.Auth.APIKeys)
		if resolver.Open() {
			log.Warn("no API keys configured; running in open single-user mode")
		}

		srv := server.New(server.Options{
			Version:        version,
			BasePath:       cfg.Server.BasePath,
			RequestTimeout: cfg.Server.RequestTimeout(),
			MaxUploadBytes: cfg.Server.MaxUploadBytes(),
			CORSOrigins:    cfg.Server.CORSOrigins,
			Numbering:      defaultNumbering(),
		}, assembly.New(log, cfg.Assembly.Workers), store, resolver, log)

		log.Info("starting bondgen",
			zap.String("version", version),
			zap.String("drafts", cfg.Drafts.Backend),
			zap.Int("workers", cfg.Assembly.Workers))
		return srv.ListenAndServe(ctx, cfg.Server.Addr())
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "listen port (default from config)")
	serveCmd.Flags().String("base-path", "", "serve under a URL prefix (e.g. /bonds)")
}
