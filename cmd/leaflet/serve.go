package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/leaflet/internal/config"
	"github.com/jackzampolin/leaflet/internal/logging"
	"github.com/jackzampolin/leaflet/internal/metrics"
	"github.com/jackzampolin/leaflet/internal/server"
	"github.com/jackzampolin/leaflet/internal/server/endpoints"
)

var (
	serveHost  string
	servePort  string
	servePages string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Leaflet server",
	Long: `Start the Leaflet HTTP server and flipbook viewer.

Pages are loaded from --pages, then server.pages_dir from the config, then
~/.leaflet/pages. More pages can be uploaded while the server runs.

The server provides:
  - /         - The flipbook and companion sidebar
  - /health   - Basic server health check
  - /ready    - Readiness check (viewer mounted)
  - /metrics  - Prometheus metrics

Examples:
  leaflet serve                        # Start on default port 8080
  leaflet serve --pages ./brochure     # Load a folder of page images
  leaflet serve --host 0.0.0.0         # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		cfgMgr, err := config.NewManager(cfgFile, h.Path())
		if err != nil {
			return err
		}
		cfg := cfgMgr.Get()

		logOpts := cfg.ToLoggingOptions()
		if logOpts.File == "" {
			logOpts.File = h.LogPath()
		}
		logger, closer, err := logging.New(logOpts, os.Stdout)
		if err != nil {
			return err
		}
		defer closer.Close()

		cfgMgr.SetLogger(logger)
		cfgMgr.WatchConfig()

		host, port := cfg.Server.Host, cfg.Server.Port
		if cmd.Flags().Changed("host") || host == "" {
			host = serveHost
		}
		if cmd.Flags().Changed("port") || port == "" {
			port = servePort
		}

		pagesDir := servePages
		if pagesDir == "" {
			pagesDir = cfg.Server.PagesDir
		}
		if pagesDir == "" && h.HasPages() {
			pagesDir = h.PagesPath()
		}

		srv, err := server.New(server.Config{
			Host:            host,
			Port:            port,
			PagesDir:        pagesDir,
			ConfigManager:   cfgMgr,
			Metrics:         metrics.New(true),
			Home:            h,
			SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
	serveCmd.Flags().StringVar(&servePages, "pages", "", "Directory of page images to load")

	rootCmd.AddCommand(serveCmd)
}
