package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dshills/exthost/internal/config"
	"github.com/dshills/exthost/internal/host"
	"github.com/dshills/exthost/internal/httpapi"
	"github.com/dshills/exthost/internal/logging"
	"github.com/dshills/exthost/internal/manifest"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/router"
	"github.com/dshills/exthost/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// closeTimeout bounds the host teardown after a signal.
const closeTimeout = 15 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the host and its extensions",
		Long: `serve loads the configured extension manifests, starts the eager ones,
watches the workspace folders, and serves the HTTP debug and attach endpoint
when an address is configured. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "override http.addr")
	return cmd
}

func loadConfig(root *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}
	if root.logLevel != "" {
		cfg.Log.Level = root.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) (err error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := providers.Shutdown(sctx); serr != nil {
			logger.Warn("telemetry shutdown", zap.Error(serr))
		}
	}()
	metrics := telemetry.NewMetrics()

	manifests, err := manifest.LoadAll(cfg.Extensions.Manifests)
	if err != nil {
		return err
	}

	h, err := newHost(cfg, logger, metrics, providers)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		err = errors.Join(err, h.Close(cctx))
	}()

	rtOpts := manifest.RuntimeOptions{
		Logger:     logger,
		KillDelay:  cfg.Session.KillDelay,
		LuaTimeout: cfg.Session.LuaCallTimeout,
	}
	if err := h.AddManifests(ctx, manifests, rtOpts); err != nil {
		return err
	}
	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("starting extensions: %w", err)
	}
	if len(cfg.Workspace.Folders) > 0 {
		if err := h.Watch(cfg.Workspace.Watch...); err != nil {
			return fmt.Errorf("watching workspace: %w", err)
		}
	}
	logger.Info("host ready",
		zap.String("host", h.ID()),
		zap.Int("extensions", len(manifests)),
		zap.String("version", version),
	)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HTTP.Addr != "" {
		api := httpapi.New(h, httpapi.WithLogger(logger.Named("http")), httpapi.WithMetrics(metrics.Handler()))
		g.Go(func() error { return api.ListenAndServe(gctx, cfg.HTTP.Addr) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err = g.Wait()
	logger.Info("host stopping")
	return err
}

// newHost builds a host configured from cfg.
func newHost(cfg *config.Config, logger *zap.Logger, metrics *telemetry.Metrics, providers *telemetry.Providers) (*host.Host, error) {
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	folders := make([]protocol.WorkspaceFolder, 0, len(cfg.Workspace.Folders))
	for _, dir := range cfg.Workspace.Folders {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		folders = append(folders, protocol.WorkspaceFolder{URI: protocol.FilePathToURI(abs), Name: filepath.Base(abs)})
	}

	return host.New(settings,
		host.WithLogger(logger),
		host.WithMetrics(metrics),
		host.WithClientInfo(protocol.Info{Name: "exthost", Version: version}),
		host.WithTimeouts(cfg.Session.InitializeTimeout, cfg.Session.ShutdownTimeout),
		host.WithLogRate(rate.Limit(cfg.Messages.Rate), cfg.Messages.Burst),
		host.WithStartConcurrency(cfg.Extensions.StartConcurrency),
		host.WithRouterOptions(
			router.WithTimeout(cfg.Router.ProviderTimeout),
			router.WithMaxConcurrency(cfg.Router.MaxConcurrency),
			router.WithTracer(providers.Tracer("github.com/dshills/exthost/internal/router")),
			router.WithObserver(metrics),
		),
		host.WithWorkspaceFolders(folders...),
		host.WithWatchDelay(cfg.Workspace.WatchDelay),
	)
}
