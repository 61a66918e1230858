package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"statefuld/internal/common/fsutil"
	"statefuld/internal/config"
	"statefuld/internal/httpapi"
	"statefuld/internal/manager"
	"statefuld/internal/registry"
	rt "statefuld/internal/runtime"
	"statefuld/internal/sequence"
)

func main() {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	root := &cobra.Command{
		Use:          "statefuld",
		Short:        "Stateful model inference server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, addr, logLevel)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "statefuld.yaml", "Path to the server config file (yaml/json/toml)")
	root.Flags().StringVar(&addr, "addr", "", "HTTP listen address override, e.g. :8080")
	root.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, addrOverride, logLevel string) error {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()

	path, err := fsutil.ExpandHome(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("loading config")
		return err
	}
	if addrOverride != "" {
		cfg.Addr = addrOverride
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	models, err := registry.Prepare(cfg.Models)
	if err != nil {
		log.Error().Err(err).Msg("preparing model registry")
		return err
	}

	var reaper *sequence.Reaper
	if cfg.SequenceCleanerIntervalMinutes >= 0 {
		interval := time.Duration(cfg.SequenceCleanerIntervalMinutes) * time.Minute
		reaper = sequence.NewReaper(interval, log)
	}

	mgr, err := manager.NewWithConfig(manager.ManagerConfig{
		Registry: models,
		Runtime:  rt.NewStubRuntime(),
		Reaper:   reaper,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	if reaper != nil {
		reaper.Start()
		defer reaper.Stop()
	}

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)
	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr)}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Int("models", len(models)).Msg("statefuld listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// SIGHUP re-reads the config and reloads the models it names.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
loop:
	for {
		select {
		case err := <-errCh:
			log.Error().Err(err).Msg("server error")
			return err
		case <-reload:
			reloadModels(log, path, mgr)
		case <-stop:
			break loop
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	return nil
}

// reloadModels re-reads the config file and reloads every model it names
// that is currently loaded. Models added to or removed from the file are not
// picked up; they need a restart.
func reloadModels(log zerolog.Logger, path string, mgr *manager.Manager) {
	cfg, err := config.Load(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("reload: loading config")
		return
	}
	models, err := registry.Prepare(cfg.Models)
	if err != nil {
		log.Error().Err(err).Msg("reload: preparing model registry")
		return
	}
	for _, mdl := range models {
		if err := mgr.ReloadModel(mdl); err != nil {
			if manager.IsModelNotFound(err) {
				log.Warn().Str("model", mdl.Name).Msg("reload: model not loaded, skipping")
				continue
			}
			log.Error().Err(err).Str("model", mdl.Name).Msg("reload: model kept on previous artifact")
		}
	}
}
