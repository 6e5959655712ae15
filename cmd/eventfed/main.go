package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	json "github.com/goccy/go-json"
	"github.com/robfig/cron/v3"

	"eventfed/internal/catalog"
	"eventfed/internal/config"
	"eventfed/internal/ics"
	appLog "eventfed/internal/log"
	"eventfed/internal/metrics"
	"eventfed/internal/transform"
	"eventfed/internal/web"
)

var version = "0.1.0-dev"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.Init(conf.LogLevel, conf.LogPretty)
	appLog.Info("eventfed starting", "version", version)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"base_url", conf.BaseURL,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"block_namespace", conf.BlockNamespace,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	cat := catalog.New(conf, ics.NewFetcher(conf.CacheDir, nil), m)
	factory := transform.NewFactory(transform.Options{
		BlockNamespace: conf.BlockNamespace,
		Metrics:        m,
	})
	srv := web.NewServer(conf, cat, factory, m)

	if err := cat.Refresh(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
		if flags.once {
			os.Exit(1)
		}
	}

	if flags.once {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(srv.Collection()); err != nil {
			appLog.Error("failed to write collection", err)
			os.Exit(1)
		}
		return
	}

	sched, err := startScheduler(ctx, conf, cat)
	if err != nil {
		appLog.Error("failed to start scheduler", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}

	if err := serve(ctx, conf.Listen, srv.Handler()); err != nil {
		appLog.Error("http server failed", err, "listen", conf.Listen)
	}

	// Let a running refresh finish before exiting.
	<-sched.Stop().Done()
	appLog.Info("eventfed exiting")
}

// startScheduler refreshes the catalog on conf.RefreshCron, evaluated in
// conf.Timezone. Overlapping runs are skipped.
func startScheduler(ctx context.Context, conf *config.Config, cat *catalog.Catalog) (*cron.Cron, error) {
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone for scheduler; using UTC", err, "timezone", conf.Timezone)
		loc = time.UTC
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if err := cat.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func serve(ctx context.Context, addr string, h http.Handler) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/eventfed/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Refresh once, print the event collection and exit")

	flag.Parse()

	return cfg
}
