package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/dahamkakooza/agrogram-gateway/internal/alert"
	"github.com/dahamkakooza/agrogram-gateway/internal/command"
	"github.com/dahamkakooza/agrogram-gateway/internal/config"
	"github.com/dahamkakooza/agrogram-gateway/internal/data"
	"github.com/dahamkakooza/agrogram-gateway/internal/gateway"
	"github.com/dahamkakooza/agrogram-gateway/internal/menu"
	"github.com/dahamkakooza/agrogram-gateway/internal/outbox"
	"github.com/dahamkakooza/agrogram-gateway/internal/session"
	"github.com/dahamkakooza/agrogram-gateway/internal/transport"
	"github.com/dahamkakooza/agrogram-gateway/internal/ussd"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("agrogw v%s\n", version)
	case "init":
		path := config.Path()
		if err := config.CreateFromExample(path); err != nil {
			fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", path)
	case "serve":
		if err := serve(); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Agrogram feature-phone gateway")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  agrogw serve     Start the gateway server")
	fmt.Println("  agrogw init      Write the example config to AGROGW_HOME")
	fmt.Println("  agrogw version   Show version info")
}

func serve() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	home := config.ResolveHome()
	slog.Info("agrogram gateway starting", "version", version, "home", home)

	for _, dir := range []string{config.DataDir(), config.LogsDir()} {
		os.MkdirAll(dir, 0755)
	}

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", cfgPath, "error", err)
		cfg = config.DefaultConfig()
	}
	config.Set(cfg)

	tree := menu.Default()
	if cfg.USSD.MenuPath != "" {
		tree, err = menu.LoadFile(cfg.USSD.MenuPath)
		if err != nil {
			return fmt.Errorf("load menu: %w", err)
		}
		slog.Info("menu loaded", "path", cfg.USSD.MenuPath)
	}

	sessions := session.NewStore(cfg.USSD.SessionTTL.Std())

	ob := outbox.NewStore(config.OutboxPath())
	if err := ob.Load(); err != nil {
		slog.Warn("failed to load outbox spool", "error", err)
	}

	subs := alert.NewStore(config.SubscriptionsPath())
	if err := subs.Load(); err != nil {
		slog.Warn("failed to load subscriptions", "error", err)
	}

	gw := data.NewClient(cfg.Data)
	handler := ussd.NewHandler(tree, sessions, gw, cfg.Data.Timeout.Std())

	registry := command.NewRegistry(gw)
	command.RegisterBuiltins(registry, gw, subs)

	carrier := transport.New(cfg.Transport, cfg.SMS.SenderID)
	dispatcher := outbox.NewDispatcher(ob, carrier, cfg.Outbox)

	alerts := alert.NewScheduler(subs, gw, ob)
	if cfg.Alerts.Enabled {
		if err := alerts.Start(cfg.Alerts.Schedule); err != nil {
			return err
		}
	}
	defer alerts.Stop()

	config.RegisterOnReload(func(next *config.Config) {
		if err := alerts.Reschedule(next.Alerts.Enabled, next.Alerts.Schedule); err != nil {
			slog.Warn("alert reschedule failed", "error", err)
		}
	})

	// Session sweep runs on its own schedule, independent of request latency.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(fmt.Sprintf("@every %s", cfg.USSD.SweepInterval.Std()), func() {
		sessions.Sweep()
	}); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	go config.Watch(ctx)

	srv := gateway.NewServer(cfg, handler, registry, sessions, ob, subs)
	dispatcher.OnEvent = func(kind string, m outbox.Message) {
		srv.Events.Publish("outbox."+kind, m)
	}

	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	err = srv.Start(ctx)
	cancel()

	// The dispatcher drains in-flight deliveries and flushes the spool
	// before we exit.
	<-dispatcherDone
	return err
}
