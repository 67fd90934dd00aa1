// dms-server: driver monitoring service
// Accepts per-frame features from cameras over WebSocket or MQTT and
// raises drowsiness and distraction alerts per stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-dms/internal/config"
	"github.com/teslashibe/go-dms/internal/log"
	"github.com/teslashibe/go-dms/pkg/debug"
	"github.com/teslashibe/go-dms/pkg/journal"
	"github.com/teslashibe/go-dms/pkg/mqttbridge"
	"github.com/teslashibe/go-dms/pkg/session"
	"github.com/teslashibe/go-dms/pkg/web"
	"github.com/teslashibe/go-dms/pkg/webhook"
)

var (
	version = "1.0.0"

	configPath  = flag.String("config", os.Getenv("DMS_CONFIG"), "Path to dms.yaml")
	port        = flag.Int("port", 0, "HTTP server port (overrides config)")
	mqttEnabled = flag.Bool("mqtt", false, "Enable the MQTT bridge")
	journalPath = flag.String("journal", "", "Alert journal path (enables the journal)")
	idleTimeout = flag.Duration("idle", 10*time.Minute, "Close streams idle for longer than this (0 disables)")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging and the request log")
	debugFrames = flag.Bool("debug-frames", false, "Log every per-frame report (very verbose)")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Error("dms-server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.Log.Level
	if *debugFlag || *debugFrames {
		level = "debug"
	}
	log.Init(level)
	debug.Enabled = *debugFlag || *debugFrames
	debug.Frames = *debugFrames

	log.Info("starting dms-server", "version", version, "port", cfg.Server.Port,
		"mqtt", cfg.MQTT.Enabled, "journal", cfg.Journal.Enabled)

	registry, err := session.NewRegistry(session.Config{
		Engine: cfg.Engine.Driverstate(),
		Logger: log.For("session"),
	})
	if err != nil {
		return err
	}

	opts := web.Options{
		Addr:       cfg.Server.Addr(),
		Version:    version,
		Registry:   registry,
		RequestLog: *debugFlag,
		Logger:     log.For("web"),
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		registry.AddSink(j)
		opts.Alerts = j
		log.Info("alert journal open", "path", cfg.Journal.Path)
	}

	server := web.NewServer(opts)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MQTT.Enabled {
		bridge := mqttbridge.New(mqttbridge.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Logger:      log.For("mqtt"),
		}, registry)
		bridge.Attach()
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		defer bridge.Stop()
	}

	if cfg.Webhook.URL != "" {
		notifier := webhook.New(webhook.Config{
			URL:            cfg.Webhook.URL,
			Timeout:        cfg.Webhook.Timeout,
			Retries:        cfg.Webhook.Retries,
			IncludeCleared: cfg.Webhook.IncludeCleared,
			Logger:         log.For("webhook"),
		})
		registry.AddSink(notifier)
		g.Go(func() error {
			notifier.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		return server.Start(ctx)
	})

	if *idleTimeout > 0 {
		g.Go(func() error {
			prune(ctx, registry, *idleTimeout)
			return nil
		})
	}

	err = g.Wait()
	log.Info("dms-server stopped", "stats", registry.Stats())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// applyFlags overrides the loaded config with explicitly set flags
func applyFlags(cfg *config.Config) {
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *mqttEnabled {
		cfg.MQTT.Enabled = true
	}
	if *journalPath != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = *journalPath
	}
}

// prune closes idle streams until ctx is done
func prune(ctx context.Context, registry *session.Registry, idle time.Duration) {
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := registry.Prune(idle); n > 0 {
				log.Info("pruned idle streams", "count", n, "remaining", registry.Len())
			}
		}
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: dms-server [flags]\n\n")
		flag.PrintDefaults()
	}
}
