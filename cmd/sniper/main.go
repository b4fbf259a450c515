package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/trade_sniper/internal/api"
	"github.com/dgnsrekt/trade_sniper/internal/cdp"
	"github.com/dgnsrekt/trade_sniper/internal/config"
	"github.com/dgnsrekt/trade_sniper/internal/netutil"
	"github.com/dgnsrekt/trade_sniper/internal/notify"
	"github.com/dgnsrekt/trade_sniper/internal/relay"
	"github.com/dgnsrekt/trade_sniper/internal/snapshot"
	"github.com/dgnsrekt/trade_sniper/internal/sniper"
	"github.com/dgnsrekt/trade_sniper/internal/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	autoResume := flag.Bool("auto-resume", false, "resume automatically after the timeout instead of waiting for the operator")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *autoResume {
		cfg.AutoResume = true
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("sniper config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"cooldown_ms", cfg.CooldownMS,
		"scan_interval_ms", cfg.ScanIntervalMS,
		"discovery_interval_ms", cfg.DiscoveryIntervalMS,
		"auto_resume", cfg.AutoResume,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"snapshot_dir", cfg.SnapshotDir,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	snapStore, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		slog.Error("failed to create snapshot store", "dir", cfg.SnapshotDir, "error", err)
		os.Exit(1)
	}
	notifier := notify.New(cfg.NotifyEndpoint, nil)
	journal := storage.NewJSONLWriter(cfg.EventDir, "events", 256, 50)
	defer func() {
		if err := journal.Close(); err != nil {
			slog.Debug("event journal close failed", "error", err)
		}
	}()
	broker := relay.NewBroker()

	manager := cdp.NewManager(cfg.CDPURL(), cfg.ReconnectInterval(), cfg.EvalTimeout())
	svc := sniper.NewService(cfg, manager, snapStore, notifier, journal, broker)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = manager.Connect(connectCtx)
	connectCancel()
	if err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "error", err)
		slog.Error("start the browser with remote debugging enabled, e.g. --remote-debugging-port=9222, then retry")
		os.Exit(1)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			slog.Debug("cdp manager close failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		if errors.Is(err, sniper.ErrNoTargets) {
			slog.Error("no live search tabs found; open your trade live searches in the browser and retry")
		} else {
			slog.Error("failed to start sniper", "error", err)
		}
		manager.Close()
		os.Exit(1)
	}

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, snapStore, broker)}
	go func() {
		slog.Info("sniper control api listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("control api server failed", "error", err)
		}
	}()

	// Any line on stdin resumes all paused targets.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			svc.Resume()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutdown requested", "signal", sig.String())

	cancel()
	svc.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("control api shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
