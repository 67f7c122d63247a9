package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/gamerelay/internal/auth"
	"github.com/adred-codev/gamerelay/internal/config"
	"github.com/adred-codev/gamerelay/internal/notify"
	"github.com/adred-codev/gamerelay/internal/script"
	"github.com/adred-codev/gamerelay/internal/server"
)

func main() {
	fs := pflag.NewFlagSet("gamerelay", pflag.ExitOnError)
	config.BindFlags(fs)
	fs.Parse(os.Args[1:])

	// Local .env files are a development convenience; absence is normal.
	godotenv.Load()

	configPath, _ := fs.GetString("config")
	cfg, err := config.Load(configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gamerelay: %v\n", err)
		os.Exit(1)
	}

	logger := server.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	cfg.LogConfig(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(registry)

	seq := server.NewSequencer(cfg, logger, metrics)

	authCache := auth.NewCache(cfg.Server.AuthFile, logger)
	if err := authCache.Load(); err != nil {
		logger.Error().Err(err).Msg("Auth cache unavailable")
	}
	seq.SetAuthResolver(authCache)

	if cfg.Server.NATSURL != "" {
		emitter, err := auth.NewNATSEmitter(cfg.Server.NATSURL, logger)
		if err != nil {
			logger.Error().Err(err).Msg("NATS unavailable, logging events locally")
			seq.SetEventEmitter(auth.LogEmitter{Log: logger})
		} else {
			defer emitter.Close()
			seq.SetEventEmitter(emitter)
		}
	} else {
		seq.SetEventEmitter(auth.LogEmitter{Log: logger})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Server.ScriptCommand != "" {
		host := script.NewExecHost(cfg.Server.ScriptCommand, logger)
		seq.SetScriptHost(host)
		go script.RunFrameTimer(ctx, host, time.Second)
	}

	seq.Start()

	listener := server.NewListener(seq, logger)
	if err := listener.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start game channel")
		os.Exit(1)
	}

	var wsListener *server.WSListener
	if cfg.Server.WebSocketPort > 0 {
		wsListener = server.NewWSListener(seq, logger)
		if err := wsListener.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start WebSocket channel")
			os.Exit(1)
		}
	}

	var httpSrv *server.HTTPServer
	if cfg.Server.MetricsAddr != "" {
		httpSrv = server.NewHTTPServer(seq, registry, logger)
		httpSrv.Start()
	}

	if cfg.API.Endpoint != "" {
		notifier := notify.NewNotifier(
			notify.NewHTTPRegistry(cfg, logger),
			seq,
			cfg.API.HeartbeatInterval,
			logger,
		)
		go notifier.Run(ctx)
	}

	statsStop := make(chan struct{})
	go seq.StatsLoop(statsStop)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-listener.Fatal():
		logger.Error().Err(err).Msg("Game channel failed, shutting down")
	}

	cancel()
	close(statsStop)
	listener.Stop()
	if wsListener != nil {
		wsListener.Stop()
	}
	seq.Stop()
	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpSrv.Stop(shutdownCtx)
		shutdownCancel()
	}
	if err := authCache.Save(); err != nil {
		logger.Warn().Err(err).Msg("Auth cache not saved")
	}
	logger.Info().Msg("Goodbye")
}
