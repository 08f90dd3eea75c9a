// Command indiserver runs an INDI hub.
//
// It listens for INDI clients and drivers on TCP, serves in-process devices
// declared in YAML profiles, and optionally exposes an HTTP API, a WebSocket
// bridge and an mDNS advertisement.
//
// Usage:
//
//	indiserver [flags]
//
// Flags:
//
//	-config string            YAML configuration file
//	-port int                 TCP listen port (default 7624)
//	-max-clients int          Maximum concurrent connections (default 10)
//	-max-message-size int     Maximum size of one XML element in bytes
//	-profiles string          Directory of device profile YAML files
//	-busy-only-expiry         Only expire vectors in Busy state
//	-new-rate float           Maximum new* requests per second per client
//	-handshake-timeout dur    Close clients that stay silent this long
//	-log-level string         Log level: debug, info, warn, error (default "info")
//	-protocol-log string      Write a CBOR protocol capture to this file
//	-mdns                     Advertise the server over mDNS
//	-instance string          mDNS instance name
//	-http string              HTTP API address, e.g. ":8080"
//	-simulate                 Register a simulated telescope
//
// Examples:
//
//	# Serve the devices in ./profiles and advertise on the LAN
//	indiserver -profiles ./profiles -mdns
//
//	# Simulated telescope with the HTTP API and a protocol capture
//	indiserver -simulate -http :8080 -protocol-log session.cbor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/indi-protocol/indi-go/pkg/discovery"
	"github.com/indi-protocol/indi-go/pkg/log"
	"github.com/indi-protocol/indi-go/pkg/profile"
	"github.com/indi-protocol/indi-go/pkg/service"
	"github.com/indi-protocol/indi-go/pkg/transport"
	"github.com/indi-protocol/indi-go/pkg/version"
	"github.com/indi-protocol/indi-go/pkg/webapi"
)

func main() {
	config, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "indiserver: %v\n", err)
		os.Exit(2)
	}

	logger := setupLogging(config.LogLevel)
	if err := run(config, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
}

func run(config Config, logger *slog.Logger) error {
	logger.Info("INDI server", "version", version.Current, "port", config.Port)

	var protocolLog log.Logger
	if config.ProtocolLog != "" {
		fl, err := log.NewFileLogger(config.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer func() {
			if err := fl.Close(); err != nil {
				logger.Warn("closing protocol log", "error", err)
			}
			logger.Info("protocol log closed", "path", config.ProtocolLog, "events", fl.Events())
		}()
		protocolLog = fl
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hubConfig := service.DefaultHubConfig()
	hubConfig.BusyOnlyExpiry = config.BusyOnlyExpiry
	hubConfig.NewRate = config.NewRate
	hubConfig.HandshakeTimeout = config.Handshake
	hubConfig.Registerer = reg
	hubConfig.Logger = logger
	hubConfig.ProtocolLogger = protocolLog

	hub, err := service.NewHub(hubConfig)
	if err != nil {
		return fmt.Errorf("create hub: %w", err)
	}

	if config.Profiles != "" {
		if err := registerProfiles(hub, config.Profiles, logger); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}
	defer hub.Stop()

	if config.Simulate {
		sim, err := newTelescopeSimulator(hub)
		if err != nil {
			return err
		}
		go sim.run(ctx, logger)
	}

	serverConfig := transport.DefaultServerConfig()
	serverConfig.Address = fmt.Sprintf(":%d", config.Port)
	serverConfig.MaxClients = config.MaxClients
	serverConfig.MaxMessageSize = config.MaxMessageSize
	serverConfig.Logger = protocolLog
	server, err := transport.NewServer(hub.Bind(serverConfig))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("listening", "addr", server.Addr().String())

	var httpServer *http.Server
	if config.HTTP != "" {
		apiConfig := webapi.DefaultConfig(hub)
		apiConfig.Gatherer = reg
		apiConfig.MaxMessageSize = config.MaxMessageSize
		apiConfig.Logger = logger
		apiConfig.ProtocolLogger = protocolLog
		api, err := webapi.NewServer(apiConfig)
		if err != nil {
			return fmt.Errorf("create http api: %w", err)
		}
		httpServer = &http.Server{
			Addr:              config.HTTP,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("http api listening", "addr", config.HTTP)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http api failed", "error", err)
			}
		}()
	}

	if config.MDNS {
		adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		if err != nil {
			logger.Warn("mdns unavailable", "error", err)
		} else {
			instance := config.Instance
			if instance == "" {
				instance = discovery.DefaultInstanceName()
			}
			announcer := &discovery.Announcer{
				Advertiser: adv,
				Info: discovery.ServerInfo{
					Instance: instance,
					Port:     uint16(config.Port),
					Version:  version.Current,
				},
				Devices: func() int { return len(hub.Registry().Devices()) },
				Logger:  logger,
			}
			go func() {
				if err := announcer.Run(ctx); err != nil {
					logger.Warn("mdns advertisement stopped", "error", err)
				}
			}()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig.String())
	logger.Info("shutting down")

	cancel()
	if httpServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		done()
	}
	if err := server.Stop(); err != nil {
		logger.Warn("stopping server", "error", err)
	}
	return nil
}

func registerProfiles(hub *service.Hub, dir string, logger *slog.Logger) error {
	p, err := profile.LoadDirectory(dir)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	drivers, err := p.Drivers()
	if err != nil {
		return fmt.Errorf("build drivers: %w", err)
	}
	for _, d := range drivers {
		if err := hub.RegisterDriver(d); err != nil {
			return fmt.Errorf("register %s: %w", d.Name(), err)
		}
		logger.Info("device registered", "device", d.Name(), "properties", len(d.Properties()))
	}
	return nil
}
