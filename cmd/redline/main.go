// Entry point for the redline HTTP service — chi router, bearer auth,
// bounded document sessions, optional MCP/QUIC transport.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/redline/dbopen"
	"github.com/hazyhaar/redline/docedit"
	"github.com/hazyhaar/redline/mcpquic"
	"github.com/hazyhaar/redline/obs"
	"github.com/hazyhaar/redline/server"
	"github.com/hazyhaar/redline/wordml"
)

func main() {
	cfg := DefaultConfig()
	if path := env("CONFIG", ""); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Environment overrides.
	if v := env("PORT", ""); v != "" {
		cfg.Listen = ":" + v
	}
	cfg.AuthToken = env("AUTH_TOKEN", cfg.AuthToken)
	cfg.ObsDB = env("OBS_DB", cfg.ObsDB)
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.MCP.Transport = env("MCP_TRANSPORT", cfg.MCP.Transport)
	cfg.MCP.Addr = env("MCP_QUIC_ADDR", cfg.MCP.Addr)
	cfg.MCP.TLSCert = env("TLS_CERT", cfg.MCP.TLSCert)
	cfg.MCP.TLSKey = env("TLS_KEY", cfg.MCP.TLSKey)
	if v := env("MAX_SESSIONS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sessions.Max = n
		}
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Observability DB.
	obsDB, err := dbopen.Open(cfg.ObsDB, dbopen.WithMkdirAll(), dbopen.WithSchema(obs.Schema))
	if err != nil {
		slog.Error("obs db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	recorder := obs.NewRecorder(obsDB)
	defer recorder.Close()
	go obs.RunCleanup(ctx, obsDB,
		time.Duration(cfg.ObsRetentionDays)*24*time.Hour, 6*time.Hour, logger)

	// Editing pipeline.
	maxUncompressed := int64(cfg.Gate.MaxUncompressedMB) * 1024 * 1024
	pipeline := docedit.NewPipeline(docedit.Config{
		MaxSessions:          cfg.Sessions.Max,
		MaxBombRatio:         float64(cfg.Gate.MaxBombRatio),
		MaxUncompressedBytes: maxUncompressed,
		AdmissionWait:        time.Duration(cfg.Sessions.WaitSeconds) * time.Second,
		Logger:               logger,
	}, &wordml.Factory{MaxBytes: maxUncompressed})

	// Optional MCP QUIC.
	if cfg.MCP.Transport == "quic" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "redline",
			Version: "1.0.0",
		}, nil)
		pipeline.RegisterMCP(mcpSrv)

		var tlsCfg *tls.Config
		if cfg.MCP.TLSCert != "" && cfg.MCP.TLSKey != "" {
			tlsCfg, err = mcpquic.ServerTLSConfig(cfg.MCP.TLSCert, cfg.MCP.TLSKey)
		} else {
			tlsCfg, err = mcpquic.SelfSignedTLSConfig()
		}
		if err != nil {
			slog.Error("MCP QUIC TLS", "error", err)
		} else {
			ql, qErr := mcpquic.NewListener(cfg.MCP.Addr, tlsCfg, mcpSrv, logger)
			if qErr != nil {
				slog.Error("MCP QUIC listener", "error", qErr)
			} else {
				defer ql.Close()
				go func() {
					slog.Info("MCP QUIC starting", "addr", cfg.MCP.Addr)
					if sErr := ql.Serve(ctx); sErr != nil && ctx.Err() == nil {
						slog.Error("MCP QUIC", "error", sErr)
					}
				}()
			}
		}
	}

	// HTTP server.
	srv := server.New(server.Config{
		AuthToken:      cfg.AuthToken,
		MaxUploadBytes: int64(cfg.MaxUploadMB) * 1024 * 1024,
		Logger:         logger,
	}, pipeline, recorder)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("redline starting", "addr", cfg.Listen, "max_sessions", cfg.Sessions.Max)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
