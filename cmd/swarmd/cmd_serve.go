// Copyright 2026 Swarm Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/swarmlabs/swarm/pkg/hub"
	"github.com/swarmlabs/swarm/pkg/llm"
	"github.com/swarmlabs/swarm/pkg/llm/openrouter"
	"github.com/swarmlabs/swarm/pkg/metrics"
	"github.com/swarmlabs/swarm/pkg/orchestrator"
	"github.com/swarmlabs/swarm/pkg/persona"
	"github.com/swarmlabs/swarm/pkg/server"
	"github.com/swarmlabs/swarm/pkg/session"
	"github.com/swarmlabs/swarm/pkg/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Swarm WebSocket server",
	Long: `Start the Swarm server.

The server will:
- Connect agent personas to the configured OpenRouter model
- Serve the WebSocket event protocol and REST API
- Persist transcripts to SQLite (if configured)

Press Ctrl+C to gracefully shutdown.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildLogger constructs the process logger from the logging config.
func buildLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = cfg.Format
	if cfg.Format == "console" {
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return zapCfg.Build(zap.AddStacktrace(zap.ErrorLevel))
}

func runServe(cmd *cobra.Command, args []string) {
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	client := openrouter.NewClient(openrouter.Config{
		APIKey:      config.LLM.APIKey,
		Model:       config.LLM.Model,
		Endpoint:    config.LLM.Endpoint,
		Referer:     config.LLM.Referer,
		Title:       config.LLM.Title,
		Timeout:     time.Duration(config.LLM.TimeoutSeconds) * time.Second,
		MaxTokens:   config.LLM.MaxTokens,
		Temperature: config.LLM.Temperature,
		RateLimiterConfig: llm.RateLimiterConfig{
			Enabled:           config.LLM.RateLimit.Enabled,
			RequestsPerSecond: config.LLM.RateLimit.RequestsPerSecond,
			BurstCapacity:     config.LLM.RateLimit.BurstCapacity,
			MaxRetries:        config.LLM.RateLimit.MaxRetries,
		},
		Logger: logger,
	})

	personas := persona.NewRegistry()
	h := hub.New(personas, logger)
	m := metrics.New()
	sessions := session.NewRegistry(
		session.WithGracePeriod(time.Duration(config.Session.GracePeriodSeconds)*time.Second),
		session.WithLogger(logger),
	)
	defer sessions.Close()

	orchOpts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	var transcript server.TranscriptStore
	if config.Database.Path != "" {
		store, err := sqlite.Open(config.Database.Path, config.Database.EncryptionKey, logger)
		if err != nil {
			logger.Fatal("failed to open transcript store",
				zap.String("path", config.Database.Path), zap.Error(err))
		}
		defer store.Close() //nolint:errcheck
		transcript = store
		orchOpts = append(orchOpts, orchestrator.WithTranscript(store))
		logger.Info("transcript persistence enabled", zap.String("path", config.Database.Path))
	} else {
		logger.Info("transcript persistence disabled")
	}

	orch := orchestrator.New(sessions, h, client, personas, m, orchOpts...)

	addr := net.JoinHostPort(config.Server.Host, strconv.Itoa(config.Server.Port))
	srv := server.New(server.Config{Addr: addr}, server.Options{
		Hub:          h,
		Sessions:     sessions,
		Orchestrator: orch,
		Personas:     personas,
		Metrics:      m,
		Logger:       logger,
		Transcript:   transcript,
		Models:       client,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("swarm server started",
		zap.String("addr", addr),
		zap.String("model", config.LLM.Model),
		zap.Int("personas", len(personas.List())))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}
