package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"crediflex-agent/handler"
	"crediflex-agent/internal/integrations/openai"
	"crediflex-agent/internal/integrations/paramstore"
	"crediflex-agent/internal/metrics"
	"crediflex-agent/internal/store"
	"crediflex-agent/internal/usecase"
)

const localParamPrefix = "/crediflex"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional; real deployments set variables directly.
	_ = godotenv.Load()

	// ---- Configuration (read only here) ----
	port := envInt("PORT", 8000)
	paramPrefix := os.Getenv("PARAM_PREFIX")
	ttlHours := envInt("THREAD_TTL_HOURS", 24)
	maxMessages := envInt("MAX_THREAD_MESSAGES", 20)
	sweepMinutes := envInt("SWEEP_INTERVAL_MINUTES", 10)

	// ---- Thread store ----
	threads := store.New(
		store.WithTTL(time.Duration(ttlHours)*time.Hour),
		store.WithMaxMessages(maxMessages),
	)
	metrics.RegisterThreadGauge(threads.ActiveCount)

	// ---- Parameter source and OpenAI client ----
	var params paramstore.Getter
	var openaiClient *openai.Client
	if paramPrefix != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		params = ssmClient
		openaiClient, err = openai.NewClient(ssmClient, paramPrefix)
		if err != nil {
			slog.Error("failed to create OpenAI client", "err", err)
			os.Exit(1)
		}
	} else {
		paramPrefix = localParamPrefix
		params = paramstore.Static{
			paramPrefix + "/config/openai_model":    envOr("OPENAI_MODEL", "gpt-4o-mini"),
			paramPrefix + "/config/prompt_template": os.Getenv("PROMPT_TEMPLATE_ID"),
		}
		var err error
		openaiClient, err = openai.NewClient(params, paramPrefix, openai.WithStaticAPIKey(mustEnv("OPENAI_API_KEY")))
		if err != nil {
			slog.Error("failed to create OpenAI client", "err", err)
			os.Exit(1)
		}
	}

	// ---- Services ----
	chatService, err := usecase.NewChatService(params, openaiClient, threads, paramPrefix)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(chatService, threads)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	// ---- Background sweep ----
	sweeper := store.NewSweeper(threads, time.Duration(sweepMinutes)*time.Minute)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// The upstream call may legitimately take up to 60s.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "err", err)
			os.Exit(1)
		}
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
