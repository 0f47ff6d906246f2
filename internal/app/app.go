package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"chat-gateway/internal/api"
	"chat-gateway/internal/auth"
	"chat-gateway/internal/config"
	"chat-gateway/internal/llm"
	"chat-gateway/internal/ratelimit"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/service"
)

// App holds the process-wide dependencies, constructed once at startup and
// injected downward.
type App struct {
	Config *config.Config
	Redis  *redis.Client
	Server *http.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	repo := repository.NewRedisRepository(rdb)
	provider := llm.NewHuggingFaceProvider(cfg.InferenceURL, cfg.InferenceAPIKey)
	limiter := ratelimit.NewRedisLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow)
	authenticator := auth.NewJWTAuthenticator(cfg.AuthSecret)

	chatService := service.NewChatService(repo, provider, cfg)
	chatHandler := api.NewChatHandler(chatService, authenticator, limiter)
	router := api.NewRouter(chatHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for the streaming endpoint
		IdleTimeout:       120 * time.Second,
	}

	return &App{Config: cfg, Redis: rdb, Server: server}, nil
}

func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger here.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)
	logConfigSource()

	application, err := NewApp(cfg)
	if err != nil {
		slog.Error("Failed to build application", "error", err)
		return 1
	}
	defer func() {
		if err := application.Redis.Close(); err != nil {
			slog.Error("Failed to close redis connection", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Redis.Ping(ctx).Err(); err != nil {
		// Admission control fails open without the store, so startup proceeds.
		slog.Warn("Redis not reachable at startup", "addr", cfg.RedisAddr, "error", err)
	} else {
		slog.Info("Successfully connected to Redis.")
	}

	waitForBackend(cfg.InferenceURL, 5, 3*time.Second)

	slog.Info("Starting server", "port", cfg.AppPort)
	if err := application.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		return 1
	}

	return 0
}

func logConfigSource() {
	if file := viper.ConfigFileUsed(); file != "" {
		slog.Info("Successfully loaded configuration from file.", "file", file)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

// waitForBackend probes the inference backend until it answers or attempts
// run out. Startup proceeds either way: requests fail individually with a
// 502 while the backend is down.
func waitForBackend(backendURL string, attempts int, delay time.Duration) bool {
	slog.Info("Waiting for inference backend to be ready...", "url", backendURL)
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < attempts; i++ {
		resp, err := client.Get(backendURL)
		if resp != nil {
			if bErr := resp.Body.Close(); bErr != nil {
				slog.Warn("Failed to close response body in backend health check", "error", bErr)
			}
		}
		if err == nil {
			slog.Info("Inference backend is ready.")
			return true
		}
		slog.Debug("Inference backend not ready yet, retrying...", "url", backendURL, "error", err)
		time.Sleep(delay)
	}
	slog.Warn("Inference backend not reachable at startup", "url", backendURL)
	return false
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
