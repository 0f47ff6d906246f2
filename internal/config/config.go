package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppPort    int    `mapstructure:"APP_PORT"`
	RedisAddr  string `mapstructure:"REDIS_ADDR"`
	AuthSecret string `mapstructure:"AUTH_SECRET"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	// Inference backend (HuggingFace text-generation-inference).
	InferenceURL    string `mapstructure:"INFERENCE_URL"`
	InferenceAPIKey string `mapstructure:"INFERENCE_API_KEY"`
	Model           string `mapstructure:"MODEL"`

	// Generation parameters forwarded verbatim to the backend.
	MaxNewTokens      int     `mapstructure:"MAX_NEW_TOKENS"`
	TypicalP          float64 `mapstructure:"TYPICAL_P"`
	RepetitionPenalty float64 `mapstructure:"REPETITION_PENALTY"`
	Truncate          int     `mapstructure:"TRUNCATE"`

	// Sliding-window admission control, per user.
	RateLimitRequests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("APP_PORT", 8000)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("AUTH_SECRET", "")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("INFERENCE_URL", "https://api-inference.huggingface.co")
	viper.SetDefault("INFERENCE_API_KEY", "")
	viper.SetDefault("MODEL", "OpenAssistant/oasst-sft-4-pythia-12b-epoch-3.5")
	viper.SetDefault("MAX_NEW_TOKENS", 200)
	viper.SetDefault("TYPICAL_P", 0.2)
	viper.SetDefault("REPETITION_PENALTY", 1.0)
	viper.SetDefault("TRUNCATE", 1000)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 15)
	viper.SetDefault("RATE_LIMIT_WINDOW", 24*time.Hour)

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
