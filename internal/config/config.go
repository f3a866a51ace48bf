package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env          string `yaml:"env" env:"ENV" env-default:"local"`
	StoragePath  string `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`
	RedisAddr    string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	EventChannel string `yaml:"event_channel" env-default:"booking-events"`
	HTTPServer   `yaml:"http_server"`
	Engine       `yaml:"engine"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
}

// Engine holds the tuning knobs of the allocation engine. The search bounds
// are explicit so the suggestion walk can never do unbounded work.
type Engine struct {
	MinDuration      time.Duration `yaml:"min_duration" env-default:"30m"`
	ShiftStep        time.Duration `yaml:"shift_step" env-default:"15m"`
	SearchHorizon    time.Duration `yaml:"search_horizon" env-default:"168h"`
	MaxCandidates    int           `yaml:"max_candidates" env-default:"10"`
	OverlapTolerance time.Duration `yaml:"overlap_tolerance" env-default:"5m"`
	TravelBuffer     time.Duration `yaml:"travel_buffer" env-default:"15m"`
	LockTTL          time.Duration `yaml:"lock_ttl" env-default:"10s"`
	MaxTxRetries     int           `yaml:"max_tx_retries" env-default:"3"`
	UsageWindow      time.Duration `yaml:"usage_window" env-default:"720h"`
	ExpirySweep      time.Duration `yaml:"expiry_sweep" env-default:"1m"`
}

func MustLoad() *Config {
	var cfg Config

	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("Config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	return &cfg
}
