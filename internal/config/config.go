package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource     string
	Port         string
	Env          string
	StoreBackend string

	ExtractorURL     string
	ExtractorTimeout time.Duration

	WorkerCount      int
	QueueBackend     string
	QueueServiceURL  string
	QueueName        string
	QueueMaxAttempts int

	ProofBackend   string
	ProofDir       string
	BlobServiceURL string
	ProofContainer string
}

// Load reads the environment, after merging a .env file when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env file", "error", err)
	}

	cfg := &Config{
		DBSource:        os.Getenv("DB_SOURCE"),
		Port:            getenv("SERVER_PORT", "8080"),
		Env:             getenv("ENVIRONMENT", "development"),
		StoreBackend:    getenv("STORE_BACKEND", "postgres"),
		ExtractorURL:    os.Getenv("EXTRACTOR_URL"),
		QueueBackend:    getenv("QUEUE_BACKEND", "memory"),
		QueueServiceURL: os.Getenv("QUEUE_SERVICE_URL"),
		QueueName:       getenv("QUEUE_NAME", "payment-proofs"),
		ProofBackend:    getenv("PROOF_BACKEND", "local"),
		ProofDir:        getenv("PROOF_DIR", "./storage"),
		BlobServiceURL:  os.Getenv("BLOB_SERVICE_URL"),
		ProofContainer:  getenv("PROOF_CONTAINER", "proofs"),
	}

	var err error
	if cfg.ExtractorTimeout, err = duration("EXTRACTOR_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = positiveInt("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.QueueMaxAttempts, err = positiveInt("QUEUE_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case "postgres":
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", cfg.StoreBackend)
	}

	switch cfg.QueueBackend {
	case "memory":
	case "azure":
		if cfg.QueueServiceURL == "" {
			return nil, fmt.Errorf("QUEUE_SERVICE_URL environment variable is required")
		}
	default:
		return nil, fmt.Errorf("QUEUE_BACKEND must be memory or azure, got %q", cfg.QueueBackend)
	}

	switch cfg.ProofBackend {
	case "local":
	case "azure":
		if cfg.BlobServiceURL == "" {
			return nil, fmt.Errorf("BLOB_SERVICE_URL environment variable is required")
		}
	default:
		return nil, fmt.Errorf("PROOF_BACKEND must be local or azure, got %q", cfg.ProofBackend)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func positiveInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
