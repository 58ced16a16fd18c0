package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Vision   VisionConfig
	Speech   SpeechConfig
	Webhook  WebhookConfig
	Pipeline PipelineConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	DashboardURL       string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type StorageConfig struct {
	BaseURL string
	Bucket  string
	APIKey  string
}

type VisionConfig struct {
	APIKey string
	Model  string
}

type SpeechConfig struct {
	APIKey  string
	VoiceID string
}

type WebhookConfig struct {
	URL string
}

// PipelineConfig tunes the capture pipeline: how long a background task may
// run, how closely spaced captures may be, and how often the streaming
// ticker polls.
type PipelineConfig struct {
	TaskTimeout    time.Duration
	CameraCooldown time.Duration
	CameraMaxWait  time.Duration
	PollInterval   time.Duration
	StreamInterval time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			DashboardURL:       getEnv("DASHBOARD_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Storage: StorageConfig{
			BaseURL: getEnv("STORAGE_BASE_URL", ""),
			Bucket:  getEnv("STORAGE_BUCKET", "meal-photos"),
			APIKey:  getEnv("STORAGE_API_KEY", ""),
		},
		Vision: VisionConfig{
			APIKey: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			Model:  getEnv("VISION_MODEL", "gemini-1.5-flash"),
		},
		Speech: SpeechConfig{
			APIKey:  getEnv("ELEVENLABS_API_KEY", ""),
			VoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),
		},
		Webhook: WebhookConfig{
			URL: getEnv("WEBHOOK_URL", ""),
		},
		Pipeline: PipelineConfig{
			TaskTimeout:    getEnvAsDuration("TASK_TIMEOUT_MS", 30_000),
			CameraCooldown: getEnvAsDuration("CAMERA_COOLDOWN_MS", 2_000),
			CameraMaxWait:  getEnvAsDuration("CAMERA_MAX_WAIT_MS", 5_000),
			PollInterval:   getEnvAsDuration("POLL_INTERVAL_MS", 1_500),
			StreamInterval: getEnvAsDuration("STREAM_INTERVAL_MS", 30_000),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallbackMs)) * time.Millisecond
}
