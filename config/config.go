package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds agent configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Redis     RedisConfig
	Recording RecordingConfig
	Browser   BrowserConfig
}

// ServerConfig holds the agent's HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// SessionConfig points at the platform's session service.
type SessionConfig struct {
	BaseURL string
	// Token is the agent's own access token, used when a request carries
	// no caller identity (background poller refetches).
	Token      string
	TimeoutSec int
}

// RedisConfig holds optional Redis settings for cross-instance event
// fan-out. Empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RecordingConfig holds capture and recording settings.
type RecordingConfig struct {
	OutputDir   string // directory for recording files; empty = os.TempDir()
	FFmpegPath  string
	Display     string // display to grab for screen share, e.g. ":0.0"
	SystemAudio string // pulse monitor source for system audio; empty = video only
	CameraDev   string // e.g. /dev/video0
	MicDev      string // e.g. "default"
	FrameRate   int
}

// BrowserConfig holds the embedded whiteboard browser settings. Empty
// WhiteboardURL disables the canvas capture tier.
type BrowserConfig struct {
	Bin           string
	WhiteboardURL string
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "7450"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Session: SessionConfig{
			BaseURL:    getEnv("SESSION_SERVICE_URL", "http://localhost:8080"),
			Token:      getEnv("SESSION_SERVICE_TOKEN", ""),
			TimeoutSec: getEnvInt("SESSION_SERVICE_TIMEOUT_SEC", 15),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Recording: RecordingConfig{
			OutputDir:   getEnv("RECORDING_OUTPUT_DIR", ""),
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			Display:     getEnv("CAPTURE_DISPLAY", ":0.0"),
			SystemAudio: getEnv("CAPTURE_SYSTEM_AUDIO", ""),
			CameraDev:   getEnv("CAPTURE_CAMERA", "/dev/video0"),
			MicDev:      getEnv("CAPTURE_MIC", "default"),
			FrameRate:   getEnvInt("CAPTURE_FRAMERATE", 30),
		},
		Browser: BrowserConfig{
			Bin:           getEnv("BROWSER_BIN", ""),
			WhiteboardURL: getEnv("WHITEBOARD_URL", ""),
		},
	}
	if cfg.Session.BaseURL == "" {
		return nil, fmt.Errorf("SESSION_SERVICE_URL is required")
	}
	cfg.Session.BaseURL = strings.TrimRight(cfg.Session.BaseURL, "/")
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
