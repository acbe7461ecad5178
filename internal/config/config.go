package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SupportedLanguages is the closed set of dubbing languages.
var SupportedLanguages = map[string]bool{
	"ja": true, "zh": true, "en": true, "de": true, "fr": true,
	"it": true, "es": true, "pt": true, "ru": true, "ko": true,
}

// Config holds every runtime tunable, loaded once at startup.
type Config struct {
	Port string
	Host string

	DataRoot     string
	DatabasePath string

	PublicURL string

	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMCredentialFile string

	SpeechModelAPIKey  string
	SpeechCredentialFile string

	EmailSMTPHost string
	EmailSMTPPort int
	EmailFrom     string

	QueueBrokerURL string

	PINRetentionHours     int
	DeliveryRetentionHours int
	FailedJobRetentionDays int
	TempFileRetentionHours int

	MaxDownloadsPerJob int
	MaxPINAttempts     int

	LLMRPMLimit    int
	LLMBufferFactor float64

	TranslationTemperature float32
	ChunkCharLimit         int
	ChunkSegLimit          int

	PhaseMaxRetries       int
	PhaseBackoffBaseSec   int
	PhaseDefaultTimeoutSec int

	SubmissionsPerHourPerClient int
	DownloadsPerMinutePerClient int

	EncryptionPepper string

	BinUV      string
	BinFFmpeg  string
	BinFFprobe string
	BinYtDLP   string
	BinDemucs  string
	BinWhisperX string
	BinPiperTTS string
}

// Load loads configuration from environment variables and an optional
// .env file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),
		Host: getEnv("HOST", "0.0.0.0"),

		DataRoot:     getEnv("DATA_ROOT", "data"),
		DatabasePath: getEnv("DATABASE_PATH", "data/talkdub.db"),

		PublicURL: getEnv("PUBLIC_URL", "http://localhost:8080"),

		LLMBaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMCredentialFile: getEnv("LLM_CREDENTIALS_FILE", ""),

		SpeechModelAPIKey:    getEnv("SPEECH_MODEL_API_KEY", ""),
		SpeechCredentialFile: getEnv("HF_CREDENTIALS_FILE", ""),

		EmailSMTPHost: getEnv("EMAIL_SMTP_HOST", ""),
		EmailSMTPPort: getEnvAsInt("EMAIL_SMTP_PORT", 587),
		EmailFrom:     getEnv("EMAIL_FROM", "noreply@talkdub.local"),

		QueueBrokerURL: getEnv("QUEUE_BROKER_URL", "redis://localhost:6379/0"),

		PINRetentionHours:      getEnvAsInt("PIN_RETENTION_HOURS", 72),
		DeliveryRetentionHours: getEnvAsInt("DELIVERY_RETENTION_HOURS", 72),
		FailedJobRetentionDays: getEnvAsInt("FAILED_JOB_RETENTION_DAYS", 7),
		TempFileRetentionHours: getEnvAsInt("TEMP_FILE_RETENTION_HOURS", 48),

		MaxDownloadsPerJob: getEnvAsInt("MAX_DOWNLOADS_PER_JOB", 5),
		MaxPINAttempts:     getEnvAsInt("MAX_PIN_ATTEMPTS", 5),

		LLMRPMLimit:     getEnvAsInt("LLM_RPM_LIMIT", 60),
		LLMBufferFactor: getEnvAsFloat("LLM_BUFFER_FACTOR", 0.9),

		TranslationTemperature: float32(getEnvAsFloat("TRANSLATION_TEMPERATURE", 0.3)),
		ChunkCharLimit:         getEnvAsInt("CHUNK_CHAR_LIMIT", 2000),
		ChunkSegLimit:          getEnvAsInt("CHUNK_SEG_LIMIT", 30),

		PhaseMaxRetries:        getEnvAsInt("PHASE_MAX_RETRIES", 3),
		PhaseBackoffBaseSec:    getEnvAsInt("PHASE_BACKOFF_BASE_SEC", 5),
		PhaseDefaultTimeoutSec: getEnvAsInt("PHASE_DEFAULT_TIMEOUT_SEC", 1800),

		SubmissionsPerHourPerClient: getEnvAsInt("SUBMISSIONS_PER_HOUR_PER_CLIENT", 10),
		DownloadsPerMinutePerClient: getEnvAsInt("DOWNLOADS_PER_MINUTE_PER_CLIENT", 10),

		EncryptionPepper: getPersistedPepper(),

		BinUV:       getEnv("TALKDUB_UV_BIN", "uv"),
		BinFFmpeg:   getEnv("TALKDUB_FFMPEG_BIN", "ffmpeg"),
		BinFFprobe:  getEnv("TALKDUB_FFPROBE_BIN", "ffprobe"),
		BinYtDLP:    getEnv("TALKDUB_YTDLP_BIN", "yt-dlp"),
		BinDemucs:   getEnv("TALKDUB_DEMUCS_BIN", "demucs"),
		BinWhisperX: getEnv("TALKDUB_WHISPERX_BIN", "whisperx"),
		BinPiperTTS: getEnv("TALKDUB_PIPER_BIN", "piper"),
	}
}

// PhaseTimeout returns the configured default phase timeout as a duration.
func (c *Config) PhaseTimeout() time.Duration {
	return time.Duration(c.PhaseDefaultTimeoutSec) * time.Second
}

// PhaseBackoffBase returns the configured exponential-backoff base.
func (c *Config) PhaseBackoffBase() time.Duration {
	return time.Duration(c.PhaseBackoffBaseSec) * time.Second
}

// EffectiveLLMLimit is floor(rpm_limit * buffer_factor).
func (c *Config) EffectiveLLMLimit() int {
	return int(float64(c.LLMRPMLimit) * c.LLMBufferFactor)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getPersistedPepper loads (or generates and persists) a secret exposed as
// Config.EncryptionPepper. The PIN store hashes PINs with bcrypt alone and
// does not use it.
func getPersistedPepper() string {
	if pepper := os.Getenv("ENCRYPTION_PEPPER"); pepper != "" {
		return pepper
	}
	pepperFile := getEnv("ENCRYPTION_PEPPER_FILE", "data/encryption_pepper")
	if data, err := os.ReadFile(pepperFile); err == nil && len(data) > 0 {
		return strings.TrimSpace(string(data))
	}
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Printf("Warning: could not generate secure pepper, using fallback: %v", err)
		return "fallback-pepper-please-set-ENCRYPTION_PEPPER-env-var"
	}
	pepper := hex.EncodeToString(bytes)
	_ = os.MkdirAll(filepath.Dir(pepperFile), 0755)
	_ = os.WriteFile(pepperFile, []byte(pepper), 0600)
	log.Println("Generated persistent encryption pepper at", pepperFile)
	return pepper
}
