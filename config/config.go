package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	// 离屏文档
	OffscreenURL           string
	OffscreenReasons       []string
	OffscreenJustification string
	DefaultVolume          float64
	AudioBackend           string // memory | speaker

	// 日志
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int

	// 功能开关存储
	FlagsBackend string // file | redis
	FlagsFile    string
	FlagsKey     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// 歌曲目录
	CatalogSource string // file | minio
	CatalogFile   string
	CatalogObject string
	CatalogCache  bool // 在 Redis 中缓存签名后的目录

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	PresignExpiry  time.Duration

	// 弹窗客户端连接的后台地址
	PopupServerURL string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		OffscreenURL:           getEnv("OFFSCREEN_URL", "html/offscreen.html"),
		OffscreenReasons:       getEnvList("OFFSCREEN_REASONS", []string{"AUDIO_PLAYBACK", "BLOBS"}),
		OffscreenJustification: getEnv("OFFSCREEN_JUSTIFICATION", "Playing focus music and managing audio state"),
		DefaultVolume:          getEnvFloat("DEFAULT_VOLUME", 0.9),
		AudioBackend:           getEnv("AUDIO_BACKEND", "memory"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),

		FlagsBackend: getEnv("FLAGS_BACKEND", "file"),
		FlagsFile:    getEnv("FLAGS_FILE", "data/flags.json"),
		FlagsKey:     getEnv("FLAGS_KEY", "focusfm:flags"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CatalogSource: getEnv("CATALOG_SOURCE", "file"),
		CatalogFile:   getEnv("CATALOG_FILE", "data/songs.json"),
		CatalogObject: getEnv("CATALOG_OBJECT", "catalog/songs.json"),
		CatalogCache:  getEnvBool("CATALOG_CACHE", false),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "focusfm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		PresignExpiry:  getEnvDuration("MINIO_PRESIGN_EXPIRY", 12*time.Hour),

		PopupServerURL: getEnv("POPUP_SERVER_URL", "ws://127.0.0.1:8080/ws/popup"),
	}
}
