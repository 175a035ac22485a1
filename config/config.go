package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Most values have simple defaults suitable for local development.
type Config struct {
	ServerAddr string

	// MySQL配置（会话记录归档）
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置（元数据持久化 + 旧版存储层）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	// 实时会话状态缓存使用独立的DB编号
	LiveRedisDB int

	// MinIO配置（音频二进制存储）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// 存储配额：容量上限与告警阈值（百分比）
	QuotaTotalBytes      int64
	QuotaWarnPercent     float64
	QuotaDangerPercent   float64
	QuotaCriticalPercent float64

	// 操作队列防抖窗口（毫秒）
	DebounceWindowMS int

	// 临时播放引用（预签名URL）的有效期，秒
	LeaseTTLSeconds int

	// 配置文件导入监听目录，空字符串表示关闭
	ImportWatchDir string

	// 日志配置
	LogLevel string
	LogPath  string
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

// getEnvInt64 gets an environment variable as int64 or returns a default value.
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "magicdj"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),
		LiveRedisDB:   getEnvInt("LIVE_REDIS_DB", 1),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "magicdj-audio"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		// 默认2GB，与浏览器侧的持久化存储预算保持一致
		QuotaTotalBytes:      getEnvInt64("QUOTA_TOTAL_BYTES", 2*1024*1024*1024),
		QuotaWarnPercent:     getEnvFloat("QUOTA_WARN_PERCENT", 70),
		QuotaDangerPercent:   getEnvFloat("QUOTA_DANGER_PERCENT", 85),
		QuotaCriticalPercent: getEnvFloat("QUOTA_CRITICAL_PERCENT", 95),

		DebounceWindowMS: getEnvInt("DEBOUNCE_WINDOW_MS", 100),
		LeaseTTLSeconds:  getEnvInt("LEASE_TTL_SECONDS", 86400),

		ImportWatchDir: getEnv("IMPORT_WATCH_DIR", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
