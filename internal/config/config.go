package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/ai-pictionary/internal/obslog"
)

// Stats backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// LogConfig holds the LOG_* settings.
type LogConfig struct {
	Level   string
	Format  string
	Console bool
	ToFile  bool
	File    string
}

// Options converts to the obslog settings.
func (l LogConfig) Options() obslog.Options {
	return obslog.Options{Level: l.Level, Format: l.Format, Console: l.Console, ToFile: l.ToFile, File: l.File}
}

type ServerConfig struct {
	ListenAddr string // TCP line protocol
	WSAddr     string // HTTP /ws + /healthz; empty disables
	MaxFrame   int

	StatsBackend string
	DatabaseURL  string
	RedisURL     string
	NATSURL      string

	VisionBaseURL   string
	VisionAPIKey    string
	VisionModel     string
	VisionTimeout   time.Duration
	VisionRetries   int
	VisionRateLimit float64 // requests/sec, 0 = unlimited
	VisionBurst     int
	VisionMaxConns  int // 0 = one per judge worker

	JudgeWorkers int
	JudgeQueue   int
	JudgeTimeout time.Duration // 0 = wait for the collaborator indefinitely

	CatalogFile string

	Log LogConfig
}

type ClientConfig struct {
	ServerURL string // host:port, tcp://host:port or ws://host:port/ws
	Username  string
	MaxFrame  int

	FirstRound time.Duration
	NextRound  time.Duration

	MessagesDir string // overrides for the embedded UI text

	Log LogConfig
}

// LoadDotenv reads .env files if present. Missing files are not an error.
func LoadDotenv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			obslog.L().Warn("dotenv_load_failed")
		}
	}
}

func LoadServer() (*ServerConfig, error) {
	LoadDotenv()
	cfg := &ServerConfig{
		ListenAddr:    ":8888",
		MaxFrame:      8 << 20,
		StatsBackend:  BackendMemory,
		VisionBaseURL: "https://generativelanguage.googleapis.com",
		VisionModel:   "gemini-2.5-flash",
		VisionTimeout: 30 * time.Second,
		VisionRetries: 2,
		VisionBurst:   1,
		JudgeWorkers:  4,
		JudgeQueue:    32,
	}

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	cfg.WSAddr = env("WS_ADDR")
	cfg.MaxFrame = envInt("MAX_FRAME_BYTES", cfg.MaxFrame)

	if v := strings.ToLower(env("STATS_BACKEND")); v != "" {
		cfg.StatsBackend = v
	}
	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.RedisURL = env("REDIS_URL")
	cfg.NATSURL = env("NATS_URL")

	if v := env("VISION_BASE_URL"); v != "" {
		cfg.VisionBaseURL = strings.TrimRight(v, "/")
	}
	cfg.VisionAPIKey = env("VISION_API_KEY")
	if v := env("VISION_MODEL"); v != "" {
		cfg.VisionModel = v
	}
	cfg.VisionTimeout = envDuration("VISION_TIMEOUT", cfg.VisionTimeout)
	cfg.VisionRetries = envInt("VISION_RETRIES", cfg.VisionRetries)
	if v := env("VISION_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.VisionRateLimit = f
		}
	}
	cfg.VisionBurst = envInt("VISION_BURST", cfg.VisionBurst)
	cfg.VisionMaxConns = envInt("VISION_MAX_CONNS", 0)

	cfg.JudgeWorkers = envInt("JUDGE_WORKERS", cfg.JudgeWorkers)
	cfg.JudgeQueue = envInt("JUDGE_QUEUE", cfg.JudgeQueue)
	cfg.JudgeTimeout = envDuration("JUDGE_TIMEOUT", 0)
	if cfg.VisionMaxConns == 0 {
		cfg.VisionMaxConns = cfg.JudgeWorkers
	}

	cfg.CatalogFile = env("CATALOG_FILE")
	cfg.Log = loadLog("pictionary-server.log")

	switch cfg.StatsBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for STATS_BACKEND=redis")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for STATS_BACKEND=postgres")
		}
	default:
		return nil, errors.New("STATS_BACKEND must be memory, redis or postgres")
	}
	if cfg.VisionAPIKey == "" {
		return nil, errors.New("VISION_API_KEY is required")
	}
	return cfg, nil
}

func LoadClient() (*ClientConfig, error) {
	LoadDotenv()
	cfg := &ClientConfig{
		ServerURL:  "localhost:8888",
		MaxFrame:   8 << 20,
		FirstRound: 60 * time.Second,
		NextRound:  15 * time.Second,
	}
	if v := env("SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	cfg.Username = env("PICTIONARY_USER")
	cfg.MaxFrame = envInt("MAX_FRAME_BYTES", cfg.MaxFrame)
	cfg.FirstRound = envDuration("FIRST_ROUND", cfg.FirstRound)
	cfg.NextRound = envDuration("NEXT_ROUND", cfg.NextRound)
	cfg.MessagesDir = env("MESSAGES_DIR")
	cfg.Log = loadLog("pictionary-client.log")
	return cfg, nil
}

func loadLog(defaultFile string) LogConfig {
	l := LogConfig{Level: "info", Format: "legacy", Console: true, File: "logs/" + defaultFile}
	if v := env("LOG_LEVEL"); v != "" {
		l.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		l.Format = v
	}
	l.Console = envBool("LOG_TO_CONSOLE", l.Console)
	l.ToFile = envBool("LOG_TO_FILE", false)
	if v := env("LOG_FILE"); v != "" {
		l.File = v
	}
	return l
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envInt(key string, def int) int {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := env(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(key string, def time.Duration) time.Duration {
	v := env(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
