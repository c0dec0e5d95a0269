package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/ambient-history-cache/internal/weather"
)

// Cache backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type AppConfig struct {
	AmbientAPIKey         string
	AmbientApplicationKey string
	AmbientBaseURL        string
	DeviceMAC             string
	UseMockData           bool

	DataDir      string
	CacheBackend string
	CacheFile    string
	SQLitePath   string
	SettingsFile string

	Fetcher      weather.FetcherConfig
	RefreshToday bool

	// PatternLocation is the zone pattern times are interpreted in.
	PatternLocation *time.Location
	PatternTimes    []weather.PatternTime

	// WarmInterval of 0 disables the background cache warmer.
	WarmInterval time.Duration
	WarmWindow   time.Duration

	HTTPTimeout time.Duration
	Port        string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	cfg := &AppConfig{}

	cfg.AmbientAPIKey = os.Getenv("AMBIENT_API_KEY")
	cfg.AmbientApplicationKey = os.Getenv("AMBIENT_APPLICATION_KEY")
	cfg.AmbientBaseURL = os.Getenv("AMBIENT_BASE_URL")
	cfg.DeviceMAC = os.Getenv("DEVICE_MAC_ADDRESS")
	cfg.UseMockData = getenvBool("USE_MOCK_DATA", false)

	cfg.DataDir = getenvDefault("DATA_DIR", "./data")
	cfg.CacheBackend = strings.ToLower(getenvDefault("CACHE_BACKEND", BackendJSON))
	switch cfg.CacheBackend {
	case BackendJSON, BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q", cfg.CacheBackend)
	}
	cacheName := "temperature_cache"
	if cfg.UseMockData {
		cacheName = "mock_temperature_cache"
	}
	cfg.CacheFile = getenvDefault("CACHE_FILE", filepath.Join(cfg.DataDir, cacheName+".json"))
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", filepath.Join(cfg.DataDir, cacheName+".db"))
	cfg.SettingsFile = getenvDefault("SETTINGS_FILE", filepath.Join(cfg.DataDir, "settings.json"))

	var err error
	if cfg.Fetcher.ChunkSize, err = getenvDuration("CHUNK_SIZE", weather.DefaultChunkSize); err != nil {
		return nil, err
	}
	cfg.Fetcher.Limit = getenvInt("CHUNK_LIMIT", weather.DefaultChunkLimit)
	if cfg.Fetcher.Delay, err = getenvDuration("CHUNK_DELAY", weather.DefaultChunkDelay); err != nil {
		return nil, err
	}
	if cfg.Fetcher.Cooldown, err = getenvDuration("RATE_LIMIT_COOLDOWN", weather.DefaultRateLimitCooldown); err != nil {
		return nil, err
	}
	cfg.RefreshToday = getenvBool("CACHE_REFRESH_TODAY", true)

	cfg.PatternLocation = time.Local
	if tz := os.Getenv("PATTERN_TZ"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid PATTERN_TZ: %w", err)
		}
		cfg.PatternLocation = loc
	}
	cfg.PatternTimes = weather.DefaultPatternTimes
	if path := os.Getenv("PATTERN_TIMES_FILE"); path != "" {
		times, err := LoadPatternTimes(path)
		if err != nil {
			return nil, err
		}
		cfg.PatternTimes = times
	}

	if cfg.WarmInterval, err = getenvDuration("WARM_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WarmWindow, err = getenvDuration("WARM_WINDOW", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	cfg.Port = getenvDefault("PORT", "3000")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "console")

	if !cfg.UseMockData && cfg.DeviceMAC == "" {
		log.Warn().Msg("DEVICE_MAC_ADDRESS is not set; remote calls will fail")
	}

	return cfg, nil
}

// patternTimesFile is the YAML layout of PATTERN_TIMES_FILE:
//
//	times:
//	  - name: Breakfast
//	    hour: 7
//	    minute: 30
type patternTimesFile struct {
	Times []weather.PatternTime `yaml:"times" validate:"required,min=1,dive"`
}

// LoadPatternTimes reads named pattern times from a YAML file.
func LoadPatternTimes(path string) ([]weather.PatternTime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern times file: %w", err)
	}

	var file patternTimesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pattern times YAML: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid pattern times file: %w", err)
	}

	return file.Times, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
