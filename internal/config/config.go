package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	GRPC     GRPCConfig
	Worker   WorkerConfig
	Source   SourceConfig
	Hazard   HazardConfig
	Analysis AnalysisConfig
	DB       DatabaseConfig
	Logging  LoggingConfig
}

type GRPCConfig struct {
	Port int
}

type ServerConfig struct {
	Host            string
	Port            int
	RateLimitRPS    int
	ShutdownTimeout time.Duration
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

// SourceConfig selects where resources come from. When OSMFile is set the
// Overpass API is not used.
type SourceConfig struct {
	AreaName     string
	BBox         string // south,west,north,east
	Tags         string // amenity=waste_basket|recycling;shop
	OverpassURL  string
	OSMFile      string
	UserAgent    string
	Timeout      time.Duration
	CacheEnabled bool
}

type HazardConfig struct {
	SeedsFile string
	Segments  int
}

type AnalysisConfig struct {
	SpatialIndexThreshold int
	RefreshInterval       time.Duration // 0 runs once at startup
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS:    getEnvInt("RATE_LIMIT_RPS", 5),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		GRPC: GRPCConfig{
			Port: getEnvInt("GRPC_PORT", 50051),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Source: SourceConfig{
			AreaName:     getEnv("AREA_NAME", "Pokhara, Nepal"),
			BBox:         getEnv("AREA_BBOX", "28.15,83.93,28.28,84.05"),
			Tags:         getEnv("OSM_TAGS", "amenity=waste_basket|recycling|waste_transfer_station"),
			OverpassURL:  getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
			OSMFile:      getEnv("OSM_FILE", ""),
			UserAgent:    getEnv("OSM_USER_AGENT", "go-hazard-mapper/1.0"),
			Timeout:      getEnvDuration("OSM_TIMEOUT", 30*time.Second),
			CacheEnabled: getEnvBool("OSM_CACHE_ENABLED", true),
		},
		Hazard: HazardConfig{
			SeedsFile: getEnv("HAZARD_SEEDS_FILE", ""),
			Segments:  getEnvInt("HAZARD_BUFFER_SEGMENTS", 64),
		},
		Analysis: AnalysisConfig{
			SpatialIndexThreshold: getEnvInt("SPATIAL_INDEX_THRESHOLD", 32),
			RefreshInterval:       getEnvDuration("REFRESH_INTERVAL", 30*time.Minute),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/hazard-mapper.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 request per second")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("OSM timeout must be positive")
	}
	if c.Hazard.Segments < 8 {
		return fmt.Errorf("hazard buffer segments must be at least 8, got %d", c.Hazard.Segments)
	}
	if c.Analysis.RefreshInterval != 0 && c.Analysis.RefreshInterval < time.Minute {
		return fmt.Errorf("refresh interval must be 0 or at least 1 minute")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
