package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/sketch-match/internal/constants"
)

//go:embed fallback.yaml
var fallbackYAML []byte

type Config struct {
	FaceAPI     FaceAPIConfig
	Image       ImageConfig
	Database    DatabaseConfig
	Details     DetailsConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Logging     LoggingConfig
	Maintenance MaintenanceConfig
	Fallback    FallbackConfig
}

type FaceAPIConfig struct {
	SimilarityURL     string        // defaults to http://localhost:5004
	GeneratorURL      string        // defaults to http://localhost:5003
	Timeout           time.Duration // transport timeout for both services
	MaxCallsPerSecond int           // outbound budget shared by all retrievals
}

type ImageConfig struct {
	FetchTimeout time.Duration // remote source image fetch timeout
	MaxDimension int           // sketches larger than this are downscaled before generation
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type DetailsConfig struct {
	DatabaseURL string // MariaDB DSN of a legacy detail table (optional, e.g. app:app@tcp(mariadb:3306)/records)
}

type RedisConfig struct {
	Addr     string // host:port, sessions fall back to PostgreSQL when empty
	Password string
}

type AuthConfig struct {
	ResetSecret        string
	ResetTTL           time.Duration
	ClientURL          string // front end base for reset links
	RateLimitPerMinute int
}

type LoggingConfig struct {
	Env   string // prod, local, dev, docker
	Level string // optional override
}

type MaintenanceConfig struct {
	Schedule string // cron expression for purge jobs
}

type FallbackConfig struct {
	Assets []string `yaml:"assets"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envSeconds reads a positive number of seconds, falling back to defaultVal.
func envSeconds(key string, defaultVal time.Duration) time.Duration {
	n := envInt(key, 0)
	if n == 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var fallback FallbackConfig
	if err := yaml.Unmarshal(fallbackYAML, &fallback); err != nil {
		// Embedded file, this can only fail on a broken build.
		panic("failed to unmarshal embedded fallback.yaml: " + err.Error())
	}
	if assets := splitList(os.Getenv("FALLBACK_ASSETS")); len(assets) > 0 {
		fallback.Assets = assets
	}

	resetTTL := constants.DefaultResetTokenTTL
	if n := envInt("AUTH_RESET_TTL_MINUTES", 0); n > 0 {
		resetTTL = time.Duration(n) * time.Minute
	}

	return &Config{
		FaceAPI: FaceAPIConfig{
			SimilarityURL:     envString("FACEAPI_SIMILARITY_URL", "http://localhost:5004"),
			GeneratorURL:      envString("FACEAPI_GENERATOR_URL", "http://localhost:5003"),
			Timeout:           envSeconds("FACEAPI_TIMEOUT_SECONDS", constants.DefaultFaceAPITimeout),
			MaxCallsPerSecond: envInt("FACEAPI_MAX_CALLS_PER_SECOND", 20),
		},
		Image: ImageConfig{
			FetchTimeout: envSeconds("IMAGE_FETCH_TIMEOUT_SECONDS", constants.DefaultImageFetchTimeout),
			MaxDimension: envInt("IMAGE_MAX_DIMENSION", constants.MaxImageSize),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Details: DetailsConfig{
			DatabaseURL: os.Getenv("DETAILS_DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Auth: AuthConfig{
			ResetSecret:        os.Getenv("AUTH_RESET_SECRET"),
			ResetTTL:           resetTTL,
			ClientURL:          strings.TrimSuffix(envString("CLIENT_URL", "http://localhost:3000"), "/"),
			RateLimitPerMinute: envInt("AUTH_RATE_LIMIT_PER_MINUTE", 30),
		},
		Logging: LoggingConfig{
			Env:   envString("LOG_ENV", "local"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		Maintenance: MaintenanceConfig{
			Schedule: envString("MAINTENANCE_SCHEDULE", "@every 1h"),
		},
		Fallback: fallback,
	}
}

// ResetLink builds the front end link that consumes a password reset token.
func (c *AuthConfig) ResetLink(token string) string {
	return c.ClientURL + "/reset-password/" + token
}
