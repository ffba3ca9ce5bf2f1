package config

// #region imports
import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// #endregion

// #region config

// DefaultPath is consulted when no config file is named explicitly. A
// missing file at this path is not an error.
const DefaultPath = "screening.yaml"

// Config carries everything the binaries need to wire a deployment:
// where sessions persist, where the API listens, and which models back
// the adaptive policies. Resolution order is defaults, then an optional
// YAML file, then environment variables.
type Config struct {
	DBPath   string
	HTTPAddr string

	Store         string // "sqlite" | "memory" | "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EncryptionKey seals session payloads at rest in shared stores.
	// Empty disables sealing.
	EncryptionKey string

	GenAIKey         string
	RouterModel      string
	ConstructorModel string

	SessionTTL time.Duration
}

// Default returns the baseline configuration: SQLite persistence next
// to the binary, HTTP on 8080, sessions expiring after a day, model
// policies off until a key is provided.
func Default() Config {
	return Config{
		DBPath:     "screening.db",
		HTTPAddr:   ":8080",
		Store:      "sqlite",
		RedisAddr:  "localhost:6379",
		SessionTTL: 24 * time.Hour,
	}
}

// #endregion

// #region loading

// fileConfig mirrors Config for the YAML layer. Pointer fields so an
// absent key leaves the default untouched; the TTL is a duration string
// like "24h".
type fileConfig struct {
	DBPath           *string `yaml:"db_path"`
	HTTPAddr         *string `yaml:"http_addr"`
	Store            *string `yaml:"store"`
	RedisAddr        *string `yaml:"redis_addr"`
	RedisPassword    *string `yaml:"redis_password"`
	RedisDB          *int    `yaml:"redis_db"`
	EncryptionKey    *string `yaml:"encryption_key"`
	GenAIKey         *string `yaml:"genai_key"`
	RouterModel      *string `yaml:"router_model"`
	ConstructorModel *string `yaml:"constructor_model"`
	SessionTTL       *string `yaml:"session_ttl"`
}

// Load resolves the effective configuration. An empty path consults
// DefaultPath and tolerates its absence; a named path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := applyFile(&cfg, data); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file, defaults stand.
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, data []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	setString(&cfg.DBPath, f.DBPath)
	setString(&cfg.HTTPAddr, f.HTTPAddr)
	setString(&cfg.Store, f.Store)
	setString(&cfg.RedisAddr, f.RedisAddr)
	setString(&cfg.RedisPassword, f.RedisPassword)
	if f.RedisDB != nil {
		cfg.RedisDB = *f.RedisDB
	}
	setString(&cfg.EncryptionKey, f.EncryptionKey)
	setString(&cfg.GenAIKey, f.GenAIKey)
	setString(&cfg.RouterModel, f.RouterModel)
	setString(&cfg.ConstructorModel, f.ConstructorModel)
	if f.SessionTTL != nil {
		ttl, err := time.ParseDuration(*f.SessionTTL)
		if err != nil {
			return fmt.Errorf("session_ttl: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	return nil
}

func applyEnv(cfg *Config) error {
	envString(&cfg.DBPath, "SCREENING_DB")
	envString(&cfg.HTTPAddr, "SCREENING_HTTP_ADDR")
	envString(&cfg.Store, "SCREENING_STORE")
	envString(&cfg.RedisAddr, "SCREENING_REDIS_ADDR")
	envString(&cfg.RedisPassword, "SCREENING_REDIS_PASSWORD")
	if v := os.Getenv("SCREENING_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCREENING_REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}
	envString(&cfg.EncryptionKey, "SCREENING_ENCRYPTION_KEY")
	envString(&cfg.GenAIKey, "GEMINI_API_KEY")
	envString(&cfg.RouterModel, "SCREENING_ROUTER_MODEL")
	envString(&cfg.ConstructorModel, "SCREENING_CONSTRUCTOR_MODEL")
	if v := os.Getenv("SCREENING_SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SCREENING_SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	return nil
}

func validate(cfg Config) error {
	switch cfg.Store {
	case "sqlite", "memory", "redis":
		return nil
	}
	return fmt.Errorf("unknown store %q (valid: sqlite, memory, redis)", cfg.Store)
}

// #endregion

// #region helpers

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// #endregion
