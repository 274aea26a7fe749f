package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader reads configuration from a yaml file layered over defaults, with
// secrets pulled from the environment (optionally seeded from a .env file).
type Loader struct {
	path      string
	useDotEnv bool
}

func NewLoader(path string) *Loader {
	if path == "" {
		path = os.Getenv("SPEECHBRIDGE_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}
	return &Loader{path: path, useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		_ = godotenv.Load()
	}

	cfg := Default()

	data, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment are enough to run.
	default:
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: l.path}, nil
}

// applyEnv overrides secret-bearing fields from the environment so that API
// keys never have to live in the yaml file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.ASR.OpenAI.APIKey == "" {
			cfg.ASR.OpenAI.APIKey = v
		}
		if cfg.Translate.OpenAI.APIKey == "" {
			cfg.Translate.OpenAI.APIKey = v
		}
		if cfg.TTS.OpenAI.APIKey == "" {
			cfg.TTS.OpenAI.APIKey = v
		}
	}
	if v := os.Getenv("SPEECHBRIDGE_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("SPEECHBRIDGE_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("SPEECHBRIDGE_OPENNMT_URL"); v != "" {
		cfg.Translate.OpenNMT.URL = v
	}
	if v := os.Getenv("SPEECHBRIDGE_XTTS_URL"); v != "" {
		cfg.TTS.XTTS.URL = v
	}
	if v := os.Getenv("SPEECHBRIDGE_EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Audio.TargetSampleRate <= 0 {
		return fmt.Errorf("invalid target sample rate: %d", cfg.Audio.TargetSampleRate)
	}
	if cfg.Audio.PeakLevel <= 0 || cfg.Audio.PeakLevel > 1 {
		return fmt.Errorf("invalid peak level: %f", cfg.Audio.PeakLevel)
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	s := cfg.Similarity
	if !(s.Fair < s.Good && s.Good < s.Excellent) {
		return fmt.Errorf("similarity thresholds must be ordered: fair < good < excellent")
	}
	if cfg.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("pipeline stage timeout must be positive")
	}
	return nil
}
