package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes yaml scalars like "30s" or "2m".
// Bare integers are read as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Web        WebConfig        `yaml:"web"`
	Audio      AudioConfig      `yaml:"audio"`
	Cache      CacheConfig      `yaml:"cache"`
	ASR        ASRConfig        `yaml:"ASR"`
	Translate  TranslateConfig  `yaml:"MT"`
	TTS        TTSConfig        `yaml:"TTS"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	History    HistoryConfig    `yaml:"history"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AudioDir       string   `yaml:"audio_dir"`
}

type AudioConfig struct {
	TargetSampleRate int      `yaml:"target_sample_rate"`
	PeakLevel        float64  `yaml:"peak_level"`
	Denoise          bool     `yaml:"denoise"`
	MaxUploadMB      int      `yaml:"max_upload_mb"`
	AllowedFormats   []string `yaml:"allowed_formats"`
}

type CacheConfig struct {
	Driver string           `yaml:"driver"` // redis, memory, none
	TTL    Duration         `yaml:"ttl"`
	Redis  RedisCacheConfig `yaml:"redis"`
}

type RedisCacheConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type ASRConfig struct {
	Provider string            `yaml:"provider"`
	OpenAI   OpenAIModelConfig `yaml:"openai"`
}

type OpenAIModelConfig struct {
	APIKey  string   `yaml:"api_key"`
	BaseURL string   `yaml:"url"`
	Model   string   `yaml:"model_name"`
	Timeout Duration `yaml:"timeout"`
}

type TranslateConfig struct {
	Provider string            `yaml:"provider"`
	Pairs    []string          `yaml:"pairs"` // "en-fr" style, declared at startup
	OpenNMT  OpenNMTConfig     `yaml:"opennmt"`
	OpenAI   OpenAIModelConfig `yaml:"openai"`
}

type OpenNMTConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

type TTSConfig struct {
	Provider  string            `yaml:"provider"` // preferred non-cloning backend
	Languages []string          `yaml:"languages"`
	Edge      EdgeTTSConfig     `yaml:"edge"`
	OpenAI    OpenAIModelConfig `yaml:"openai"`
	XTTS      XTTSConfig        `yaml:"xtts"`
}

type EdgeTTSConfig struct {
	Voice string `yaml:"voice"`
	Rate  string `yaml:"rate"`
}

type XTTSConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// SimilarityConfig holds the rating thresholds. A score below Fair rates
// "poor"; the bands are [Fair,Good) fair, [Good,Excellent) good and
// [Excellent,1] excellent.
type SimilarityConfig struct {
	Fair      float64 `yaml:"fair"`
	Good      float64 `yaml:"good"`
	Excellent float64 `yaml:"excellent"`
}

type PipelineConfig struct {
	StageTimeout Duration `yaml:"stage_timeout"`
	Workers      int      `yaml:"workers"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Keep    int    `yaml:"keep"`
}
