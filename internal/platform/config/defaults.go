package config

import "time"

// Default returns the baseline configuration. Values here mirror what the
// service assumes when a field is absent from the config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8090,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Web: WebConfig{
			AllowedOrigins: []string{"*"},
			AudioDir:       "audio_out",
		},
		Audio: AudioConfig{
			TargetSampleRate: 16000,
			PeakLevel:        0.8,
			Denoise:          true,
			MaxUploadMB:      50,
			AllowedFormats:   []string{"wav", "mp3"},
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    Duration(time.Hour),
		},
		ASR: ASRConfig{
			Provider: "openai",
			OpenAI: OpenAIModelConfig{
				Model:   "whisper-1",
				Timeout: Duration(60 * time.Second),
			},
		},
		Translate: TranslateConfig{
			Provider: "opennmt",
			Pairs: []string{
				"en-fr", "en-es", "en-de",
				"fr-en", "es-en", "de-en",
			},
			OpenNMT: OpenNMTConfig{
				URL:     "http://127.0.0.1:5000",
				Timeout: Duration(30 * time.Second),
			},
			OpenAI: OpenAIModelConfig{
				Model:   "gpt-4o-mini",
				Timeout: Duration(30 * time.Second),
			},
		},
		TTS: TTSConfig{
			Provider: "edge",
			Languages: []string{
				"en", "es", "fr", "de", "it", "pt", "pl", "tr",
				"ru", "nl", "cs", "ar", "zh", "ja", "hi",
			},
			Edge: EdgeTTSConfig{
				Voice: "en-US-AriaNeural",
				Rate:  "+0%",
			},
			OpenAI: OpenAIModelConfig{
				Model:   "tts-1",
				Timeout: Duration(60 * time.Second),
			},
			XTTS: XTTSConfig{
				URL:     "http://127.0.0.1:8020",
				Timeout: Duration(120 * time.Second),
			},
		},
		Embedding: EmbeddingConfig{
			URL:     "http://127.0.0.1:8030",
			Timeout: Duration(30 * time.Second),
		},
		Similarity: SimilarityConfig{
			Fair:      0.60,
			Good:      0.75,
			Excellent: 0.85,
		},
		Pipeline: PipelineConfig{
			StageTimeout: Duration(120 * time.Second),
			Workers:      4,
		},
		History: HistoryConfig{
			Enabled: true,
			DSN:     "history.db",
			Keep:    500,
		},
	}
}
