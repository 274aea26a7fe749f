package asr

import (
	"bytes"
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
	"speechbridge-server-go/internal/platform/logging"
)

// knownLanguages are the ISO 639-1 hints the recognizer accepts. Anything
// else falls back to auto-detection rather than failing the request.
var knownLanguages = map[string]bool{
	"en": true, "fr": true, "es": true, "de": true, "it": true,
	"pt": true, "nl": true, "pl": true, "ru": true, "uk": true,
	"zh": true, "ja": true, "ko": true, "ar": true, "hi": true,
	"tr": true, "sv": true, "da": true, "no": true, "fi": true,
}

// languageNames maps the spelled-out language the backend reports in verbose
// responses back to its ISO 639-1 code.
var languageNames = map[string]string{
	"english": "en", "french": "fr", "spanish": "es", "german": "de",
	"italian": "it", "portuguese": "pt", "dutch": "nl", "polish": "pl",
	"russian": "ru", "ukrainian": "uk", "chinese": "zh", "japanese": "ja",
	"korean": "ko", "arabic": "ar", "hindi": "hi", "turkish": "tr",
	"swedish": "sv", "danish": "da", "norwegian": "no", "finnish": "fi",
}

// OpenAIProvider transcribes via the OpenAI audio API (or any compatible
// endpoint reachable through a base URL override).
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

func NewOpenAIProvider(cfg config.OpenAIModelConfig, logger *logging.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, plerrors.New(plerrors.KindConfig, "asr.NewOpenAIProvider", "api key required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, clip *audio.Normalized, language string) (*Result, error) {
	const op = "asr.OpenAIProvider.Transcribe"

	hint := strings.ToLower(strings.TrimSpace(language))
	if hint != "" && !knownLanguages[hint] {
		p.logger.WarnTag("ASR", "unknown language hint %q, falling back to auto-detect", hint)
		hint = ""
	}

	wav := clip.Encode()

	req := openai.AudioRequest{
		Model:    p.model,
		FilePath: "clip.wav",
		Reader:   bytes.NewReader(wav),
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: hint,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
			openai.TranscriptionTimestampGranularityWord,
		},
	}

	resp, err := p.client.CreateTranscription(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeTimeout, op, "transcription cancelled", err)
		}
		return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeModelUnavailable, op, "transcription request failed", err)
	}

	result := &Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: normalizeLanguage(resp.Language, hint),
		Duration: resp.Duration,
		Model:    p.model,
	}

	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, Segment{
			ID:    seg.ID,
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	for _, w := range resp.Words {
		result.Words = append(result.Words, Word{
			Word:  w.Word,
			Start: w.Start,
			End:   w.End,
		})
	}

	return result, nil
}

func normalizeLanguage(reported, hint string) string {
	lang := strings.ToLower(strings.TrimSpace(reported))
	if code, ok := languageNames[lang]; ok {
		return code
	}
	if lang == "" {
		return hint
	}
	return lang
}
