package tts

import (
	"context"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
)

// OpenAIProvider synthesizes through the OpenAI speech API. Output is wav so
// downstream comparison does not need an extra transcode.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	voice  openai.SpeechVoice
}

func NewOpenAIProvider(cfg config.OpenAIModelConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, plerrors.New(plerrors.KindConfig, "tts.NewOpenAIProvider", "api key required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		voice:  openai.VoiceAlloy,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, req Request) (*Result, error) {
	const op = "tts.OpenAIProvider.Synthesize"

	voice := p.voice
	if req.Voice != "" {
		voice = openai.SpeechVoice(req.Voice)
	}

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.model),
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeTimeout, op, "synthesis cancelled", err)
		}
		return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeModelUnavailable, op, "speech request failed", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "read speech stream", err)
	}
	if len(data) == 0 {
		return nil, plerrors.New(plerrors.KindStage, op, "synthesis produced no audio")
	}

	return &Result{
		Audio:      data,
		Format:     "wav",
		SampleRate: audio.WAVSampleRate(data),
		Voice:      string(voice),
		Model:      p.model,
	}, nil
}
