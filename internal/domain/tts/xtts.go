package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
)

// XTTSProvider talks to an XTTS server, which supports cloning a speaker's
// voice from a short reference clip. Output is wav.
type XTTSProvider struct {
	url    string
	client *http.Client
}

func NewXTTSProvider(cfg config.XTTSConfig) (*XTTSProvider, error) {
	if cfg.URL == "" {
		return nil, plerrors.New(plerrors.KindConfig, "tts.NewXTTSProvider", "server url required")
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &XTTSProvider{
		url:    strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *XTTSProvider) Name() string {
	return "xtts"
}

func (p *XTTSProvider) Synthesize(ctx context.Context, req Request) (*Result, error) {
	const op = "tts.XTTSProvider.Synthesize"

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("text", req.Text); err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "build form", err)
	}
	if err := form.WriteField("language", req.Language); err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "build form", err)
	}
	cloned := len(req.ReferenceAudio) > 0
	if cloned {
		part, err := form.CreateFormFile("speaker_wav", "reference.wav")
		if err != nil {
			return nil, plerrors.Wrap(plerrors.KindStage, op, "build form", err)
		}
		if _, err := part.Write(req.ReferenceAudio); err != nil {
			return nil, plerrors.Wrap(plerrors.KindStage, op, "build form", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "build form", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/synthesize", &body)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "build request", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeTimeout, op, "synthesis cancelled", err)
		}
		return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeModelUnavailable, op, "synthesis server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, plerrors.NewCoded(plerrors.KindStage, plerrors.CodeModelUnavailable, op,
			fmt.Sprintf("synthesis server returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "read response", err)
	}
	if len(data) == 0 {
		return nil, plerrors.New(plerrors.KindStage, op, "synthesis produced no audio")
	}

	return &Result{
		Audio:       data,
		Format:      "wav",
		SampleRate:  audio.WAVSampleRate(data),
		Voice:       req.Voice,
		Model:       "xtts",
		VoiceCloned: cloned,
	}, nil
}
