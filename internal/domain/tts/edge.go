package tts

import (
	"bytes"
	"context"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
)

// edgeVoices maps a language to its stock neural voice. Requests may still
// override the voice explicitly.
var edgeVoices = map[string]string{
	"en": "en-US-AriaNeural",
	"fr": "fr-FR-DeniseNeural",
	"es": "es-ES-ElviraNeural",
	"de": "de-DE-KatjaNeural",
	"it": "it-IT-ElsaNeural",
	"pt": "pt-BR-FranciscaNeural",
	"zh": "zh-CN-XiaoxiaoNeural",
	"ja": "ja-JP-NanamiNeural",
}

// EdgeProvider synthesizes through the Edge streaming TTS service. Output
// is mp3.
type EdgeProvider struct {
	voice string
	rate  string
}

func NewEdgeProvider(cfg config.EdgeTTSConfig) *EdgeProvider {
	rate := cfg.Rate
	if rate == "" {
		rate = "+0%"
	}
	return &EdgeProvider{
		voice: cfg.Voice,
		rate:  rate,
	}
}

func (p *EdgeProvider) Name() string {
	return "edge"
}

func (p *EdgeProvider) Synthesize(ctx context.Context, req Request) (*Result, error) {
	const op = "tts.EdgeProvider.Synthesize"

	voice := req.Voice
	if voice == "" {
		voice = edgeVoices[req.Language]
	}
	if voice == "" {
		voice = p.voice
	}

	conn, err := edge_tts.NewCommunicate(
		req.Text,
		edge_tts.SetVoice(voice),
		edge_tts.SetRate(p.rate),
	)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "open synthesis stream", err)
	}

	data, err := conn.Stream()
	if err != nil {
		if ctx.Err() != nil {
			return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeTimeout, op, "synthesis cancelled", err)
		}
		return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeModelUnavailable, op, "synthesis stream failed", err)
	}
	if len(data) == 0 {
		return nil, plerrors.New(plerrors.KindStage, op, "synthesis produced no audio")
	}

	duration, rate := mp3Probe(data)
	return &Result{
		Audio:      data,
		Format:     "mp3",
		Duration:   duration,
		SampleRate: rate,
		Voice:      voice,
		Model:      "edge-tts",
	}, nil
}

// mp3Probe decodes just enough of the stream to measure its length and
// sample rate. Zeroes mean unknown and leave the probe to the caller.
func mp3Probe(data []byte) (float64, int) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	n, err := io.Copy(io.Discard, dec)
	if err != nil || dec.SampleRate() == 0 {
		return 0, 0
	}
	// 16-bit stereo frames.
	return float64(n) / 4 / float64(dec.SampleRate()), dec.SampleRate()
}
