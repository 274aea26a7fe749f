package tts

import "context"

// Request describes one synthesis job. ReferenceAudio, when set, asks for
// the speaker's voice to be cloned instead of using a stock voice.
type Request struct {
	Text           string
	Language       string
	Voice          string
	ReferenceAudio []byte
}

// Result is a completed synthesis.
type Result struct {
	Audio       []byte  `json:"-"`
	Format      string  `json:"format"`
	Duration    float64 `json:"duration,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Voice       string  `json:"voice,omitempty"`
	Model       string  `json:"model,omitempty"`
	VoiceCloned bool    `json:"voice_cloned"`
}

// Provider renders text to speech.
type Provider interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
	Name() string
}
