package asr

import (
	"context"

	"speechbridge-server-go/internal/domain/audio"
)

// Word is a word-level timestamp from the recognizer, when the backend
// provides them.
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

// Segment is one recognized span of speech.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a completed transcription.
type Result struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	// LanguageProbability stays 0 for backends that do not report a
	// detection confidence; the openai transcription response omits it.
	LanguageProbability float64   `json:"language_probability,omitempty"`
	Duration            float64   `json:"duration,omitempty"`
	Segments            []Segment `json:"segments,omitempty"`
	Words               []Word    `json:"words,omitempty"`
	Model               string    `json:"model,omitempty"`
}

// Provider turns normalized audio into text. The language hint may be empty,
// in which case the backend auto-detects.
type Provider interface {
	Transcribe(ctx context.Context, clip *audio.Normalized, language string) (*Result, error)
	Name() string
}
