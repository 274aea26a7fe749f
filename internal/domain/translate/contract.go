package translate

import "context"

// Result is a completed translation.
type Result struct {
	Text           string  `json:"translated_text"`
	SourceLanguage string  `json:"source_language"`
	TargetLanguage string  `json:"target_language"`
	Confidence     float64 `json:"confidence"`
	Model          string  `json:"model,omitempty"`
}

// Provider translates text between two languages. Pair support is enforced
// by the Service before a provider is ever called.
type Provider interface {
	Translate(ctx context.Context, text, source, target string) (*Result, error)
	Name() string
}
