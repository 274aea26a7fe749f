package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"speechbridge-server-go/internal/domain/asr"
	"speechbridge-server-go/internal/domain/translate"
	"speechbridge-server-go/internal/domain/tts"
	plerrors "speechbridge-server-go/internal/platform/errors"
)

// Stage names one step of a run.
type Stage string

const (
	StageNormalize  Stage = "normalize"
	StageTranscribe Stage = "transcribe"
	StageTranslate  Stage = "translate"
	StageSynthesize Stage = "synthesize"
)

// StageResult is one completed stage. At most one payload field is set,
// matching the stage; normalize carries none.
type StageResult struct {
	Stage       Stage             `json:"stage"`
	CacheHit    bool              `json:"cache_hit"`
	DurationMS  float64           `json:"duration_ms"`
	Transcript  *asr.Result       `json:"transcript,omitempty"`
	Translation *translate.Result `json:"translation,omitempty"`
	Synthesis   *tts.Result       `json:"synthesis,omitempty"`
}

// Record is the outcome of one run. A failed run still carries every stage
// completed before the failure.
type Record struct {
	ID              string               `json:"pipeline_id"`
	CreatedAt       time.Time            `json:"created_at"`
	SourceLanguage  string               `json:"source_language,omitempty"`
	TargetLanguage  string               `json:"target_language,omitempty"`
	Stages          []StageResult        `json:"stages"`
	Status          string               `json:"status"` // completed, failed
	FailedStage     Stage                `json:"failed_stage,omitempty"`
	Error           *plerrors.Descriptor `json:"error,omitempty"`
	CacheHits       int                  `json:"cache_hits"`
	TotalDurationMS float64              `json:"total_duration_ms"`
}

func newRecord(source, target string) *Record {
	return &Record{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		SourceLanguage: source,
		TargetLanguage: target,
		Status:         "completed",
	}
}

func (r *Record) append(result StageResult) {
	r.Stages = append(r.Stages, result)
	if result.CacheHit {
		r.CacheHits++
	}
}

// Transcript returns the transcription result, if that stage completed.
func (r *Record) Transcript() *asr.Result {
	for _, s := range r.Stages {
		if s.Stage == StageTranscribe {
			return s.Transcript
		}
	}
	return nil
}

// Translation returns the translation result, if that stage completed.
func (r *Record) Translation() *translate.Result {
	for _, s := range r.Stages {
		if s.Stage == StageTranslate {
			return s.Translation
		}
	}
	return nil
}

// Synthesis returns the synthesis result, if that stage completed.
func (r *Record) Synthesis() *tts.Result {
	for _, s := range r.Stages {
		if s.Stage == StageSynthesize {
			return s.Synthesis
		}
	}
	return nil
}

// HistoryWriter persists finished records. Failures are logged and never
// surfaced to the caller of a run.
type HistoryWriter interface {
	Save(ctx context.Context, record *Record) error
}
