package similarity

import (
	"context"
	"math"

	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/domain/embedding"
	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
	"speechbridge-server-go/internal/platform/logging"
)

// Score is one voice similarity verdict.
type Score struct {
	Score  float64 `json:"similarity_score"`
	Rating string  `json:"rating"`
}

// BatchItem is the outcome for one candidate in a batch comparison. Exactly
// one of Score and Err is set.
type BatchItem struct {
	Index int
	Score *Score
	Err   error
}

// Scorer compares voices by embedding both clips and taking the cosine of
// the two vectors.
type Scorer struct {
	embedder   embedding.Provider
	normalizer *audio.Normalizer
	thresholds config.SimilarityConfig
	logger     *logging.Logger
}

func NewScorer(cfg config.SimilarityConfig, embedder embedding.Provider, normalizer *audio.Normalizer, logger *logging.Logger) (*Scorer, error) {
	if embedder == nil {
		return nil, plerrors.New(plerrors.KindConfig, "similarity.NewScorer", "embedding provider required")
	}
	if normalizer == nil {
		return nil, plerrors.New(plerrors.KindConfig, "similarity.NewScorer", "normalizer required")
	}
	if !(cfg.Fair < cfg.Good && cfg.Good < cfg.Excellent) {
		return nil, plerrors.New(plerrors.KindConfig, "similarity.NewScorer", "thresholds must be strictly increasing")
	}

	return &Scorer{
		embedder:   embedder,
		normalizer: normalizer,
		thresholds: cfg,
		logger:     logger,
	}, nil
}

// Compare scores how close the candidate voice is to the reference.
func (s *Scorer) Compare(ctx context.Context, reference, candidate audio.Blob) (*Score, error) {
	ref, err := s.embed(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.compareTo(ctx, ref, candidate)
}

// CompareMany scores every candidate against one reference. A failing
// candidate does not abort the batch; its item carries the error instead.
// The reference is embedded once.
func (s *Scorer) CompareMany(ctx context.Context, reference audio.Blob, candidates []audio.Blob) ([]BatchItem, error) {
	ref, err := s.embed(ctx, reference)
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(candidates))
	for i, cand := range candidates {
		score, err := s.compareTo(ctx, ref, cand)
		items[i] = BatchItem{Index: i, Score: score, Err: err}
		if err != nil {
			s.logger.WarnTag("SIM", "candidate %d failed: %v", i, err)
		}
	}
	return items, nil
}

// Rating buckets a score using the configured thresholds.
func (s *Scorer) Rating(score float64) string {
	switch {
	case score >= s.thresholds.Excellent:
		return "excellent"
	case score >= s.thresholds.Good:
		return "good"
	case score >= s.thresholds.Fair:
		return "fair"
	default:
		return "poor"
	}
}

func (s *Scorer) compareTo(ctx context.Context, ref []float64, candidate audio.Blob) (*Score, error) {
	cand, err := s.embed(ctx, candidate)
	if err != nil {
		return nil, err
	}

	score := cosine(ref, cand)
	return &Score{
		Score:  score,
		Rating: s.Rating(score),
	}, nil
}

func (s *Scorer) embed(ctx context.Context, blob audio.Blob) ([]float64, error) {
	clip, err := s.normalizer.Normalize(blob)
	if err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, clip.Encode())
	if err != nil {
		return nil, err
	}
	return l2normalize(vec), nil
}

func l2normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// cosine assumes both vectors are already unit length. Dimension mismatch
// scores over the shorter prefix; the backends emit fixed-size vectors so
// this only happens across backend versions.
func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	if dot > 1 {
		dot = 1
	}
	if dot < -1 {
		dot = -1
	}
	return dot
}
