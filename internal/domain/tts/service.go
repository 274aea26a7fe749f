package tts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
	"speechbridge-server-go/internal/platform/logging"
)

// Service gates synthesis requests on the supported languages, routes
// cloning requests to the cloning backend and fills in the audio duration.
type Service struct {
	provider   Provider
	cloner     Provider
	languages  map[string]bool
	normalizer *audio.Normalizer
	logger     *logging.Logger
}

func NewService(cfg config.TTSConfig, provider, cloner Provider, normalizer *audio.Normalizer, logger *logging.Logger) (*Service, error) {
	if provider == nil {
		return nil, plerrors.New(plerrors.KindConfig, "tts.NewService", "provider required")
	}

	languages := make(map[string]bool, len(cfg.Languages))
	for _, l := range cfg.Languages {
		languages[strings.ToLower(strings.TrimSpace(l))] = true
	}
	if len(languages) == 0 {
		return nil, plerrors.New(plerrors.KindConfig, "tts.NewService", "no languages declared")
	}

	return &Service{
		provider:   provider,
		cloner:     cloner,
		languages:  languages,
		normalizer: normalizer,
		logger:     logger,
	}, nil
}

// Supported reports whether synthesis in lang is available.
func (s *Service) Supported(lang string) bool {
	return s.languages[strings.ToLower(strings.TrimSpace(lang))]
}

// Languages returns the supported languages in stable order.
func (s *Service) Languages() []string {
	out := make([]string, 0, len(s.languages))
	for l := range s.languages {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// CloningAvailable reports whether a cloning backend is configured.
func (s *Service) CloningAvailable() bool {
	return s.cloner != nil
}

func (s *Service) Synthesize(ctx context.Context, req Request) (*Result, error) {
	const op = "tts.Service.Synthesize"

	req.Language = strings.ToLower(strings.TrimSpace(req.Language))
	if req.Language == "" {
		return nil, plerrors.New(plerrors.KindStage, op, "language required")
	}
	if !s.Supported(req.Language) {
		return nil, plerrors.NewCoded(plerrors.KindStage, plerrors.CodeUnsupportedLanguage, op,
			fmt.Sprintf("synthesis in %q is not supported", req.Language))
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, plerrors.New(plerrors.KindStage, op, "text required")
	}

	provider := s.provider
	if len(req.ReferenceAudio) > 0 {
		if s.cloner == nil {
			return nil, plerrors.New(plerrors.KindStage, op, "voice cloning backend not configured")
		}
		provider = s.cloner
	}

	s.logger.DebugTag("TTS", "synthesizing %d chars in %s via %s", len(req.Text), req.Language, provider.Name())

	result, err := provider.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	if result.Duration == 0 && s.normalizer != nil {
		clip, nerr := s.normalizer.Normalize(audio.Blob{Data: result.Audio, Format: result.Format})
		if nerr != nil {
			s.logger.WarnTag("TTS", "duration probe failed: %v", nerr)
		} else {
			result.Duration = clip.Duration()
		}
	}
	if result.SampleRate == 0 {
		result.SampleRate = audio.WAVSampleRate(result.Audio)
	}

	return result, nil
}
