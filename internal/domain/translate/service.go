package translate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
	"speechbridge-server-go/internal/platform/logging"
)

// DefaultSource is assumed when a request omits the source language.
const DefaultSource = "en"

// Service gates translation requests on the declared language pairs and
// delegates supported ones to the configured provider.
type Service struct {
	provider Provider
	pairs    map[string]bool
	logger   *logging.Logger
}

func NewService(cfg config.TranslateConfig, provider Provider, logger *logging.Logger) (*Service, error) {
	if provider == nil {
		return nil, plerrors.New(plerrors.KindConfig, "translate.NewService", "provider required")
	}

	pairs := make(map[string]bool, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		src, tgt, ok := splitPair(p)
		if !ok {
			return nil, plerrors.New(plerrors.KindConfig, "translate.NewService",
				fmt.Sprintf("malformed language pair %q", p))
		}
		pairs[src+"-"+tgt] = true
	}
	if len(pairs) == 0 {
		return nil, plerrors.New(plerrors.KindConfig, "translate.NewService", "no language pairs declared")
	}

	return &Service{
		provider: provider,
		pairs:    pairs,
		logger:   logger,
	}, nil
}

// Supported reports whether source->target is a declared pair.
func (s *Service) Supported(source, target string) bool {
	return s.pairs[normalizeLang(source)+"-"+normalizeLang(target)]
}

// Pairs returns the declared pairs in stable order.
func (s *Service) Pairs() []string {
	out := make([]string, 0, len(s.pairs))
	for p := range s.pairs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Translate runs text through the backend. An undeclared pair is rejected
// before any backend call is made.
func (s *Service) Translate(ctx context.Context, text, source, target string) (*Result, error) {
	const op = "translate.Service.Translate"

	source = normalizeLang(source)
	if source == "" {
		source = DefaultSource
	}
	target = normalizeLang(target)

	if target == "" {
		return nil, plerrors.New(plerrors.KindStage, op, "target language required")
	}
	if !s.Supported(source, target) {
		return nil, plerrors.NewCoded(plerrors.KindStage, plerrors.CodeUnsupportedLanguagePair, op,
			fmt.Sprintf("language pair %s-%s is not supported", source, target))
	}
	if strings.TrimSpace(text) == "" {
		return nil, plerrors.New(plerrors.KindStage, op, "text required")
	}

	s.logger.DebugTag("MT", "translating %s-%s via %s", source, target, s.provider.Name())

	result, err := s.provider.Translate(ctx, text, source, target)
	if err != nil {
		return nil, err
	}
	result.SourceLanguage = source
	result.TargetLanguage = target
	return result, nil
}

func splitPair(pair string) (src, tgt string, ok bool) {
	parts := strings.Split(normalizeLang(pair), "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func normalizeLang(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
