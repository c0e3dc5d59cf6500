package extract

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
)

// Extractor names identify which path produced a draft.
const (
	ExtractorGemini   = "gemini"
	ExtractorFallback = "fallback"
)

// Service routes extraction between the remote service and the local
// fallback. Remote failures are absorbed here; only a malformed model
// response propagates, so the operator can retry instead of silently
// accepting heuristic output.
type Service struct {
	remote Remote
	log    zerolog.Logger
	now    func() time.Time
}

// NewService creates an extraction service. remote may be nil, in which
// case every extraction uses the fallback.
func NewService(remote Remote, log zerolog.Logger) *Service {
	return &Service{
		remote: remote,
		log:    log,
		now:    time.Now,
	}
}

// Extract produces a complete draft from raw receipt text along with the
// name of the extractor that produced it.
func (s *Service) Extract(ctx context.Context, text string) (receipt.Fields, string, error) {
	fields, name, err := s.extract(ctx, text)
	if err != nil {
		return receipt.Fields{}, "", err
	}
	applyDefaults(&fields, s.now())
	return fields, name, nil
}

func (s *Service) extract(ctx context.Context, text string) (receipt.Fields, string, error) {
	if s.remote == nil {
		return Fallback(text, s.now()), ExtractorFallback, nil
	}

	fields, err := s.remote.Extract(ctx, text)
	switch {
	case err == nil:
		return fields, ExtractorGemini, nil
	case errors.Is(err, ErrMalformedResponse):
		// The service responded but unusably; report it rather than mask it.
		return receipt.Fields{}, "", err
	case errors.Is(err, ErrNotConfigured):
		s.log.Warn().Msg("remote extractor not configured, using local fallback")
	default:
		s.log.Warn().Err(err).Msg("remote extraction failed, using local fallback")
	}
	return Fallback(text, s.now()), ExtractorFallback, nil
}
