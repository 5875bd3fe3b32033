package diagnosis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/models"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/store"
)

const statusSuccess = "success"

// Publisher announces stored diagnoses.
type Publisher interface {
	SendDiagnosisEvent(ctx context.Context, rec store.Record) (string, error)
}

// Service generates a mock diagnosis for an image and stores it.
type Service struct {
	store     store.Store
	rnd       RandomSource
	publisher Publisher
	metrics   *metrics.Registry
}

// NewService wires the collaborators. rnd defaults to SystemRandom and
// publisher may be nil.
func NewService(st store.Store, rnd RandomSource, publisher Publisher, reg *metrics.Registry) *Service {
	if rnd == nil {
		rnd = SystemRandom{}
	}
	return &Service{
		store:     st,
		rnd:       rnd,
		publisher: publisher,
		metrics:   reg,
	}
}

// Process stores exactly one diagnosis document and returns its id. Errors
// are *models.Error.
func (s *Service) Process(ctx context.Context, req models.ImageRequest) (models.ProcessResult, error) {
	logger := zerolog.Ctx(ctx)

	if req.ImageURL == "" {
		logger.Info().Msg("rejected request without image URL")
		return models.ProcessResult{}, models.InvalidArgument("The image URL is required.")
	}

	logger.Info().Str("image_url", req.ImageURL).Msg("received image for processing")

	d := Diagnose(req.ImageURL, s.rnd)
	logger.Info().Str("diagnosis", d.Text).Float64("confidence", d.Confidence).Msg("mock diagnosis generated")

	rec := store.Record{
		ImageURL:       req.ImageURL,
		MockDiagnosis:  d.Text,
		MockConfidence: d.Confidence,
	}
	id, err := s.store.Add(ctx, rec)
	if err != nil {
		logger.Error().Err(err).Msg("failed to store diagnosis")
		s.metrics.Inc(ctx, "diagnoses_total", map[string]string{"outcome": string(models.KindInternal)}, 1)
		return models.ProcessResult{}, models.Internal(fmt.Sprintf("Failed to store diagnosis: %s", err), err)
	}
	logger.Info().Str("diagnosis_id", id).Msg("diagnosis stored")
	s.metrics.Inc(ctx, "diagnoses_total", map[string]string{"outcome": "success"}, 1)

	if s.publisher != nil {
		stored, err := s.store.Get(ctx, id)
		if err != nil {
			rec.ID = id
			stored = rec
		}
		if _, err := s.publisher.SendDiagnosisEvent(ctx, stored); err != nil {
			logger.Warn().Err(err).Str("diagnosis_id", id).Msg("diagnosis event not published")
		}
	}

	return models.ProcessResult{DiagnosisID: id, Status: statusSuccess}, nil
}
