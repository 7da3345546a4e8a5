package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/pricing"
	"amza-pricing-api/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MaxBatchSize bounds the number of identifiers accepted by one batch.
const MaxBatchSize = 100

// BatchService analyzes lists of identifiers sequentially, isolating
// failures per identifier.
type BatchService struct {
	analysis *AnalysisService
	batches  repository.BatchRepository
	now      func() time.Time
	log      *logrus.Entry
}

// NewBatchService creates a new batch service.
func NewBatchService(analysis *AnalysisService, batches repository.BatchRepository) *BatchService {
	return &BatchService{
		analysis: analysis,
		batches:  batches,
		now:      time.Now,
		log:      logrus.WithField("component", "BatchService"),
	}
}

// Run analyzes identifiers in input order. Config and exchange rate are
// resolved once; when either is missing the batch is marked FAILED and the
// error returned. Per-identifier errors are recorded in the error log and
// never abort the batch. Cancellation of ctx does not stop a running batch.
func (s *BatchService) Run(ctx context.Context, identifiers []string, name string, shipping *decimal.Decimal) (*model.AnalysisBatch, error) {
	// The batch outlives the request that started it.
	ctx = context.WithoutCancel(ctx)

	started := s.now().UTC()
	batch := &model.AnalysisBatch{
		Name:        name,
		Identifiers: identifiers,
		Status:      model.BatchProcessing,
		TotalCount:  len(identifiers),
		ResultIDs:   []string{},
		ErrorLog:    map[string]string{},
		StartedAt:   &started,
		CreatedAt:   started,
	}
	if err := s.batches.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	log := s.log.WithFields(logrus.Fields{"batch_id": batch.ID, "total": batch.TotalCount})
	log.Info("batch started")

	opts, err := s.resolveInputs(ctx, shipping)
	if err != nil {
		batch.ErrorLog["error"] = err.Error()
		batch.Finish(model.BatchFailed, s.now().UTC())
		if updateErr := s.batches.UpdateBatch(ctx, batch); updateErr != nil {
			log.WithError(updateErr).Error("failed to mark batch as failed")
		}
		log.WithError(err).Warn("batch failed")
		return batch, err
	}

	s.process(ctx, batch, opts)

	batch.Finish(model.BatchCompleted, s.now().UTC())
	if err := s.batches.UpdateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to update batch: %w", err)
	}
	log.WithFields(logrus.Fields{
		"success":     batch.SuccessCount,
		"failed":      batch.FailureCount,
		"unavailable": batch.UnavailableCount,
	}).Info("batch completed")
	return batch, nil
}

func (s *BatchService) resolveInputs(ctx context.Context, shipping *decimal.Decimal) (AnalyzeOptions, error) {
	cfg, err := s.analysis.ResolveConfig(ctx)
	if err != nil {
		return AnalyzeOptions{}, err
	}
	rate, err := s.analysis.ResolveRate(ctx)
	if err != nil {
		return AnalyzeOptions{}, err
	}
	return AnalyzeOptions{ShippingOverride: shipping, Config: cfg, Rate: rate}, nil
}

// Get returns a batch by id.
func (s *BatchService) Get(ctx context.Context, id string) (*model.AnalysisBatch, error) {
	b, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pricing.NotFound("batch " + id + " not found")
		}
		return nil, err
	}
	return b, nil
}

func (s *BatchService) process(ctx context.Context, batch *model.AnalysisBatch, opts AnalyzeOptions) {
	for _, identifier := range batch.Identifiers {
		result, err := s.analysis.AnalyzeOne(ctx, identifier, opts)
		batch.ProcessedCount++
		if err != nil {
			batch.FailureCount++
			batch.ErrorLog[identifier] = err.Error()
			s.log.WithFields(logrus.Fields{"batch_id": batch.ID, "asin": identifier}).WithError(err).Warn("analysis failed")
		} else {
			batch.SuccessCount++
			if !result.IsAvailableAtOrigin {
				batch.UnavailableCount++
			}
			batch.ResultIDs = append(batch.ResultIDs, result.ID)
		}

		if err := s.batches.UpdateBatch(ctx, batch); err != nil {
			s.log.WithField("batch_id", batch.ID).WithError(err).Error("failed to save batch progress")
		}
	}
}
