package service

import (
	"context"
	"sync"
	"time"

	"amza-pricing-api/internal/repository"

	"github.com/sirupsen/logrus"
)

// CleanupConfig holds configuration for the cleanup scheduler.
type CleanupConfig struct {
	// Retention is how long provider call logs are kept.
	// Default: 30 days
	Retention time.Duration

	// CleanupInterval is how often the cleanup runs.
	// Default: 24 hours
	CleanupInterval time.Duration

	// InitialDelay postpones the first run after Start.
	InitialDelay time.Duration
}

// DefaultCleanupConfig returns default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Retention:       30 * 24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
		InitialDelay:    1 * time.Minute,
	}
}

// CleanupScheduler periodically deletes expired provider call logs.
type CleanupScheduler struct {
	repo      repository.CallLogRepository
	config    CleanupConfig
	now       func() time.Time
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	log       *logrus.Entry
}

// NewCleanupScheduler creates a new cleanup scheduler.
func NewCleanupScheduler(repo repository.CallLogRepository, config CleanupConfig) *CleanupScheduler {
	if config.Retention == 0 {
		config.Retention = 30 * 24 * time.Hour
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 24 * time.Hour
	}

	return &CleanupScheduler{
		repo:   repo,
		config: config,
		now:    time.Now,
		stopCh: make(chan struct{}),
		log:    logrus.WithField("component", "CleanupScheduler"),
	}
}

// Start begins the cleanup scheduler.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.CleanupInterval)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"interval":  s.config.CleanupInterval,
		"retention": s.config.Retention,
	}).Info("started")

	go func() {
		select {
		case <-time.After(s.config.InitialDelay):
			s.runCleanup()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

// run is the main cleanup loop.
func (s *CleanupScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runCleanup()
		case <-s.stopCh:
			s.log.Info("stopped")
			return
		}
	}
}

// runCleanup performs the actual cleanup.
func (s *CleanupScheduler) runCleanup() {
	deleted, err := s.RunNow()
	if err != nil {
		s.log.WithError(err).Error("cleanup failed")
		return
	}

	if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("expired call logs removed")
	} else {
		s.log.Debug("no expired call logs")
	}
}

// Stop stops the cleanup scheduler.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow deletes call logs older than the retention period.
func (s *CleanupScheduler) RunNow() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return s.repo.DeleteCallLogsBefore(ctx, s.now().Add(-s.config.Retention))
}
