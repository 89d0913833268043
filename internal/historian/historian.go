// internal/historian/historian.go
package historian

import (
	"context"
	"time"

	"github.com/jason-s-yu/bingo/internal/database"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/sirupsen/logrus"
)

// Source yields queued round events. Pop returns nil, nil when nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.RoundEvent, error)
}

// Sink persists events and round status.
type Sink interface {
	InsertRoundEvents(ctx context.Context, events []models.RoundEvent) error
	SetRoundStatus(ctx context.Context, roundID int64, status string) error
}

// Config tunes batching and abandonment.
type Config struct {
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity after which an unfinished round is marked abandoned.
	Inactivity time.Duration
}

// Service drains the round event queue into the database. A single goroutine owns the batch.
type Service struct {
	source Source
	sink   Sink
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time

	batch        []models.RoundEvent
	batchStarted time.Time
	lastActivity map[int64]time.Time
}

// New builds a Service. Zero config values take defaults.
func New(source Source, sink Sink, cfg Config, logger *logrus.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = 10 * time.Minute
	}
	return &Service{
		source:       source,
		sink:         sink,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		batch:        make([]models.RoundEvent, 0, cfg.BatchSize),
		lastActivity: make(map[int64]time.Time),
	}
}

// Run pops events until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("historian started")
	for {
		if ctx.Err() != nil {
			s.flush(context.Background())
			s.logger.Info("historian stopped")
			return nil
		}

		ev, err := s.source.Pop(ctx, s.cfg.FlushDelay)
		if err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Error("failed to pop round event")
			// avoid spinning on a dead connection
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.FlushDelay):
			}
		}
		if ev != nil {
			s.add(ctx, *ev)
		}

		if len(s.batch) >= s.cfg.BatchSize || (len(s.batch) > 0 && s.now().Sub(s.batchStarted) >= s.cfg.FlushDelay) {
			s.flush(ctx)
		}
		s.abandonIdle(ctx)
	}
}

func (s *Service) add(ctx context.Context, ev models.RoundEvent) {
	if len(s.batch) == 0 {
		s.batchStarted = s.now()
	}
	s.batch = append(s.batch, ev)

	switch ev.EventType {
	case "round_active":
		s.lastActivity[ev.RoundID] = s.now()
		s.setStatus(ctx, ev.RoundID, database.RoundActive)
	case "round_skipped":
		delete(s.lastActivity, ev.RoundID)
		s.setStatus(ctx, ev.RoundID, database.RoundSkipped)
	case "round_exhausted":
		delete(s.lastActivity, ev.RoundID)
		s.setStatus(ctx, ev.RoundID, database.RoundExhausted)
	case "winner":
		// settlement closes the games row
		delete(s.lastActivity, ev.RoundID)
	default:
		s.lastActivity[ev.RoundID] = s.now()
	}
}

func (s *Service) flush(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	if err := s.sink.InsertRoundEvents(ctx, s.batch); err != nil {
		// keep the batch and retry on the next flush; inserts are idempotent
		s.logger.WithError(err).WithField("events", len(s.batch)).Error("failed to flush round events")
		return
	}
	s.logger.Debugf("flushed %d round events", len(s.batch))
	s.batch = s.batch[:0]
}

func (s *Service) abandonIdle(ctx context.Context) {
	now := s.now()
	for roundID, last := range s.lastActivity {
		if now.Sub(last) > s.cfg.Inactivity {
			delete(s.lastActivity, roundID)
			s.setStatus(ctx, roundID, database.RoundAbandoned)
			s.logger.WithField("round", roundID).Warn("marked round abandoned due to inactivity")
		}
	}
}

func (s *Service) setStatus(ctx context.Context, roundID int64, status string) {
	if err := s.sink.SetRoundStatus(ctx, roundID, status); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"round": roundID, "status": status}).Error("failed to update round status")
	}
}
