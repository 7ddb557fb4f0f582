// Package ingest polls the receiver feed on a fixed period and persists
// every positioned aircraft.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"adsb_history/internal/feed"
	"adsb_history/internal/metrics"
	"adsb_history/internal/position"
	"adsb_history/internal/publish"
)

// Fetcher returns the current feed snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (*feed.Feed, error)
}

// Store persists normalized positions.
type Store interface {
	Upsert(ctx context.Context, positions []position.Position) error
}

// Publisher receives each persisted batch.
type Publisher interface {
	Publish(ctx context.Context, b publish.Batch) error
}

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration // Tick period (default: 1s, minimum 1s)
}

// DefaultConfig returns the default tick period.
func DefaultConfig() Config {
	return Config{Interval: time.Second}
}

// TickResult summarises one tick.
type TickResult struct {
	ID         string
	ObservedAt time.Time
	Fetched    int // raw feed entries
	Stored     int
	Skipped    int // entries without coordinates
	Err        error
}

// Scheduler runs ingestion ticks. A tick that comes due while the previous
// one is still running is skipped.
type Scheduler struct {
	cfg       Config
	fetcher   Fetcher
	store     Store
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. publisher and logger may be nil.
func New(cfg Config, fetcher Fetcher, store Store, publisher Publisher, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs one tick immediately and then one per interval until Stop.
// The store must be ready before Start is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger.Named("cron")))
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(s.tick))

	s.cron = cron.New(cron.WithLogger(cronLogger))
	s.cron.Schedule(cron.Every(s.cfg.Interval), job)
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job.Run()
	}()

	s.logger.Info("ingestion scheduler started", zap.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop cancels the in-flight tick and waits for it to return, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("ingestion scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	s.RunOnce(s.ctx)
}

// RunOnce fetches, normalizes and persists one snapshot. Failures are
// logged and reported in the result; they never abort the scheduler.
func (s *Scheduler) RunOnce(ctx context.Context) TickResult {
	start := time.Now()
	res := TickResult{ID: uuid.NewString()}
	log := s.logger.With(zap.String("tick_id", res.ID))

	f, err := s.fetcher.Fetch(ctx)
	if err != nil {
		log.Warn("feed fetch failed", zap.Error(err))
		res.Err = err
		metrics.RecordTick(metrics.TickFetchError, 0, 0, 0, time.Since(start))
		return res
	}

	res.ObservedAt = position.NewTimestamp(s.now()).Time()
	batch := position.NormalizeAll(f.Aircraft, res.ObservedAt)
	res.Fetched = len(f.Aircraft)
	res.Skipped = res.Fetched - len(batch)

	if len(batch) == 0 {
		log.Debug("no positioned aircraft in feed", zap.Int("fetched", res.Fetched))
		metrics.RecordTick(metrics.TickEmpty, res.Fetched, 0, res.Skipped, time.Since(start))
		return res
	}

	if err := s.store.Upsert(ctx, batch); err != nil {
		log.Error("store upsert failed", zap.Int("positions", len(batch)), zap.Error(err))
		res.Err = err
		metrics.RecordTick(metrics.TickStoreError, res.Fetched, 0, res.Skipped, time.Since(start))
		return res
	}
	res.Stored = len(batch)

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, publish.Batch{
			TickID:     res.ID,
			ObservedAt: position.NewTimestamp(res.ObservedAt),
			Aircraft:   batch,
		})
		if err != nil {
			log.Warn("publish failed", zap.Error(err))
		}
	}

	metrics.RecordTick(metrics.TickOK, res.Fetched, res.Stored, res.Skipped, time.Since(start))
	log.Debug("tick complete",
		zap.Int("fetched", res.Fetched),
		zap.Int("stored", res.Stored),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return res
}
