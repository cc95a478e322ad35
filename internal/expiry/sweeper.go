package expiry

import (
	"context"
	"errors"
	"sync"
	"time"

	"imagehost/internal/blob"
	"imagehost/internal/domain"
	"imagehost/internal/events"

	"github.com/rs/zerolog"
)

const (
	DefaultSweepBatch = 500
	DefaultBlobBatch  = 50
)

// ImageStore is the slice of the resource store the Sweeper works with.
type ImageStore interface {
	ListExpired(ctx context.Context, t time.Time, limit int) ([]domain.Image, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}

// BlobDeleter removes stored files. Missing paths are not an error.
type BlobDeleter interface {
	DeleteMany(ctx context.Context, paths []string) error
}

type SweeperConfig struct {
	// Interval between automatic passes; zero or negative disables them.
	Interval      time.Duration
	BatchSize     int
	BlobBatchSize int
	Now           func() time.Time
}

// Result summarizes one sweeper pass.
type Result struct {
	Deleted         int           `json:"deleted"`
	StorageFailures []string      `json:"storageFailures"`
	Elapsed         time.Duration `json:"-"`
	MS              int64         `json:"ms"`
}

// Err reports blob paths left behind by the pass, if any.
func (r *Result) Err() error {
	if len(r.StorageFailures) == 0 {
		return nil
	}
	return &PartialStorageFailure{Paths: r.StorageFailures}
}

// Sweeper deletes images whose deadline has passed: metadata first, then
// notifications, then blobs.
type Sweeper struct {
	store  ImageStore
	blobs  BlobDeleter
	pub    Publisher
	timers Timers
	cfg    SweeperConfig
	logger zerolog.Logger

	runMu sync.Mutex // one pass at a time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store ImageStore, blobs BlobDeleter, pub Publisher, timers Timers, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatch
	}
	if cfg.BlobBatchSize <= 0 {
		cfg.BlobBatchSize = DefaultBlobBatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		store:  store,
		blobs:  blobs,
		pub:    pub,
		timers: timers,
		cfg:    cfg,
		logger: logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start runs a pass immediately and then every Interval until Stop or ctx
// cancellation. It does nothing when Interval is not positive.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.logger.Info().Msg("automatic sweeping disabled")
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.runLogged(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runLogged(ctx)
			}
		}
	}()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("sweeper started")
}

// Stop ends automatic passes and waits for a running one to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info().Msg("sweeper stopped")
}

func (s *Sweeper) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("sweep aborted, retrying next interval")
	}
}

// RunOnce performs one full pass. A store failure aborts the pass and is
// returned together with what was done before it; blob failures are only
// collected into the result.
func (s *Sweeper) RunOnce(ctx context.Context) (*Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	res := &Result{StorageFailures: []string{}}
	cutoff := s.cfg.Now().UTC()

	err := s.sweep(ctx, cutoff, res)

	res.Elapsed = time.Since(start)
	res.MS = res.Elapsed.Milliseconds()

	sweepDeletedTotal.Add(float64(res.Deleted))
	sweepStorageFailuresTotal.Add(float64(len(res.StorageFailures)))
	sweepDurationSeconds.Observe(res.Elapsed.Seconds())

	if err != nil {
		sweepRunsTotal.WithLabelValues("aborted").Inc()
		return res, err
	}
	sweepRunsTotal.WithLabelValues("ok").Inc()

	ev := s.logger.Info()
	if res.Deleted == 0 && len(res.StorageFailures) == 0 {
		ev = s.logger.Debug()
	}
	ev.Int("deleted", res.Deleted).
		Int("storage_failures", len(res.StorageFailures)).
		Dur("elapsed", res.Elapsed).
		Msg("sweep finished")
	return res, nil
}

func (s *Sweeper) sweep(ctx context.Context, cutoff time.Time, res *Result) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.store.ListExpired(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		ids := make([]string, len(batch))
		paths := make([]string, 0, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
			if batch[i].StoragePath != "" {
				paths = append(paths, batch[i].StoragePath)
			}
		}

		if _, err := s.store.DeleteMany(ctx, ids); err != nil {
			return err
		}
		res.Deleted += len(ids)

		// the records are gone; their blobs must not be left behind by a cancel
		committed := context.WithoutCancel(ctx)
		for _, id := range ids {
			s.timers.Cancel(id)
			s.pub.Publish(id, events.KindDeleted, map[string]any{"reason": "expired"})
		}

		res.StorageFailures = append(res.StorageFailures, s.deleteBlobs(committed, paths)...)

		if len(batch) < s.cfg.BatchSize {
			return nil
		}
	}
}

// deleteBlobs removes paths in sub-batches and returns those that failed.
func (s *Sweeper) deleteBlobs(ctx context.Context, paths []string) []string {
	return DeleteBlobs(ctx, s.blobs, paths, s.cfg.BlobBatchSize, s.logger)
}

// DeleteBlobs removes paths in chunks of size and returns the paths that
// could not be deleted. A failing chunk does not stop the rest.
func DeleteBlobs(ctx context.Context, blobs BlobDeleter, paths []string, size int, logger zerolog.Logger) []string {
	if size <= 0 {
		size = DefaultBlobBatch
	}

	var failed []string
	for start := 0; start < len(paths); start += size {
		end := min(start+size, len(paths))
		chunk := paths[start:end]

		err := blobs.DeleteMany(ctx, chunk)
		if err == nil {
			continue
		}

		var de *blob.DeleteError
		if errors.As(err, &de) && len(de.Failed) > 0 {
			failed = append(failed, de.Failed...)
		} else {
			failed = append(failed, chunk...)
		}
		logger.Warn().Err(err).Int("paths", len(chunk)).Msg("blob delete failed")
	}
	return failed
}
