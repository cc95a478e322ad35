package expiry

import (
	"context"
	"time"

	"imagehost/internal/domain"
	"imagehost/internal/events"

	"github.com/rs/zerolog"
)

// OpenStore is the slice of the resource store the Opener works with.
type OpenStore interface {
	GetByID(ctx context.Context, id string) (*domain.Image, error)
	ArmOpen(ctx context.Context, id string, openedAt, expiresAt time.Time) (bool, error)
}

type OpenerConfig struct {
	Windows Windows
	Now     func() time.Time
}

// OpenResult is the outcome of an open-trigger call.
type OpenResult struct {
	ExpiresAt *time.Time `json:"expires_at"`
	// AlreadyOpened is true when the countdown had been started by an
	// earlier open.
	AlreadyOpened bool `json:"alreadyOpened"`
	// Triggered is true only for the call that started the countdown.
	Triggered bool `json:"-"`
}

// Opener starts the on-open countdown the first time a non-owner views an image.
type Opener struct {
	store  OpenStore
	timers Timers
	pub    Publisher
	cfg    OpenerConfig
	logger zerolog.Logger
}

func NewOpener(store OpenStore, timers Timers, pub Publisher, cfg OpenerConfig, logger zerolog.Logger) *Opener {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Opener{
		store:  store,
		timers: timers,
		pub:    pub,
		cfg:    cfg,
		logger: logger.With().Str("component", "opener").Logger(),
	}
}

// Trigger arms the countdown of image id unless it is not an on-open image,
// was opened before, or viewerID owns it. viewerID is zero for anonymous
// viewers. Store failures are returned as is and may be retried.
func (o *Opener) Trigger(ctx context.Context, id string, viewerID int64) (*OpenResult, error) {
	img, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !img.ExpiresOnOpen || img.OpenedAt != nil || (viewerID != 0 && img.IsOwnedBy(viewerID)) {
		opensTotal.WithLabelValues("noop").Inc()
		return currentState(img), nil
	}

	now := StoreTime(o.cfg.Now())
	expiresAt := now.Add(o.cfg.Windows.For(img))

	won, err := o.store.ArmOpen(ctx, id, now, expiresAt)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race to a concurrent first open; report what it committed.
		img, err = o.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		opensTotal.WithLabelValues("lost").Inc()
		return currentState(img), nil
	}

	o.timers.Schedule(id, &expiresAt)
	o.pub.Publish(id, events.KindUpdated, map[string]any{"expires_at": expiresAt})
	opensTotal.WithLabelValues("triggered").Inc()

	o.logger.Info().Str("resource_id", id).Time("expires_at", expiresAt).Msg("open countdown started")
	return &OpenResult{ExpiresAt: &expiresAt, Triggered: true}, nil
}

func currentState(img *domain.Image) *OpenResult {
	return &OpenResult{ExpiresAt: img.ExpiresAt, AlreadyOpened: img.OpenedAt != nil}
}
