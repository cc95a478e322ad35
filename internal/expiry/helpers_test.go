package expiry

import (
	"context"
	"sync"
	"testing"
	"time"

	"imagehost/internal/database"
	"imagehost/internal/domain"
	"imagehost/internal/events"
	"imagehost/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var nopLogger = zerolog.Nop()

type published struct {
	ResourceID string
	Kind       events.Kind
	Data       map[string]any
	At         time.Time
}

// recordingPublisher stands in for the hub.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(resourceID string, kind events.Kind, data map[string]any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{ResourceID: resourceID, Kind: kind, Data: data, At: time.Now()})
	return 1
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func (p *recordingPublisher) ofKind(kind events.Kind) []published {
	var out []published
	for _, ev := range p.all() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// recordingTimers stands in for the scheduler.
type recordingTimers struct {
	mu        sync.Mutex
	scheduled map[string]*time.Time
	cancelled []string
}

func newRecordingTimers() *recordingTimers {
	return &recordingTimers{scheduled: make(map[string]*time.Time)}
}

func (r *recordingTimers) Schedule(id string, expiresAt *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled[id] = expiresAt
}

func (r *recordingTimers) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, id)
	delete(r.scheduled, id)
}

type MockBlobDeleter struct {
	mock.Mock
}

func (m *MockBlobDeleter) DeleteMany(ctx context.Context, paths []string) error {
	args := m.Called(ctx, paths)
	return args.Error(0)
}

func setupRepo(t *testing.T) *repository.ImageRepository {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return repository.NewImageRepository(db)
}

func newImage(expiresAt *time.Time, onOpen bool) *domain.Image {
	id := uuid.NewString()
	return &domain.Image{
		ID:            id,
		Filename:      id + ".png",
		OriginalName:  "photo.png",
		MimeType:      "image/png",
		StoragePath:   "2026/10/19/" + id + ".png",
		ExpiresAt:     expiresAt,
		ExpiresOnOpen: onOpen,
		CreatedAt:     time.Now().UTC(),
	}
}

func ptr(t time.Time) *time.Time { return &t }
