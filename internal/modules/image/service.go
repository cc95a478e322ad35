package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"imagehost/internal/blob"
	"imagehost/internal/domain"
	"imagehost/internal/events"
	"imagehost/internal/expiry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultMaxFileSize = 10 * 1024 * 1024

// AllowedMimeTypes are the sniffed content types accepted for upload.
var AllowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

type Config struct {
	MaxFileSize   int64
	BlobBatchSize int
	Now           func() time.Time
}

// Service owns the image lifecycle outside of expiry: upload, lookup,
// explicit delete and album moves.
type Service struct {
	images ImageStore
	albums AlbumStore
	blobs  blob.Store
	timers expiry.Timers
	pub    expiry.Publisher
	cfg    Config
	now    clock
	logger zerolog.Logger
}

func NewService(images ImageStore, albums AlbumStore, blobs blob.Store, timers expiry.Timers, pub expiry.Publisher, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.BlobBatchSize <= 0 {
		cfg.BlobBatchSize = expiry.DefaultBlobBatch
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		images: images,
		albums: albums,
		blobs:  blobs,
		timers: timers,
		pub:    pub,
		cfg:    cfg,
		now:    now,
		logger: logger.With().Str("component", "images").Logger(),
	}
}

// Upload stores the file, records it with the expiry its policy gives, and
// arms a timer for fixed deadlines. The blob is removed again if the record
// cannot be written.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*domain.Image, error) {
	if in.File == nil || in.File.Size == 0 {
		return nil, ErrEmptyFile
	}
	if in.File.Size > s.cfg.MaxFileSize {
		return nil, ErrFileTooLarge
	}

	policy, err := expiry.ParsePolicy(in.Expiry)
	if err != nil {
		return nil, err
	}

	var albumID *string
	if in.AlbumID != "" {
		album, err := s.ownedAlbum(ctx, in.AlbumID, in.OwnerID)
		if err != nil {
			return nil, err
		}
		if !album.IsPublic {
			policy = expiry.Never()
		}
		albumID = &album.ID
	}

	file, err := in.File.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Detect MIME type from first 512 bytes
	buf := make([]byte, 512)
	n, _ := io.ReadFull(file, buf)
	mimeType := strings.Split(http.DetectContentType(buf[:n]), ";")[0]
	if !AllowedMimeTypes[mimeType] {
		return nil, ErrInvalidMimeType
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind file: %w", err)
	}

	ext := mimeToExt(mimeType)
	storagePath := blob.NewStoragePath(ext)

	if err := s.blobs.Put(ctx, storagePath, file, in.File.Size, mimeType); err != nil {
		return nil, fmt.Errorf("%w: store blob: %v", domain.ErrStoreUnavailable, err)
	}

	createdAt := expiry.StoreTime(s.now())
	expiresAt, onOpen := expiry.Initial(policy, createdAt)

	img := &domain.Image{
		ID:            uuid.NewString(),
		AlbumID:       albumID,
		Filename:      filepath.Base(storagePath),
		OriginalName:  sanitizeName(in.File.Filename) + ext,
		FileSize:      in.File.Size,
		MimeType:      mimeType,
		StoragePath:   storagePath,
		PublicURL:     s.blobs.URL(storagePath),
		ExpiresAt:     expiresAt,
		ExpiresOnOpen: onOpen,
		CreatedAt:     createdAt,
	}
	if in.OwnerID != 0 {
		owner := in.OwnerID
		img.OwnerID = &owner
	}

	if err := s.images.Create(ctx, img); err != nil {
		// rollback blob on DB error; context may already be done
		if derr := s.blobs.DeleteMany(context.WithoutCancel(ctx), []string{storagePath}); derr != nil {
			s.logger.Warn().Err(derr).Str("path", storagePath).Msg("orphaned blob after failed insert")
		}
		return nil, err
	}

	s.timers.Schedule(img.ID, img.ExpiresAt)

	s.logger.Info().
		Str("resource_id", img.ID).
		Str("policy", policy.String()).
		Bool("guest", img.IsGuest()).
		Msg("image uploaded")
	return img, nil
}

// Get returns a live image. An image past its deadline that the sweeper
// has not removed yet is reported as ErrExpired.
func (s *Service) Get(ctx context.Context, id string) (*domain.Image, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if img.IsExpired(s.now()) {
		return nil, ErrExpired
	}
	return img, nil
}

// Exists reports whether id is still in the store.
func (s *Service) Exists(ctx context.Context, id string) error {
	_, err := s.images.GetByID(ctx, id)
	return err
}

// Delete removes an owner's image: metadata first, then viewers are told,
// then the blob. Blob paths that could not be removed are returned.
func (s *Service) Delete(ctx context.Context, id string, userID int64) ([]string, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !img.IsOwnedBy(userID) {
		return nil, domain.ErrForbidden
	}

	if _, err := s.images.DeleteMany(ctx, []string{id}); err != nil {
		return nil, err
	}

	s.timers.Cancel(id)
	s.pub.Publish(id, events.KindDeleted, map[string]any{"reason": "deleted"})

	failed := expiry.DeleteBlobs(context.WithoutCancel(ctx), s.blobs, []string{img.StoragePath}, s.cfg.BlobBatchSize, s.logger)
	if failed == nil {
		failed = []string{}
	}

	s.logger.Info().Str("resource_id", id).Int("storage_failures", len(failed)).Msg("image deleted")
	return failed, nil
}

// Move reassigns the owner's images to an album they own. Moving into a
// private album clears any expiry and cancels pending timers.
func (s *Service) Move(ctx context.Context, userID int64, req MoveRequest) (*MoveResponse, error) {
	album, err := s.ownedAlbum(ctx, req.AlbumID, userID)
	if err != nil {
		return nil, err
	}

	ids := unique(req.ImageIDs)
	owned, err := s.images.ListByIDs(ctx, ids, userID)
	if err != nil {
		return nil, err
	}
	if len(owned) != len(ids) {
		return nil, fmt.Errorf("%w: %d of %d images not found", domain.ErrNotFound, len(ids)-len(owned), len(ids))
	}

	clearExpiry := !album.IsPublic
	moved, err := s.images.MoveToAlbum(ctx, ids, album.ID, clearExpiry)
	if err != nil {
		return nil, err
	}

	if clearExpiry {
		for i := range owned {
			if owned[i].ExpiresAt == nil && !owned[i].ExpiresOnOpen {
				continue
			}
			s.timers.Cancel(owned[i].ID)
			s.pub.Publish(owned[i].ID, events.KindUpdated, map[string]any{"expires_at": nil})
		}
	}

	s.logger.Info().Str("album_id", album.ID).Int64("moved", moved).Bool("expiry_cleared", clearExpiry).Msg("images moved")
	return &MoveResponse{Moved: moved, ExpiryCleared: clearExpiry}, nil
}

// CreateAlbum makes a new album for userID.
func (s *Service) CreateAlbum(ctx context.Context, userID int64, req CreateAlbumRequest) (*domain.Album, error) {
	if userID <= 0 {
		return nil, domain.ErrForbidden
	}
	album := &domain.Album{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Name:      strings.TrimSpace(req.Name),
		IsPublic:  req.IsPublic,
		CreatedAt: s.now().UTC(),
	}
	if err := s.albums.Create(ctx, album); err != nil {
		return nil, err
	}
	return album, nil
}

func (s *Service) ownedAlbum(ctx context.Context, albumID string, userID int64) (*domain.Album, error) {
	if userID <= 0 {
		return nil, domain.ErrForbidden
	}
	album, err := s.albums.GetByID(ctx, albumID)
	if err != nil {
		return nil, err
	}
	if album.OwnerID != userID {
		return nil, domain.ErrForbidden
	}
	return album, nil
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name)) // strip extension (added separately)
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" || name == "_" {
		return "image"
	}
	return name
}

func mimeToExt(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".bin"
	}
}
