package main

import (
	"bytes"
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"imagehost/internal/blob"
	"imagehost/internal/config"
	"imagehost/internal/database"
	"imagehost/internal/domain"
	"imagehost/internal/expiry"
	"imagehost/internal/logger"
	jwtsvc "imagehost/internal/pkg/jwt"
	"imagehost/internal/repository"
)

const demoOwner int64 = 1

// 1x1 transparent PNG
var demoPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, "console")
	ctx := context.Background()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("DB connection failed")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	blobs, err := blob.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store unavailable")
	}

	albums := repository.NewAlbumRepository(db)
	images := repository.NewImageRepository(db)
	now := time.Now().UTC()

	shared := &domain.Album{ID: uuid.NewString(), OwnerID: demoOwner, Name: "Shared", IsPublic: true, CreatedAt: now}
	private := &domain.Album{ID: uuid.NewString(), OwnerID: demoOwner, Name: "Private", CreatedAt: now}
	for _, a := range []*domain.Album{shared, private} {
		if err := albums.Create(ctx, a); err != nil {
			log.Fatal().Err(err).Str("album", a.Name).Msg("create album failed")
		}
	}

	owner := demoOwner
	seeds := []struct {
		name   string
		policy string
		album  *domain.Album
		owner  *int64
		age    time.Duration
	}{
		{"never.png", "never", private, &owner, 0},
		{"one-hour.png", "1-hour", shared, &owner, 0},
		{"on-open.png", "on-open", shared, &owner, 0},
		{"guest-on-open.png", "on-open", nil, nil, 0},
		{"already-expired.png", "1-hour", nil, nil, 2 * time.Hour},
	}

	for _, s := range seeds {
		policy, err := expiry.ParsePolicy(s.policy)
		if err != nil {
			log.Fatal().Err(err).Msg("bad seed policy")
		}
		created := now.Add(-s.age)
		expiresAt, onOpen := expiry.Initial(policy, created)

		storagePath := blob.NewStoragePath(".png")
		if err := blobs.Put(ctx, storagePath, bytes.NewReader(demoPNG), int64(len(demoPNG)), "image/png"); err != nil {
			log.Fatal().Err(err).Str("path", storagePath).Msg("put blob failed")
		}

		img := &domain.Image{
			ID:            uuid.NewString(),
			OwnerID:       s.owner,
			Filename:      filepath.Base(storagePath),
			OriginalName:  s.name,
			FileSize:      int64(len(demoPNG)),
			MimeType:      "image/png",
			StoragePath:   storagePath,
			PublicURL:     blobs.URL(storagePath),
			ExpiresAt:     expiresAt,
			ExpiresOnOpen: onOpen,
			CreatedAt:     created,
		}
		if s.album != nil {
			img.AlbumID = &s.album.ID
		}
		if err := images.Create(ctx, img); err != nil {
			log.Fatal().Err(err).Str("image", s.name).Msg("create image failed")
		}
		log.Info().Str("id", img.ID).Str("name", s.name).Str("policy", policy.String()).Msg("seeded image")
	}

	token, err := jwtsvc.New(cfg.JWTSecret, 24*time.Hour).GenerateToken(demoOwner)
	if err != nil {
		log.Fatal().Err(err).Msg("token generation failed")
	}
	log.Info().Int64("user_id", demoOwner).Str("token", token).Msg("demo owner token")
}
