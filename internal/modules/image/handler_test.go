package image

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imagehost/internal/blob"
	"imagehost/internal/database"
	"imagehost/internal/domain"
	"imagehost/internal/events"
	"imagehost/internal/expiry"
	"imagehost/internal/middleware"
	"imagehost/internal/pkg/jwt"
	"imagehost/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanupToken = "sweep-token"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testEnv struct {
	router    *gin.Engine
	images    *repository.ImageRepository
	albums    *repository.AlbumRepository
	blobs     *blob.LocalStore
	hub       *events.Hub
	scheduler *expiry.Scheduler
	jwt       *jwt.Service
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := zerolog.Nop()
	blobs, err := blob.NewLocalStore(t.TempDir(), "http://img.test")
	require.NoError(t, err)

	images := repository.NewImageRepository(db)
	albums := repository.NewAlbumRepository(db)
	hub := events.NewHub(events.Options{}, logger)
	scheduler := expiry.NewScheduler(hub, logger)
	t.Cleanup(func() {
		scheduler.Stop()
		hub.Close()
	})

	windows := expiry.Windows{Owner: time.Minute, Guest: 5 * time.Minute}
	opener := expiry.NewOpener(images, scheduler, hub, expiry.OpenerConfig{Windows: windows}, logger)
	sweeper := expiry.NewSweeper(images, blobs, hub, scheduler, expiry.SweeperConfig{}, logger)
	service := NewService(images, albums, blobs, scheduler, hub, Config{MaxFileSize: 1 << 20}, logger)
	jwtService := jwt.New("test-secret", time.Hour)

	router := gin.New()
	api := router.Group("/api")
	NewHandler(service, opener, sweeper, hub, logger).RegisterRoutes(api, Guards{
		Optional: middleware.OptionalAuth(jwtService),
		Required: middleware.JWTAuth(jwtService),
		Internal: middleware.InternalTokenAuth(cleanupToken, logger),
	})

	return &testEnv{
		router:    router,
		images:    images,
		albums:    albums,
		blobs:     blobs,
		hub:       hub,
		scheduler: scheduler,
		jwt:       jwtService,
	}
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := e.jwt.GenerateToken(userID)
	require.NoError(t, err)
	return token
}

type TestResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) TestResponse {
	t.Helper()
	var resp TestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	if into != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, into))
	}
	return resp
}

func performRequest(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func performUpload(router *gin.Engine, content []byte, fields map[string]string, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "holiday photo.png")
	_, _ = part.Write(content)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) upload(t *testing.T, expiryOpt string, token string) ImageResponse {
	t.Helper()
	w := performUpload(e.router, pngHeader, map[string]string{"expiry": expiryOpt}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var img ImageResponse
	decode(t, w, &img)
	return img
}

func TestUpload_FixedExpiryArmsTimer(t *testing.T) {
	env := setupRouter(t)
	before := time.Now()

	img := env.upload(t, "1-hour", "")

	require.NotNil(t, img.ExpiresAt)
	assert.WithinDuration(t, before.Add(time.Hour), *img.ExpiresAt, 5*time.Second)
	assert.False(t, img.ExpiresOnOpen)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "holiday_photo.png", img.OriginalName)
	assert.True(t, strings.HasPrefix(img.PublicURL, "http://img.test/uploads/"))

	at, ok := env.scheduler.Armed(img.ID)
	require.True(t, ok)
	assert.True(t, at.Equal(*img.ExpiresAt))

	stored, err := env.images.GetByID(context.Background(), img.ID)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Equal(*img.ExpiresAt))
	_, err = os.Stat(filepath.Join(env.blobs.Root(), stored.StoragePath))
	assert.NoError(t, err)
}

func TestUpload_OnOpenAndNever(t *testing.T) {
	env := setupRouter(t)

	onOpen := env.upload(t, "on-open", "")
	assert.Nil(t, onOpen.ExpiresAt)
	assert.True(t, onOpen.ExpiresOnOpen)

	never := env.upload(t, "", "")
	assert.Nil(t, never.ExpiresAt)
	assert.False(t, never.ExpiresOnOpen)

	assert.Equal(t, 0, env.scheduler.Len())
}

func TestUpload_Rejects(t *testing.T) {
	env := setupRouter(t)

	w := performUpload(env.router, []byte("plain text, not an image"), nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MIME_TYPE", decode(t, w, nil).Error.Code)

	w = performUpload(env.router, pngHeader, map[string]string{"expiry": "-5m"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w, nil).Error.Code)

	w = performUpload(env.router, pngHeader, map[string]string{"album_id": uuid.NewString()}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performUpload(env.router, append(pngHeader, make([]byte, 1<<20)...), nil, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUpload_PrivateAlbumNeverExpires(t *testing.T) {
	env := setupRouter(t)
	token := env.token(t, 5)

	w := performRequest(env.router, http.MethodPost, "/api/albums", CreateAlbumRequest{Name: "Private"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var album domain.Album
	decode(t, w, &album)

	w = performUpload(env.router, pngHeader, map[string]string{"expiry": "1-day", "album_id": album.ID}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var img ImageResponse
	decode(t, w, &img)

	assert.Nil(t, img.ExpiresAt)
	assert.Equal(t, album.ID, *img.AlbumID)
	assert.Equal(t, 0, env.scheduler.Len())
}

func TestOpen_FirstAndSecond(t *testing.T) {
	env := setupRouter(t)
	img := env.upload(t, "on-open", "")

	w := performRequest(env.router, http.MethodPost, "/api/resource/"+img.ID+"/open", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first expiry.OpenResult
	decode(t, w, &first)
	require.NotNil(t, first.ExpiresAt)
	assert.False(t, first.AlreadyOpened)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), *first.ExpiresAt, 5*time.Second)

	_, armed := env.scheduler.Armed(img.ID)
	assert.True(t, armed)

	w = performRequest(env.router, http.MethodPost, "/api/resource/"+img.ID+"/open", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var second expiry.OpenResult
	decode(t, w, &second)
	assert.True(t, second.AlreadyOpened)
	assert.True(t, second.ExpiresAt.Equal(*first.ExpiresAt))
}

func TestOpen_OwnerDoesNotStartCountdown(t *testing.T) {
	env := setupRouter(t)
	token := env.token(t, 9)
	img := env.upload(t, "on-open", token)

	w := performRequest(env.router, http.MethodPost, "/api/resource/"+img.ID+"/open", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var res expiry.OpenResult
	decode(t, w, &res)
	assert.Nil(t, res.ExpiresAt)
	assert.False(t, res.AlreadyOpened)

	// a visitor uses the owned-image window
	w = performRequest(env.router, http.MethodPost, "/api/resource/"+img.ID+"/open", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	assert.WithinDuration(t, time.Now().Add(time.Minute), *res.ExpiresAt, 5*time.Second)
}

func TestOpen_NotFound(t *testing.T) {
	env := setupRouter(t)

	w := performRequest(env.router, http.MethodPost, "/api/resource/"+uuid.NewString()+"/open", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w, nil).Error.Code)
}

func TestGet_ExpiredIsGone(t *testing.T) {
	env := setupRouter(t)
	past := time.Now().UTC().Add(-time.Minute)
	id := uuid.NewString()
	require.NoError(t, env.images.Create(context.Background(), &domain.Image{
		ID: id, StoragePath: id + ".png", MimeType: "image/png", ExpiresAt: &past, CreatedAt: time.Now().UTC(),
	}))

	w := performRequest(env.router, http.MethodGet, "/api/images/"+id, nil, "")
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "EXPIRED", decode(t, w, nil).Error.Code)

	w = performRequest(env.router, http.MethodGet, "/api/images/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete_OwnerOnly(t *testing.T) {
	env := setupRouter(t)
	owner := env.token(t, 1)
	img := env.upload(t, "1-day", owner)
	stored, err := env.images.GetByID(context.Background(), img.ID)
	require.NoError(t, err)

	w := performRequest(env.router, http.MethodDelete, "/api/images/"+img.ID, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(env.router, http.MethodDelete, "/api/images/"+img.ID, nil, env.token(t, 2))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(env.router, http.MethodDelete, "/api/images/"+img.ID, nil, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res DeleteResponse
	decode(t, w, &res)
	assert.True(t, res.Deleted)
	assert.Empty(t, res.StorageFailures)

	_, armed := env.scheduler.Armed(img.ID)
	assert.False(t, armed)
	_, err = os.Stat(filepath.Join(env.blobs.Root(), stored.StoragePath))
	assert.True(t, os.IsNotExist(err))

	w = performRequest(env.router, http.MethodGet, "/api/images/"+img.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMove_PrivateAlbumClearsExpiry(t *testing.T) {
	env := setupRouter(t)
	token := env.token(t, 3)
	fixed := env.upload(t, "3-days", token)
	onOpen := env.upload(t, "on-open", token)
	sub := env.hub.Subscribe(fixed.ID)
	defer sub.Close()
	<-sub.Events() // connected

	w := performRequest(env.router, http.MethodPost, "/api/albums", CreateAlbumRequest{Name: "Vault"}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	var album domain.Album
	decode(t, w, &album)

	w = performRequest(env.router, http.MethodPost, "/api/images/move",
		MoveRequest{ImageIDs: []string{fixed.ID, onOpen.ID}, AlbumID: album.ID}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res MoveResponse
	decode(t, w, &res)
	assert.Equal(t, int64(2), res.Moved)
	assert.True(t, res.ExpiryCleared)

	for _, id := range []string{fixed.ID, onOpen.ID} {
		stored, err := env.images.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, stored.ExpiresAt)
		assert.False(t, stored.ExpiresOnOpen)
	}
	assert.Equal(t, 0, env.scheduler.Len())

	select {
	case ev := <-sub.Events():
		assert.Equal(t, events.KindUpdated, ev.Kind)
		assert.Nil(t, ev.Data["expires_at"])
	case <-time.After(time.Second):
		t.Fatal("no updated event")
	}
}

func TestMove_Rejects(t *testing.T) {
	env := setupRouter(t)
	token := env.token(t, 3)
	img := env.upload(t, "1-hour", token)

	w := performRequest(env.router, http.MethodPost, "/api/images/move", MoveRequest{ImageIDs: []string{"x"}}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodPost, "/api/albums", CreateAlbumRequest{Name: "Theirs", IsPublic: true}, env.token(t, 4))
	require.Equal(t, http.StatusCreated, w.Code)
	var theirs domain.Album
	decode(t, w, &theirs)

	w = performRequest(env.router, http.MethodPost, "/api/images/move", MoveRequest{ImageIDs: []string{img.ID}, AlbumID: theirs.ID}, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCleanup_Endpoint(t *testing.T) {
	env := setupRouter(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 2; i++ {
		id := uuid.NewString()
		require.NoError(t, env.images.Create(ctx, &domain.Image{
			ID: id, StoragePath: "gone/" + id + ".png", MimeType: "image/png", ExpiresAt: &past, CreatedAt: past,
		}))
	}

	w := performRequest(env.router, http.MethodPost, "/api/cleanup-expired", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(env.router, http.MethodPost, "/api/cleanup-expired", nil, cleanupToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var raw map[string]any
	decode(t, w, &raw)
	assert.EqualValues(t, 2, raw["deleted"])
	assert.Equal(t, []any{}, raw["storageFailures"])
	assert.Contains(t, raw, "ms")

	w = performRequest(env.router, http.MethodPost, "/api/cleanup-expired", nil, cleanupToken)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &raw)
	assert.EqualValues(t, 0, raw["deleted"])
}

type sseFrame struct {
	Event string
	Data  map[string]any
}

func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if f.Event != "" {
				return f
			}
		case strings.HasPrefix(line, "event:"):
			f.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &f.Data))
		}
	}
}

func TestStream_SSE(t *testing.T) {
	env := setupRouter(t)
	owner := env.token(t, 1)
	img := env.upload(t, "on-open", owner)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream/resource/"+img.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	r := bufio.NewReader(resp.Body)

	f := readFrame(t, r)
	assert.Equal(t, "connected", f.Event)
	assert.Equal(t, img.ID, f.Data["resourceId"])

	w := performRequest(env.router, http.MethodPost, "/api/resource/"+img.ID+"/open", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var opened expiry.OpenResult
	decode(t, w, &opened)

	f = readFrame(t, r)
	assert.Equal(t, "updated", f.Event)
	got, err := time.Parse(time.RFC3339Nano, f.Data["expires_at"].(string))
	require.NoError(t, err)
	assert.True(t, got.Equal(*opened.ExpiresAt))

	w = performRequest(env.router, http.MethodDelete, "/api/images/"+img.ID, nil, owner)
	require.Equal(t, http.StatusOK, w.Code)

	f = readFrame(t, r)
	assert.Equal(t, "deleted", f.Event)
	assert.Equal(t, "deleted", f.Data["reason"])

	require.Eventually(t, func() bool { return env.hub.SubscriberCount(img.ID) == 0 }, time.Second, 10*time.Millisecond)
}

func TestStream_UnknownImage(t *testing.T) {
	env := setupRouter(t)

	w := performRequest(env.router, http.MethodGet, "/api/stream/resource/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, env.hub.ResourceCount())
}

// sweptAfterLookup deletes the image and announces it right after the
// existence check has seen it.
type sweptAfterLookup struct {
	ImageStore
	hub *events.Hub
}

func (s *sweptAfterLookup) GetByID(ctx context.Context, id string) (*domain.Image, error) {
	img, err := s.ImageStore.GetByID(ctx, id)
	if err == nil {
		_, _ = s.ImageStore.DeleteMany(ctx, []string{id})
		s.hub.Publish(id, events.KindDeleted, map[string]any{"reason": "expired"})
	}
	return img, err
}

func TestStream_DeletedDuringLookupIsDelivered(t *testing.T) {
	env := setupRouter(t)
	img := env.upload(t, "1-hour", "")

	logger := zerolog.Nop()
	service := NewService(&sweptAfterLookup{ImageStore: env.images, hub: env.hub}, env.albums, env.blobs,
		env.scheduler, env.hub, Config{}, logger)
	h := NewHandler(service, nil, nil, env.hub, logger)

	router := gin.New()
	router.GET("/stream/:id", h.Stream)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream/"+img.ID, nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.NoError(t, ctx.Err(), "stream did not end on deleted")
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event:connected")
	assert.Contains(t, body, "event:deleted")
	assert.Zero(t, env.hub.SubscriberCount(img.ID))
}

func TestStream_WebSocket(t *testing.T) {
	env := setupRouter(t)
	img := env.upload(t, "on-open", "")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/resource/" + img.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "connected", frame.Event)
	assert.Equal(t, img.ID, frame.Data["resourceId"])

	env.hub.Publish(img.ID, events.KindExpired, map[string]any{"expires_at": time.Now().UTC()})
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "expired", frame.Event)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.hub.SubscriberCount(img.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}
