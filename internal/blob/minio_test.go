package blob

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMinio struct {
	deleted []string
	errs    map[string]error
}

func (f *fakeMinio) PutObject(ctx context.Context, bucket, key string, _ io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	return minio.UploadInfo{Bucket: bucket, Key: key}, nil
}

func (f *fakeMinio) RemoveObjects(ctx context.Context, bucket string, objects <-chan minio.ObjectInfo, _ minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	out := make(chan minio.RemoveObjectError)
	go func() {
		defer close(out)
		for obj := range objects {
			if err, ok := f.errs[obj.Key]; ok {
				out <- minio.RemoveObjectError{ObjectName: obj.Key, Err: err}
				continue
			}
			f.deleted = append(f.deleted, obj.Key)
		}
	}()
	return out
}

func TestMinioStore_DeleteManyPartialFailure(t *testing.T) {
	fake := &fakeMinio{errs: map[string]error{
		"b.png": minio.ErrorResponse{Code: "AccessDenied", Message: "denied"},
		"c.png": minio.ErrorResponse{Code: "NoSuchKey", Message: "gone"},
	}}
	store := &MinioStore{client: fake, bucket: "images", url: "http://minio:9000/images"}

	err := store.DeleteMany(context.Background(), []string{"a.png", "b.png", "c.png", "d.png"})
	var delErr *DeleteError
	require.ErrorAs(t, err, &delErr)
	assert.Equal(t, []string{"b.png"}, delErr.Failed)
	assert.Equal(t, []string{"a.png", "d.png"}, fake.deleted)
}

func TestMinioStore_DeleteManyAllGone(t *testing.T) {
	fake := &fakeMinio{errs: map[string]error{
		"a.png": minio.ErrorResponse{Code: "NoSuchKey"},
	}}
	store := &MinioStore{client: fake, bucket: "images"}

	require.NoError(t, store.DeleteMany(context.Background(), []string{"a.png", "b.png"}))
	require.NoError(t, store.DeleteMany(context.Background(), nil))
	assert.Equal(t, []string{"b.png"}, fake.deleted)
}

func TestMinioStore_DeleteManyTransportFailure(t *testing.T) {
	fake := &fakeMinio{errs: map[string]error{
		"a.png": errors.New("connection reset"),
		"b.png": errors.New("connection reset"),
	}}
	store := &MinioStore{client: fake, bucket: "images"}

	err := store.DeleteMany(context.Background(), []string{"a.png", "b.png"})
	var delErr *DeleteError
	require.ErrorAs(t, err, &delErr)
	assert.Equal(t, []string{"a.png", "b.png"}, delErr.Failed)
}

func TestMinioStore_URL(t *testing.T) {
	store := &MinioStore{url: "http://minio:9000/images"}
	assert.Equal(t, "http://minio:9000/images/2026/01/02/x.png", store.URL("/2026/01/02/x.png"))
}
