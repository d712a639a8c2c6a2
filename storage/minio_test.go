package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/smosvm/config"
	"github.com/wyfcoding/smosvm/xerrors"
)

// fakeS3 只认识建桶，其余对象一律 404.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	calls   []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	parts := strings.SplitN(strings.Trim(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case len(parts) == 1 && r.Method == http.MethodHead && f.buckets[bucket]:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func minioConfig(endpoint, bucket string) config.MinioConfig {
	return config.MinioConfig{
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "testsecret",
		BucketName:      bucket,
		Region:          "us-east-1",
	}
}

func TestMinIOBackend(t *testing.T) {
	fake := &fakeS3{buckets: map[string]bool{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	endpoint := strings.TrimPrefix(srv.URL, "http://")

	ctx := context.Background()
	s, err := New(ctx, config.StorageConfig{Driver: "minio", Minio: minioConfig(endpoint, "models")})
	require.NoError(t, err)
	require.IsType(t, &MinIOClient{}, s)
	assert.True(t, fake.buckets["models"], "bucket created on start")

	ok, err := s.Exists(ctx, "missing.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Download(ctx, "missing.json")
	assert.True(t, errors.Is(err, xerrors.ErrModelNotFound))

	_, err = NewModelStore(s, nil).Load(ctx, "missing.json")
	assert.True(t, errors.Is(err, xerrors.ErrModelNotFound))

	// 桶已存在时不再建桶
	c := s.(*MinIOClient)
	fake.mu.Lock()
	fake.calls = nil
	fake.mu.Unlock()
	require.NoError(t, c.EnsureBucket(ctx))
	assert.Equal(t, []string{"HEAD /models/"}, fake.calls)
}

func TestMinIOUpdateConfig(t *testing.T) {
	c, err := NewMinIOClient(minioConfig("127.0.0.1:9000", "a"))
	require.NoError(t, err)

	require.NoError(t, c.UpdateConfig(minioConfig("127.0.0.1:9001", "b")))
	_, bucket := c.snapshot()
	assert.Equal(t, "b", bucket)

	err = c.UpdateConfig(minioConfig("bad host/with/path", "c"))
	require.Error(t, err)
	_, bucket = c.snapshot()
	assert.Equal(t, "b", bucket, "failed update keeps the previous client")
}

func TestReconfigure(t *testing.T) {
	fake := &fakeS3{buckets: map[string]bool{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	endpoint := strings.TrimPrefix(srv.URL, "http://")
	ctx := context.Background()

	first := config.StorageConfig{Driver: "minio", Key: "a.json", Minio: minioConfig(endpoint, "models")}
	backend, err := New(ctx, first)
	require.NoError(t, err)

	// 只换 key 不动后端
	onlyKey := first
	onlyKey.Key = "b.json"
	same, err := Reconfigure(ctx, backend, first, onlyKey)
	require.NoError(t, err)
	assert.Same(t, backend, same)

	// 换桶：原地刷新客户端并建桶
	otherBucket := onlyKey
	otherBucket.Minio.BucketName = "archive"
	updated, err := Reconfigure(ctx, backend, onlyKey, otherBucket)
	require.NoError(t, err)
	assert.Same(t, backend, updated)
	_, bucket := updated.(*MinIOClient).snapshot()
	assert.Equal(t, "archive", bucket)
	assert.True(t, fake.buckets["archive"])

	// 换 driver：新建后端
	local := config.StorageConfig{Driver: "local", Key: "b.json", Local: config.LocalConfig{Dir: t.TempDir()}}
	switched, err := Reconfigure(ctx, updated, otherBucket, local)
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, switched)

	_, err = Reconfigure(ctx, switched, local, config.StorageConfig{Driver: "s3"})
	assert.True(t, errors.Is(err, xerrors.ErrInvalidConfig))
}
