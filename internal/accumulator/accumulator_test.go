package accumulator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mirix/internal/config"
	"mirix/internal/objectstore"
	"mirix/internal/upload"
)

// fakeUploader lets tests control exactly when a placeholder resolves,
// independent of real compression/network timing.
type fakeUploader struct {
	mu      sync.Mutex
	seq     int
	results map[string]upload.Result
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{results: make(map[string]upload.Result)}
}

func (f *fakeUploader) SubmitAsync(localPath string, timestamp time.Time, orgID string) upload.Placeholder {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return upload.Placeholder{ID: fmt.Sprintf("ph-%d", f.seq), Pending: true}
}

func (f *fakeUploader) TryResolve(p upload.Placeholder) (upload.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[p.ID]
	return r, ok
}

func (f *fakeUploader) Wait(ctx context.Context, p upload.Placeholder, timeout time.Duration) (upload.Result, error) {
	deadline := time.Now().Add(timeout)
	for {
		if r, ok := f.TryResolve(p); ok {
			return r, r.Err
		}
		if time.Now().After(deadline) {
			return upload.Result{}, fmt.Errorf("timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeUploader) resolve(id string, uri string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = upload.Result{Blob: objectstore.BlobRef{RemoteID: id, URI: uri, CreatedAt: time.Now()}}
}

// TestTemporalOrderDelayedUpload is spec §8 scenario 1: obs A (image,
// delayed upload) then obs B (text only). ShouldFlush(2) must return
// empty until A resolves, then return [A, B] in order.
func TestTemporalOrderDelayedUpload(t *testing.T) {
	up := newFakeUploader()
	cfg := config.AccumulatorConfig{TemporaryMessageLimit: 2, UploadTimeoutSeconds: 5}
	acc := New(cfg, "org1", up)
	ctx := context.Background()

	require.NoError(t, acc.Add(ctx, RawObservation{ImagePaths: []string{"/tmp/a.png"}}, time.Now(), true))
	require.NoError(t, acc.Add(ctx, RawObservation{Text: "hello"}, time.Now(), true))

	require.Empty(t, acc.ShouldFlush(2))

	up.resolve("ph-1", "s3://bucket/a.png")

	ready := acc.ShouldFlush(2)
	require.Len(t, ready, 2)
	require.Len(t, ready[0].Images, 1)
	require.Equal(t, "hello", ready[1].Text)
}

// TestUploadTimeoutEviction is spec §8 scenario 2: an image whose
// upload never resolves is evicted once it exceeds the timeout; the
// buffer empties out with no error surfaced.
func TestUploadTimeoutEviction(t *testing.T) {
	up := newFakeUploader()
	cfg := config.AccumulatorConfig{TemporaryMessageLimit: 1, UploadTimeoutSeconds: 0.02}
	acc := New(cfg, "org1", up)
	ctx := context.Background()

	require.NoError(t, acc.Add(ctx, RawObservation{ImagePaths: []string{"/tmp/never.png"}}, time.Now(), true))
	require.Equal(t, 1, acc.Len())

	time.Sleep(40 * time.Millisecond)
	acc.DetectTimeouts()

	require.Equal(t, 0, acc.Len())
	require.Empty(t, acc.ShouldFlush(1))
}

func TestShouldFlushBelowLimitReturnsEmpty(t *testing.T) {
	up := newFakeUploader()
	cfg := config.AccumulatorConfig{TemporaryMessageLimit: 3, UploadTimeoutSeconds: 5}
	acc := New(cfg, "org1", up)
	ctx := context.Background()

	require.NoError(t, acc.Add(ctx, RawObservation{Text: "one"}, time.Now(), true))
	require.Empty(t, acc.ShouldFlush(3))
}

func TestTrimRemovesFlushedPrefix(t *testing.T) {
	up := newFakeUploader()
	cfg := config.AccumulatorConfig{TemporaryMessageLimit: 1, UploadTimeoutSeconds: 5}
	acc := New(cfg, "org1", up)
	ctx := context.Background()

	require.NoError(t, acc.Add(ctx, RawObservation{Text: "one"}, time.Now(), true))
	require.NoError(t, acc.Add(ctx, RawObservation{Text: "two"}, time.Now(), true))

	ready := acc.ShouldFlush(1)
	require.Len(t, ready, 2)
	acc.Trim(len(ready))
	require.Equal(t, 0, acc.Len())
}
