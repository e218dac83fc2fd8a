// Package upload implements the UploadManager (spec §4.1): a bounded
// worker pool that offloads blob uploads from the accumulator's
// critical path, returning a placeholder immediately and resolving it
// asynchronously.
package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mirix/internal/config"
	"mirix/internal/mirixerr"
	"mirix/internal/objectstore"
	"mirix/internal/persistence"
)

// Placeholder is returned immediately by SubmitAsync.
type Placeholder struct {
	ID      string
	Pending bool
}

// Result is what a placeholder eventually resolves to.
type Result struct {
	Blob objectstore.BlobRef
	Err  error
}

type job struct {
	placeholderID string
	localPath     string
	timestamp     time.Time
	orgID         string
}

// Manager is the UploadManager. A bounded pool of cfg.Workers
// goroutines drains an internal FIFO job channel (spec §4.1 algorithm).
type Manager struct {
	cfg   config.UploadConfig
	store persistence.Store
	blobs objectstore.BlobStore

	jobs chan job

	mu      sync.Mutex
	results map[string]Result
	seq     int

	wg sync.WaitGroup
}

// New starts cfg.Workers worker goroutines draining jobs; call Close to
// stop them.
func New(cfg config.UploadConfig, store persistence.Store, blobs objectstore.BlobStore) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	m := &Manager{
		cfg:     cfg,
		store:   store,
		blobs:   blobs,
		jobs:    make(chan job, 256),
		results: make(map[string]Result),
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// SubmitAsync never blocks: it enqueues the job and returns immediately.
func (m *Manager) SubmitAsync(localPath string, timestamp time.Time, orgID string) Placeholder {
	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("ph-%d", m.seq)
	m.mu.Unlock()

	m.jobs <- job{placeholderID: id, localPath: localPath, timestamp: timestamp, orgID: orgID}
	return Placeholder{ID: id, Pending: true}
}

// TryResolve polls without blocking.
func (m *Manager) TryResolve(p Placeholder) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[p.ID]
	return r, ok
}

// Wait blocks up to timeout for p to resolve.
func (m *Manager) Wait(ctx context.Context, p Placeholder, timeout time.Duration) (Result, error) {
	deadline := time.Now().Add(timeout)
	for {
		if r, ok := m.TryResolve(p); ok {
			return r, r.Err
		}
		if time.Now().After(deadline) {
			return Result{}, mirixerr.NewUploadTimeout(p.ID, timeout.String())
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Cleanup removes one resolved entry.
func (m *Manager) Cleanup(p Placeholder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, p.ID)
}

// Reconcile purges the resolved-results table once it exceeds
// cfg.CleanupThreshold (default 100); callers are responsible for
// having consumed the entries they need first.
func (m *Manager) Reconcile(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	threshold := m.cfg.CleanupThreshold
	if threshold <= 0 {
		threshold = 100
	}
	if len(m.results) > threshold {
		m.results = make(map[string]Result)
	}
}

// Close stops accepting new jobs and waits for in-flight ones to drain.
func (m *Manager) Close() {
	close(m.jobs)
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for j := range m.jobs {
		m.runJob(j)
	}
}

func (m *Manager) runJob(j job) {
	ctx := context.Background()

	if existing, err := m.store.GetCloudFileMappingByLocalPath(ctx, j.localPath); err == nil && existing.Status != persistence.CloudFileDeleted {
		m.publish(j.placeholderID, Result{Blob: objectstore.BlobRef{RemoteID: existing.CloudFileID, URI: existing.URI, CreatedAt: existing.Timestamp}})
		return
	}

	uploadPath := j.localPath
	if compressed, err := compressImage(j.localPath, m.cfg.compressMaxW(), m.cfg.compressMaxH(), m.cfg.compressQuality()); err == nil {
		uploadPath = compressed
	} else {
		log.Debug().Err(err).Str("path", j.localPath).Msg("upload: compression skipped, using original")
	}

	blob, err := m.uploadWithRetry(ctx, uploadPath)
	if err != nil && uploadPath != j.localPath {
		log.Warn().Err(err).Str("path", j.localPath).Msg("upload: compressed upload exhausted retries, falling back to original")
		blob, err = m.uploadWithRetry(ctx, j.localPath)
	}
	if err != nil {
		m.publish(j.placeholderID, Result{Err: mirixerr.NewUploadError(mirixerr.UploadPermanent, err)})
		return
	}

	_ = m.store.UpsertCloudFileMapping(ctx, &persistence.CloudFileMapping{
		Base:        persistence.Base{ID: blob.RemoteID, OrganizationID: j.orgID, CreatedAt: blob.CreatedAt},
		LocalFileID: j.localPath,
		CloudFileID: blob.RemoteID,
		URI:         blob.URI,
		Timestamp:   j.timestamp,
		Status:      persistence.CloudFileUploaded,
	})
	m.publish(j.placeholderID, Result{Blob: blob})
}

func (m *Manager) uploadWithRetry(ctx context.Context, path string) (objectstore.BlobRef, error) {
	maxRetries := m.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := time.Duration(m.cfg.RetryBackoffSeconds * float64(time.Second))
	if backoff <= 0 {
		backoff = time.Second
	}
	attemptTimeout := time.Duration(m.cfg.AttemptTimeoutSec * float64(time.Second))
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, attemptTimeout)
		blob, err := m.blobs.Upload(cctx, path)
		cancel()
		if err == nil {
			return blob, nil
		}
		lastErr = err
		if attempt < maxRetries-1 {
			time.Sleep(backoff)
		}
	}
	return objectstore.BlobRef{}, fmt.Errorf("upload %s: exhausted %d retries: %w", path, maxRetries, lastErr)
}

func (m *Manager) publish(placeholderID string, r Result) {
	m.mu.Lock()
	m.results[placeholderID] = r
	m.mu.Unlock()
}

func (c config.UploadConfig) compressMaxW() int {
	if c.CompressMaxWidth <= 0 {
		return 1920
	}
	return c.CompressMaxWidth
}

func (c config.UploadConfig) compressMaxH() int {
	if c.CompressMaxHeight <= 0 {
		return 1080
	}
	return c.CompressMaxHeight
}

func (c config.UploadConfig) compressQuality() int {
	if c.CompressQuality <= 0 {
		return 85
	}
	return c.CompressQuality
}
