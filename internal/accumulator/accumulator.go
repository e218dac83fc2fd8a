// Package accumulator implements the TemporaryAccumulator (spec §4.3):
// it buffers arriving observations in arrival order, waits for their
// media uploads to resolve, and decides when enough of the buffer's
// ordered prefix is ready to flush into a batched multi-modal prompt.
//
// The whole component is a single mutex-guarded struct (spec §5): every
// exported method takes the lock, mutates, and releases before doing
// any network call ("mutate-then-release"), grounded in
// original_source/mirix/agent/temporary_message_accumulator.py's
// lock-guarded buffer and upload_start_times bookkeeping.
package accumulator

import (
	"context"
	"sort"
	"sync"
	"time"

	"mirix/internal/config"
	"mirix/internal/objectstore"
	"mirix/internal/transcriber"
	"mirix/internal/upload"
)

// Uploader is the subset of upload.Manager the accumulator needs; a
// narrow interface so tests can substitute a fake with controllable
// timing.
type Uploader interface {
	SubmitAsync(localPath string, timestamp time.Time, orgID string) upload.Placeholder
	TryResolve(p upload.Placeholder) (upload.Result, bool)
	Wait(ctx context.Context, p upload.Placeholder, timeout time.Duration) (upload.Result, error)
}

// RawObservation is what a caller hands to Add: local media paths plus
// any already-materialized text/audio.
type RawObservation struct {
	ImagePaths []string
	Audio      []transcriber.AudioSegment
	Text       string
}

// bufferImage tracks one image's placeholder through to resolution.
type bufferImage struct {
	placeholder upload.Placeholder
	resolved    *objectstore.BlobRef
	err         error
}

// bufferEntry is one buffered observation.
type bufferEntry struct {
	timestamp time.Time
	images    []*bufferImage
	audio     []transcriber.AudioSegment
	text      string
}

// ReadyObservation is one fully-resolved buffered entry, handed to
// Flush's prompt assembly.
type ReadyObservation struct {
	Timestamp time.Time
	Images    []TimestampedBlob
	Audio     []transcriber.AudioSegment
	Text      string
}

// TimestampedBlob pairs a resolved image with the timestamp of the
// observation it belonged to, as required by the prompt's per-image
// "Timestamp: {ts} Image Index {i}:" marker (spec §4.3.1).
type TimestampedBlob struct {
	Timestamp time.Time
	Blob      objectstore.BlobRef
}

// Snippet is one user<->assistant exchange that happened concurrently
// with the current buffering window (spec §4.3.1 part 4).
type Snippet struct {
	Timestamp time.Time
	Role      string
	Text      string
}

// Accumulator is the TemporaryAccumulator.
type Accumulator struct {
	mu sync.Mutex

	cfg      config.AccumulatorConfig
	orgID    string
	uploader Uploader

	buffer         []*bufferEntry
	uploadStartAt  map[string]time.Time // placeholder id -> when it entered uploadStartAt
	snippets       []Snippet

	// uriBlobs is the cache Coordinator.ClearOldScreenshots reads and
	// mutates (spec §9 Open Question 1): the same mutex that guards the
	// buffer also guards this map, since both are "shared between the
	// coordinator and accumulator" per spec §5. Keyed by URI so lookups
	// from RecentImagesForChat's TimestampedBlob values are direct; the
	// BlobRef value retains RemoteID for the eventual blobs.Delete call.
	uriBlobs map[string]objectstore.BlobRef
}

// New creates an empty Accumulator bound to uploader for media
// resolution.
func New(cfg config.AccumulatorConfig, orgID string, uploader Uploader) *Accumulator {
	if cfg.TemporaryMessageLimit <= 0 {
		cfg.TemporaryMessageLimit = 10
	}
	if cfg.UploadTimeoutSeconds <= 0 {
		cfg.UploadTimeoutSeconds = 10
	}
	return &Accumulator{
		cfg:           cfg,
		orgID:         orgID,
		uploader:      uploader,
		uploadStartAt: make(map[string]time.Time),
		uriBlobs:      make(map[string]objectstore.BlobRef),
	}
}

// TrackURI records blob's create time in the shared cache, called once
// an upload resolves successfully.
func (a *Accumulator) TrackURI(blob objectstore.BlobRef) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uriBlobs[blob.URI] = blob
}

// UntrackURI removes uri from the cache, called after it has been
// deleted from the blob provider.
func (a *Accumulator) UntrackURI(uri string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.uriBlobs, uri)
}

// TrackedURICount reports how many URIs are currently cached.
func (a *Accumulator) TrackedURICount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.uriBlobs)
}

// OldestExcessBlobs returns the oldest-by-create-time blobs beyond keep,
// the selection Coordinator.ClearOldScreenshots needs (spec §4.6): "if
// the tracked URI map exceeds MAXIMUM_NUM_IMAGES_IN_CLOUD ... select the
// oldest excess by create_time".
func (a *Accumulator) OldestExcessBlobs(keep int) []objectstore.BlobRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.uriBlobs) <= keep {
		return nil
	}
	blobs := make([]objectstore.BlobRef, 0, len(a.uriBlobs))
	for _, b := range a.uriBlobs {
		blobs = append(blobs, b)
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].CreatedAt.Before(blobs[j].CreatedAt) })
	excess := len(blobs) - keep
	return blobs[:excess]
}

// SetUploader swaps the Uploader a running Accumulator submits to,
// used when Coordinator.ProvideAPIKey rebuilds the UploadManager after
// a blob-provider credential change. In-flight placeholders minted by
// the old uploader keep resolving against whichever Uploader value was
// captured at submission time by the caller holding it.
func (a *Accumulator) SetUploader(uploader Uploader) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploader = uploader
}

func (a *Accumulator) uploadTimeout() time.Duration {
	return time.Duration(a.cfg.UploadTimeoutSeconds * float64(time.Second))
}

// Add appends obs to the buffer in arrival order. When async is true,
// image fields are submitted to the uploader and tracked as
// placeholders; when false, Add blocks until every image resolves (or
// times out) before returning (spec §4.3 Add).
func (a *Accumulator) Add(ctx context.Context, obs RawObservation, timestamp time.Time, async bool) error {
	images := make([]*bufferImage, 0, len(obs.ImagePaths))
	for _, path := range obs.ImagePaths {
		ph := a.uploader.SubmitAsync(path, timestamp, a.orgID)
		bi := &bufferImage{placeholder: ph}
		if !async {
			res, err := a.uploader.Wait(ctx, ph, a.uploadTimeout())
			if err != nil {
				bi.err = err
			} else {
				blob := res.Blob
				bi.resolved = &blob
			}
		}
		images = append(images, bi)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = append(a.buffer, &bufferEntry{
		timestamp: timestamp,
		images:    images,
		audio:     obs.Audio,
		text:      obs.Text,
	})
	now := time.Now()
	for _, bi := range images {
		if bi.resolved == nil && bi.err == nil {
			a.uploadStartAt[bi.placeholder.ID] = now
		} else if bi.resolved != nil {
			a.uriBlobs[bi.resolved.URI] = *bi.resolved
		}
	}
	return nil
}

// DetectTimeouts evicts any buffered entry that has an image pending
// longer than cfg.UploadTimeoutSeconds (spec §4.3 DetectTimeouts). Call
// before ShouldFlush and before RecentImagesForChat.
func (a *Accumulator) DetectTimeouts() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detectTimeoutsLocked(time.Now())
}

func (a *Accumulator) detectTimeoutsLocked(now time.Time) {
	timeout := a.uploadTimeout()
	kept := a.buffer[:0]
	for _, e := range a.buffer {
		evict := false
		for _, bi := range e.images {
			if bi.resolved == nil && bi.err == nil {
				start, tracked := a.uploadStartAt[bi.placeholder.ID]
				if tracked && now.Sub(start) > timeout {
					evict = true
				}
			}
		}
		if evict {
			for _, bi := range e.images {
				delete(a.uploadStartAt, bi.placeholder.ID)
			}
			continue
		}
		kept = append(kept, e)
	}
	a.buffer = kept
}

// resolveLocked polls the uploader for every still-pending image in e,
// filling in bi.resolved/bi.err. Must be called with a.mu held.
func (a *Accumulator) resolveLocked(e *bufferEntry) {
	for _, bi := range e.images {
		if bi.resolved != nil || bi.err != nil {
			continue
		}
		if res, ok := a.uploader.TryResolve(bi.placeholder); ok {
			if res.Err != nil {
				bi.err = res.Err
			} else {
				blob := res.Blob
				bi.resolved = &blob
				a.uriBlobs[blob.URI] = blob
			}
			delete(a.uploadStartAt, bi.placeholder.ID)
		}
	}
}

func (e *bufferEntry) fullyResolved() bool {
	for _, bi := range e.images {
		if bi.resolved == nil && bi.err == nil {
			return false
		}
	}
	return true
}

func (e *bufferEntry) toReady() ReadyObservation {
	ro := ReadyObservation{Timestamp: e.timestamp, Audio: e.audio, Text: e.text}
	for _, bi := range e.images {
		if bi.resolved != nil {
			ro.Images = append(ro.Images, TimestampedBlob{Timestamp: e.timestamp, Blob: *bi.resolved})
		}
		// Images whose upload permanently failed (bi.err != nil) are
		// silently dropped from the prompt -- upload errors are
		// non-fatal to the system (spec §4.1 Failure semantics).
	}
	return ro
}

// ShouldFlush scans the buffer in temporal order. As soon as any entry
// has an unresolved image, scanning stops -- no later entry is ever
// considered ready even if it happens to be fully resolved already
// (spec §4.3 "Temporal-order rule", tested by §8's invariant and
// scenario 1). If the resolved prefix has at least limit entries, it is
// returned; otherwise ShouldFlush returns nil without mutating the
// buffer -- trimming only happens in Flush.
func (a *Accumulator) ShouldFlush(limit int) []ReadyObservation {
	if limit <= 0 {
		limit = a.cfg.TemporaryMessageLimit
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var ready []ReadyObservation
	for _, e := range a.buffer {
		a.resolveLocked(e)
		if !e.fullyResolved() {
			break
		}
		ready = append(ready, e.toReady())
	}
	if len(ready) < limit {
		return nil
	}
	return ready
}

// RecentImagesForChat returns the last up-to-limit resolved images in
// the buffer, skipping still-pending ones, for inclusion in a live chat
// prompt (spec §4.3 RecentImagesForChat).
func (a *Accumulator) RecentImagesForChat(limit int) []TimestampedBlob {
	if limit <= 0 {
		limit = a.cfg.TemporaryMessageLimit
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []TimestampedBlob
	for _, e := range a.buffer {
		a.resolveLocked(e)
		for _, bi := range e.images {
			if bi.resolved != nil {
				out = append(out, TimestampedBlob{Timestamp: e.timestamp, Blob: *bi.resolved})
			}
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// RecordSnippet appends a user<->assistant exchange observed while the
// buffer is accumulating. Snippets are held until Trim clears them;
// nothing reads them back, so the flush prompt the Coordinator builds
// carries no snippet block.
func (a *Accumulator) RecordSnippet(s Snippet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snippets = append(a.snippets, s)
}

// Trim removes the given count of entries from the head of the buffer
// and clears the snippet list, the bookkeeping Flush performs after a
// successful dispatch (spec §4.3 Flush). Callers are responsible for
// having already dispatched the prompt built from those entries.
func (a *Accumulator) Trim(count int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if count > len(a.buffer) {
		count = len(a.buffer)
	}
	a.buffer = a.buffer[count:]
	a.snippets = nil
}

// Len reports the current buffer length, for tests and health checks.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}
