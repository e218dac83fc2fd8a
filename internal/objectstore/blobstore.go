// Package objectstore also exposes BlobStore, the narrower external
// contract named in the spec: upload(localPath) -> {remoteID, uri,
// createdAt}, delete(remoteID), list(). It adapts the richer ObjectStore
// (S3Store or MemoryStore) rather than duplicating the wire protocol.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// BlobRef describes one uploaded blob.
type BlobRef struct {
	RemoteID  string
	URI       string
	CreatedAt time.Time
}

// BlobStore is the UploadManager's external collaborator: it knows
// nothing about compression or retries, only put/delete/list.
type BlobStore interface {
	Upload(ctx context.Context, localPath string) (BlobRef, error)
	Delete(ctx context.Context, remoteID string) error
	List(ctx context.Context) ([]BlobRef, error)
}

// blobPrefix is the key prefix of every object the Adapter uploads; List
// filters on it, so no side table of remote ids is needed.
const blobPrefix = "blobs/"

// Adapter implements BlobStore on top of any ObjectStore, keying objects
// by a generated UUID so repeated uploads of the same local file never
// collide.
type Adapter struct {
	store    ObjectStore
	bucket   string
	uriStyle string // "s3" renders s3://bucket/key, anything else renders key verbatim
}

// NewAdapter wraps store as a BlobStore. bucket is used only to build a
// human-readable URI; the ObjectStore itself already knows its bucket.
func NewAdapter(store ObjectStore, bucket string) *Adapter {
	return &Adapter{store: store, bucket: bucket, uriStyle: "s3"}
}

func (a *Adapter) Upload(ctx context.Context, localPath string) (BlobRef, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return BlobRef{}, fmt.Errorf("blobstore: open %s: %w", localPath, err)
	}
	defer f.Close()

	remoteID := blobPrefix + uuid.NewString() + filepath.Ext(localPath)
	if _, err := a.store.Put(ctx, remoteID, f, PutOptions{}); err != nil {
		return BlobRef{}, fmt.Errorf("blobstore: put %s: %w", remoteID, err)
	}

	attrs, err := a.store.Head(ctx, remoteID)
	if err != nil {
		return BlobRef{}, fmt.Errorf("blobstore: head %s: %w", remoteID, err)
	}

	return BlobRef{
		RemoteID:  remoteID,
		URI:       a.uri(remoteID),
		CreatedAt: attrs.LastModified,
	}, nil
}

func (a *Adapter) Delete(ctx context.Context, remoteID string) error {
	if err := a.store.Delete(ctx, remoteID); err != nil {
		return fmt.Errorf("blobstore: delete %s: %w", remoteID, err)
	}
	return nil
}

func (a *Adapter) List(ctx context.Context) ([]BlobRef, error) {
	var refs []BlobRef
	token := ""
	for {
		res, err := a.store.List(ctx, ListOptions{Prefix: blobPrefix, ContinuationToken: token, MaxKeys: 1000})
		if err != nil {
			return nil, fmt.Errorf("blobstore: list: %w", err)
		}
		for _, obj := range res.Objects {
			refs = append(refs, BlobRef{
				RemoteID:  obj.Key,
				URI:       a.uri(obj.Key),
				CreatedAt: obj.LastModified,
			})
		}
		if !res.IsTruncated {
			break
		}
		token = res.NextContinuationToken
	}
	return refs, nil
}

func (a *Adapter) uri(remoteID string) string {
	if a.uriStyle == "s3" {
		return "s3://" + a.bucket + "/" + remoteID
	}
	return remoteID
}

var _ BlobStore = (*Adapter)(nil)
