package coordinator

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ClearOldScreenshots trims the tracked-URI cache down to
// cfg.MaximumImagesInCloud, deleting the oldest excess from the blob
// provider (spec §4.6): only runs while the MessageQueue is idle, so a
// deletion never races a flush still building a prompt from one of
// these URIs.
func (c *Coordinator) ClearOldScreenshots(ctx context.Context) error {
	c.mu.RLock()
	keep := c.cfg.MaximumImagesInCloud
	idle := c.queue.Idle()
	c.mu.RUnlock()

	if !idle {
		return nil
	}
	if keep <= 0 || c.accumulator.TrackedURICount() <= keep {
		return nil
	}

	excess := c.accumulator.OldestExcessBlobs(keep)
	for _, blob := range excess {
		c.accumulator.UntrackURI(blob.URI)
		go func(remoteID string) {
			if err := c.blobs.Delete(context.Background(), remoteID); err != nil {
				log.Warn().Err(err).Str("remote_id", remoteID).Msg("coordinator: clear old screenshots: delete failed")
			}
		}(blob.RemoteID)
	}
	return nil
}
