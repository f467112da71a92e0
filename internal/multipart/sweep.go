package multipart

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// SweepResult summarizes one pass of the stale-upload sweep.
type SweepResult struct {
	UploadsScanned int
	UploadsRemoved int
}

// Sweep removes uploads whose manifest is older than staleAfter. There is
// no corrupt-upload detection or temp-file GC beyond that; this server
// relies on the rename-based part commit to avoid ever leaving a *.tmp
// file behind.
func (s *Store) Sweep(ctx context.Context, now time.Time, staleAfter time.Duration) (SweepResult, error) {
	entries, _, err := s.meta.ScanPrefix(manifestPrefix, "", 0)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.UploadsScanned++

		var m manifest
		if err := json.Unmarshal(e.Value, &m); err != nil {
			continue
		}
		if now.Sub(m.CreatedAt) < staleAfter {
			continue
		}
		if err := s.removeUpload(m.Bucket, m.UploadID); err != nil {
			continue
		}
		result.UploadsRemoved++
	}
	return result, nil
}

// Run starts a goroutine that sweeps every interval until ctx is canceled.
// interval <= 0 disables the sweeper and Run returns a no-op cancel func.
func (s *Store) Run(ctx context.Context, interval, staleAfter time.Duration, logger *slog.Logger) context.CancelFunc {
	if interval <= 0 {
		return func() {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				res, err := s.Sweep(ctx, t.UTC(), staleAfter)
				if err != nil {
					logger.Warn("multipart sweep failed", "error", err)
					continue
				}
				logger.Info("multipart sweep completed",
					"uploads_scanned", res.UploadsScanned,
					"uploads_removed", res.UploadsRemoved,
				)
			}
		}
	}()
	return cancel
}
