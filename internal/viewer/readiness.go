package viewer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/banshee-data/telemetry-gui/internal/fsutil"
	"github.com/banshee-data/telemetry-gui/internal/monitoring"
)

// ReadyContent is written into the readiness marker file.
const ReadyContent = "websocket_gui=ready"

// ReadinessMarker announces to co-located processes that the channel is
// bound, by writing a small marker file.
type ReadinessMarker struct {
	fs    fsutil.FileSystem
	path  string
	retry time.Duration
}

// NewReadinessMarker returns a marker that writes to path (with "~"
// expanded) and retries every retry on failure.
func NewReadinessMarker(fsys fsutil.FileSystem, path string, retry time.Duration) (*ReadinessMarker, error) {
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	return &ReadinessMarker{fs: fsys, path: expanded, retry: retry}, nil
}

// Path returns the expanded marker path.
func (r *ReadinessMarker) Path() string { return r.path }

// MarkReady writes the marker, retrying until it succeeds or ctx ends.
// Write failures are logged, never returned; only cancellation is.
func (r *ReadinessMarker) MarkReady(ctx context.Context) error {
	attempt := 0
	for {
		attempt++
		err := r.fs.MkdirAll(filepath.Dir(r.path), 0755)
		if err == nil {
			err = r.fs.WriteFile(r.path, []byte(ReadyContent), 0644)
		}
		if err == nil {
			if attempt > 1 {
				monitoring.Logf("[Viewer] Readiness marker written to %s after %d attempts", r.path, attempt)
			} else {
				monitoring.Logf("[Viewer] Readiness marker written to %s", r.path)
			}
			return nil
		}
		if attempt == 1 || attempt%50 == 0 {
			monitoring.Logf("[Viewer] Readiness marker write failed (attempt %d), retrying: %v", attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retry):
		}
	}
}

// Clear removes the marker. A missing marker is not an error.
func (r *ReadinessMarker) Clear() {
	if !r.fs.Exists(r.path) {
		return
	}
	if err := r.fs.Remove(r.path); err != nil {
		monitoring.Logf("[Viewer] Failed to remove readiness marker %s: %v", r.path, err)
	}
}
