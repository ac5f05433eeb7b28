// Package update runs the background image fetcher. Handlers submit fetch
// URIs fire-and-forget; a single worker goroutine downloads each image and
// writes it into the target storage slot. A slow download never blocks the
// request-handling path.
package update

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ImageWriter is the storage the worker applies fetched images to.
type ImageWriter interface {
	SaveImage(ctx context.Context, slot string, data []byte) error
}

type job struct {
	uri  string
	slot string
}

type Worker struct {
	jobs     chan job
	client   *http.Client
	store    ImageWriter
	slot     string
	maxBytes int64
	logger   *slog.Logger
}

func New(st ImageWriter, targetSlot string, fetchTimeout time.Duration, maxImageBytes int, queueSize int, logger *slog.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 8
	}
	return &Worker{
		jobs:     make(chan job, queueSize),
		client:   &http.Client{Timeout: fetchTimeout},
		store:    st,
		slot:     targetSlot,
		maxBytes: int64(maxImageBytes),
		logger:   logger,
	}
}

// Submit queues a fetch without blocking. It returns false when the queue is
// full; the caller decides how to report that. Completion of the fetch is
// never awaited.
func (w *Worker) Submit(uri string) bool {
	select {
	case w.jobs <- job{uri: uri, slot: w.slot}:
		return true
	default:
		return false
	}
}

// Run consumes queued fetches until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("update worker started", "target_slot", w.slot)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("update worker stopped")
			return
		case j := <-w.jobs:
			if err := w.fetchAndApply(ctx, j); err != nil {
				w.logger.Error("update fetch failed", "uri", j.uri, "slot", j.slot, "error", err)
				continue
			}
			w.logger.Info("update applied", "uri", j.uri, "slot", j.slot)
		}
	}
}

func (w *Worker) fetchAndApply(ctx context.Context, j job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.uri, nil)
	if err != nil {
		return fmt.Errorf("building fetch request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBytes+1))
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	if int64(len(data)) > w.maxBytes {
		return fmt.Errorf("image exceeds %d byte limit", w.maxBytes)
	}
	if len(data) == 0 {
		return fmt.Errorf("fetched image is empty")
	}

	if err := w.store.SaveImage(ctx, j.slot, data); err != nil {
		return fmt.Errorf("applying image: %w", err)
	}
	return nil
}
