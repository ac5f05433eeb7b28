// Package exec manages long-running background VM executions. A fixed pool
// of workers consumes queued requests; each worker owns its own engine
// instance, so background runs proceed in parallel without contending for
// the gateway's shared engine or its stack buffer.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bpfgate/bpfgate/internal/engine"
	"github.com/bpfgate/bpfgate/internal/storage"
)

// Sentinel errors
var (
	ErrQueueFull = errors.New("execution queue is full")
)

// Locator resolves slot ids; satisfied by *storage.Locator.
type Locator interface {
	Find(id string) (*storage.Slot, error)
}

// Request asks for one background execution of the image in Slot.
type Request struct {
	Slot string `json:"slot"`
}

// Result records how one background execution ended.
type Result struct {
	ID              string    `json:"id"`
	Slot            string    `json:"slot"`
	Outcome         string    `json:"outcome,omitempty"`
	Result          int64     `json:"result"`
	ExecutionTimeUs int64     `json:"execution_time"`
	CompletedAt     time.Time `json:"completed_at"`
	Error           string    `json:"error,omitempty"`
}

type queued struct {
	id   string
	slot string
}

type Manager struct {
	locator Locator
	engines []*engine.Engine
	jobs    chan queued
	logger  *slog.Logger

	mu      sync.Mutex
	history int
	results []Result
}

// NewManager builds a manager with one dedicated engine per worker.
func NewManager(loc Locator, workers, queueSize, history, stackSize, branchBudget int, logger *slog.Logger) *Manager {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	if history <= 0 {
		history = 32
	}
	engines := make([]*engine.Engine, workers)
	for i := range engines {
		engines[i] = engine.New(stackSize, branchBudget)
	}
	return &Manager{
		locator: loc,
		engines: engines,
		jobs:    make(chan queued, queueSize),
		history: history,
		logger:  logger,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("execution pool started", "workers", len(m.engines))
	for i, e := range m.engines {
		go m.worker(ctx, i, e)
	}
}

// Enqueue validates the request and queues it without blocking. The returned
// id identifies the job in later results.
func (m *Manager) Enqueue(req Request) (string, error) {
	if _, err := m.locator.Find(req.Slot); err != nil {
		return "", err
	}

	id := uuid.New().String()[:8]
	select {
	case m.jobs <- queued{id: id, slot: req.Slot}:
		return id, nil
	default:
		return "", ErrQueueFull
	}
}

// Results returns the most recent execution results, newest first.
func (m *Manager) Results() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Result, len(m.results))
	copy(out, m.results)
	return out
}

func (m *Manager) worker(ctx context.Context, n int, e *engine.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.jobs:
			res := m.execute(ctx, j, e)
			m.record(res)
			if res.Error != "" {
				m.logger.Error("background execution failed",
					"worker", n, "job_id", res.ID, "slot", res.Slot, "error", res.Error)
				continue
			}
			m.logger.Info("background execution finished",
				"worker", n, "job_id", res.ID, "slot", res.Slot,
				"outcome", res.Outcome, "result", res.Result,
				"execution_time_us", res.ExecutionTimeUs)
		}
	}
}

func (m *Manager) execute(ctx context.Context, j queued, e *engine.Engine) Result {
	res := Result{ID: j.id, Slot: j.slot}

	slot, err := m.locator.Find(j.slot)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := slot.SetActive(ctx); err != nil {
		res.Error = err.Error()
		return res
	}
	image, err := slot.ReadActive()
	if err != nil {
		res.Error = err.Error()
		return res
	}

	// Background runs are raw executions: no packet to expose, so no
	// caller-declared regions and no context blob.
	prep, err := e.Prepare(engine.ExecContext{Bytecode: image})
	if err != nil {
		res.Error = fmt.Sprintf("prepare: %v", err)
		return res
	}
	out, elapsed := e.Run(prep, nil)

	res.Outcome = out.Code.String()
	res.Result = out.Result
	res.ExecutionTimeUs = elapsed.Microseconds()
	return res
}

// record stamps completion time and prepends res to the bounded history.
func (m *Manager) record(res Result) {
	res.CompletedAt = time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append([]Result{res}, m.results...)
	if len(m.results) > m.history {
		m.results = m.results[:m.history]
	}
}
