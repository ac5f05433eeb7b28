package api

import (
	"context"
	"time"

	"github.com/bpfgate/bpfgate/internal/engine"
	"github.com/bpfgate/bpfgate/internal/exec"
	"github.com/bpfgate/bpfgate/internal/storage"
	"github.com/bpfgate/bpfgate/internal/vm"
)

// Slot is one locatable storage slot as seen by handlers.
type Slot interface {
	ID() string
	SetActive(ctx context.Context) error
	ReadActive() ([]byte, error)
}

// Locator resolves slot identifiers to slots.
type Locator interface {
	Find(id string) (Slot, error)
}

// Executor abstracts the execution engine for handlers.
type Executor interface {
	Prepare(ctx engine.ExecContext) (*engine.Prepared, error)
	Run(p *engine.Prepared, callerBlob []byte) (vm.Outcome, time.Duration)
}

// UpdateSubmitter hands a fetch URI to the background update worker without
// waiting for the fetch.
type UpdateSubmitter interface {
	Submit(uri string) bool
}

// ExecPool abstracts the background execution manager.
type ExecPool interface {
	Enqueue(req exec.Request) (string, error)
	Results() []exec.Result
}

// NewStorageLocator adapts the concrete storage locator to the handler-facing
// interface.
func NewStorageLocator(loc *storage.Locator) Locator {
	return storageLocator{loc}
}

type storageLocator struct {
	loc *storage.Locator
}

func (l storageLocator) Find(id string) (Slot, error) {
	s, err := l.loc.Find(id)
	if err != nil {
		return nil, err
	}
	return s, nil
}
