// Package engine drives the sandbox VM for one execution at a time. An
// Engine owns a single stack buffer reused across runs, so executions are
// strictly serialized: Prepare acquires the engine and Run releases it.
// Callers needing parallel executions create one Engine per worker instead
// of sharing (see the exec package).
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bpfgate/bpfgate/internal/vm"
)

// Sentinel errors
var (
	ErrPrepare = errors.New("prepare failed")
)

// MaxRegions bounds the number of caller-declared regions per execution.
const MaxRegions = 4

const (
	// DefaultStackSize matches the fixed VM stack of the reference device.
	DefaultStackSize = 512
	// DefaultBranchBudget bounds control-flow instructions per run.
	DefaultBranchBudget = 100
)

// RegionSpec declares one memory region the program may touch. Regions are
// registered in the order given; their index is the numbered slot the
// program sees.
type RegionSpec struct {
	Buf  []byte
	Perm vm.Perm
}

// ExecContext carries everything one execution needs. It is built per
// request and must not be reused: the region buffers typically borrow from
// request-scoped memory.
type ExecContext struct {
	Bytecode []byte
	Regions  []RegionSpec
}

// Prepared is a validated, ready-to-run execution. It holds the engine lock
// until consumed by Run.
type Prepared struct {
	prog  []byte
	table *vm.RegionTable
}

type Engine struct {
	mu      sync.Mutex
	stack   []byte
	budget  int
	helpers map[int32]vm.HelperFn
}

// New creates an engine with the given stack size and branch budget.
// Non-positive values fall back to the defaults.
func New(stackSize, branchBudget int) *Engine {
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	if branchBudget <= 0 {
		branchBudget = DefaultBranchBudget
	}
	return &Engine{
		stack:   make([]byte, stackSize),
		budget:  branchBudget,
		helpers: defaultHelpers(),
	}
}

// Prepare validates ctx and acquires the engine for one run. It fails
// closed: nothing is executed unless the bytecode and every region pass
// validation. On success the caller must invoke Run exactly once; on error
// the engine is released immediately.
func (e *Engine) Prepare(ctx ExecContext) (*Prepared, error) {
	if len(ctx.Bytecode) == 0 {
		return nil, fmt.Errorf("%w: empty bytecode", ErrPrepare)
	}
	if len(ctx.Bytecode)%vm.InstSize != 0 {
		return nil, fmt.Errorf("%w: bytecode length %d is not a multiple of %d", ErrPrepare, len(ctx.Bytecode), vm.InstSize)
	}
	if len(ctx.Regions) > MaxRegions {
		return nil, fmt.Errorf("%w: %d regions exceed maximum of %d", ErrPrepare, len(ctx.Regions), MaxRegions)
	}

	e.mu.Lock()
	table := vm.NewRegionTable()
	for i, spec := range ctx.Regions {
		if len(spec.Buf) == 0 {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: region %d is empty", ErrPrepare, i)
		}
		if _, err := table.Add(spec.Buf, spec.Perm); err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: region %d: %v", ErrPrepare, i, err)
		}
	}

	return &Prepared{prog: ctx.Bytecode, table: table}, nil
}

// Run executes a prepared context and releases the engine. The caller blob
// is copied by value into the sandbox's address space and its address placed
// in r1. Elapsed time brackets the VM run with a monotonic clock and is
// informational only.
func (e *Engine) Run(p *Prepared, callerBlob []byte) (vm.Outcome, time.Duration) {
	defer e.mu.Unlock()

	// Fresh zeroed stack every run; one execution must never observe
	// another's stack contents.
	clear(e.stack)
	stackSlot, err := p.table.Add(e.stack, vm.PermRead|vm.PermWrite)
	if err != nil {
		return vm.Outcome{Code: vm.Faulted, FaultReason: err.Error()}, 0
	}
	frameTop := p.table.Base(stackSlot) + uint64(len(e.stack))

	var ctxAddr uint64
	if len(callerBlob) > 0 {
		arg := make([]byte, len(callerBlob))
		copy(arg, callerBlob)
		argSlot, err := p.table.Add(arg, vm.PermRead|vm.PermWrite)
		if err != nil {
			return vm.Outcome{Code: vm.Faulted, FaultReason: err.Error()}, 0
		}
		ctxAddr = p.table.Base(argSlot)
	}

	m := &vm.Machine{Table: p.table, Budget: e.budget, Helpers: e.helpers}

	start := time.Now()
	out := m.Run(p.prog, ctxAddr, frameTop)
	elapsed := time.Since(start)

	return out, elapsed
}

// Helper identifiers available to sandboxed programs.
const (
	HelperNowUsec int32 = 0x30
)

func defaultHelpers() map[int32]vm.HelperFn {
	return map[int32]vm.HelperFn{
		HelperNowUsec: func(r1, r2, r3, r4, r5 uint64) uint64 {
			return uint64(time.Now().UnixMicro())
		},
	}
}
