package api

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bpfgate/bpfgate/internal/engine"
	"github.com/bpfgate/bpfgate/internal/exec"
	"github.com/bpfgate/bpfgate/internal/vm"
)

type MockSlot struct {
	mock.Mock
}

func (m *MockSlot) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSlot) SetActive(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSlot) ReadActive() ([]byte, error) {
	args := m.Called()
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockLocator struct {
	mock.Mock
}

func (m *MockLocator) Find(id string) (Slot, error) {
	args := m.Called(id)
	if s := args.Get(0); s != nil {
		return s.(Slot), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Prepare(ctx engine.ExecContext) (*engine.Prepared, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(*engine.Prepared), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockExecutor) Run(p *engine.Prepared, callerBlob []byte) (vm.Outcome, time.Duration) {
	args := m.Called(p, callerBlob)
	return args.Get(0).(vm.Outcome), args.Get(1).(time.Duration)
}

type MockUpdateSubmitter struct {
	mock.Mock
}

func (m *MockUpdateSubmitter) Submit(uri string) bool {
	args := m.Called(uri)
	return args.Bool(0)
}

type MockExecPool struct {
	mock.Mock
}

func (m *MockExecPool) Enqueue(req exec.Request) (string, error) {
	args := m.Called(req)
	return args.String(0), args.Error(1)
}

func (m *MockExecPool) Results() []exec.Result {
	args := m.Called()
	if r := args.Get(0); r != nil {
		return r.([]exec.Result)
	}
	return nil
}
