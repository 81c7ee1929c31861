package core

import (
	"context"
	"errors"
	"sync/atomic"
)

// Executor carries out an approved proposal's effect. The engine only
// interprets success or failure; how the effect is dispatched is the
// implementation's concern.
type Executor interface {
	Execute(ctx context.Context, proposal *Proposal) (txHash string, err error)
}

var _ Executor = (*MockExecutor)(nil)

// MockExecutor is an in-memory executor for tests and off-chain setups.
type MockExecutor struct {
	// FailWith, when non-empty, makes every execution fail with this message
	FailWith string

	calls int64
}

func (m *MockExecutor) Execute(ctx context.Context, proposal *Proposal) (string, error) {
	atomic.AddInt64(&m.calls, 1)

	if m.FailWith != "" {
		return "", errors.New(m.FailWith)
	}

	return randomTxHash(), nil
}

// Calls returns how many times Execute was invoked.
func (m *MockExecutor) Calls() int64 {
	return atomic.LoadInt64(&m.calls)
}
