package llm

import (
	"context"
	"sync/atomic"
)

// MockGenerator returns a fixed answer and counts invocations. Test use only.
type MockGenerator struct {
	Answer string
	Err    error
	calls  atomic.Int64
}

func (m *MockGenerator) Generate(ctx context.Context, question string, contexts []string) (string, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Answer, nil
}

func (m *MockGenerator) Close() error { return nil }

// Calls reports how many times Generate ran.
func (m *MockGenerator) Calls() int64 { return m.calls.Load() }
