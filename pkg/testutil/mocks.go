// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/minted-network/escrow_layer/internal/app/domain/token"
)

// LedgerCall records one invocation on the mock ledger.
type LedgerCall struct {
	Method        string
	Owner         string
	Name          string
	CorrelationID string
	AssetID       string
	HookAddress   string
	To            string
	Amount        token.Coin
	MintAmount    uint64
}

// MockLedger is a test implementation of the escrow Ledger interface. It
// records every call and can be told to fail specific methods, either on
// every invocation or on a single numbered one.
type MockLedger struct {
	mu     sync.Mutex
	calls  []LedgerCall
	counts map[string]int
	fail   map[string]error
	failOn map[string]map[int]error
}

// NewMockLedger creates an empty mock ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		counts: make(map[string]int),
		fail:   make(map[string]error),
		failOn: make(map[string]map[int]error),
	}
}

// FailWith makes the named method return the given error on every call.
func (m *MockLedger) FailWith(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[method] = err
}

// FailOn makes the nth call (1-based) to the named method return the given
// error. Other calls to the method succeed.
func (m *MockLedger) FailOn(method string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[method] == nil {
		m.failOn[method] = make(map[int]error)
	}
	m.failOn[method][n] = err
}

// Calls returns a copy of all recorded calls.
func (m *MockLedger) Calls() []LedgerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LedgerCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls for one method.
func (m *MockLedger) CallsTo(method string) []LedgerCall {
	var out []LedgerCall
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockLedger) record(call LedgerCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[call.Method]++
	if err := m.failOn[call.Method][m.counts[call.Method]]; err != nil {
		return err
	}
	if err := m.fail[call.Method]; err != nil {
		return err
	}
	m.calls = append(m.calls, call)
	return nil
}

func (m *MockLedger) CreateAssetClass(_ context.Context, owner, name, correlationID string) error {
	return m.record(LedgerCall{
		Method:        "CreateAssetClass",
		Owner:         owner,
		Name:          name,
		CorrelationID: correlationID,
	})
}

func (m *MockLedger) Mint(_ context.Context, assetID string, amount uint64, to string) error {
	return m.record(LedgerCall{
		Method:     "Mint",
		AssetID:    assetID,
		MintAmount: amount,
		To:         to,
	})
}

func (m *MockLedger) RegisterTransferHook(_ context.Context, assetID, hookAddress string) error {
	return m.record(LedgerCall{
		Method:      "RegisterTransferHook",
		AssetID:     assetID,
		HookAddress: hookAddress,
	})
}

func (m *MockLedger) Send(_ context.Context, to string, amount token.Coin) error {
	return m.record(LedgerCall{
		Method: "Send",
		To:     to,
		Amount: amount,
	})
}

// LastCorrelationID returns the correlation id of the most recent
// CreateAssetClass call, or an error when none was made.
func (m *MockLedger) LastCorrelationID() (string, error) {
	calls := m.CallsTo("CreateAssetClass")
	if len(calls) == 0 {
		return "", fmt.Errorf("no CreateAssetClass call recorded")
	}
	return calls[len(calls)-1].CorrelationID, nil
}
