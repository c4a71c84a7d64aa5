// Package store provides an in-memory Store implementation (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of ledger.ClientStore
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	clients      map[ledger.ClientID]ledger.Client
	transactions map[ledger.ClientID][]ledger.CreditTransaction
	logs         map[logKey]ledger.DailyConsumptionLog
}

type logKey struct {
	ClientID ledger.ClientID
	Date     string
}

func NewMemory() *Memory {
	return &Memory{
		clients:      make(map[ledger.ClientID]ledger.Client),
		transactions: make(map[ledger.ClientID][]ledger.CreditTransaction),
		logs:         make(map[logKey]ledger.DailyConsumptionLog),
	}
}

// =============================================================================
// CORE STORE (ledger.Store interface)
// =============================================================================

func (m *Memory) GetClient(_ context.Context, id ledger.ClientID) (*ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ledger.ErrClientNotFound
	}
	return &c, nil
}

func (m *Memory) SelectActiveClientsWithPositiveBudget(_ context.Context) ([]ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Client
	for _, c := range m.clients {
		if c.Consumable() {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) GetConsumptionLog(_ context.Context, id ledger.ClientID, date ledger.Date) (*ledger.DailyConsumptionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.logs[logKey{ClientID: id, Date: date.String()}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// ApplyConsumption simulates the store-level transaction: all checks happen
// under one lock, then all three effects apply together or not at all.
func (m *Memory) ApplyConsumption(_ context.Context, w ledger.ConsumptionWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[w.ClientID]
	if !ok {
		return ledger.ErrClientNotFound
	}

	k := logKey{ClientID: w.ClientID, Date: w.Log.ConsumptionDate.String()}
	if _, exists := m.logs[k]; exists {
		return ledger.ErrAlreadyProcessed
	}
	if !c.CurrentBalance.Equal(w.ExpectedBalance) {
		return ledger.ErrWriteConflict
	}

	c.CurrentBalance = w.NewBalance
	c.UpdatedAt = time.Now().UTC()
	m.clients[w.ClientID] = c
	m.logs[k] = w.Log
	m.transactions[w.ClientID] = append(m.transactions[w.ClientID], w.Transaction)
	return nil
}

func (m *Memory) ApplyCredit(_ context.Context, w ledger.CreditWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[w.ClientID]
	if !ok {
		return ledger.ErrClientNotFound
	}
	if !c.CurrentBalance.Equal(w.ExpectedBalance) {
		return ledger.ErrWriteConflict
	}

	c.CurrentBalance = w.NewBalance
	c.UpdatedAt = time.Now().UTC()
	m.clients[w.ClientID] = c
	m.transactions[w.ClientID] = append(m.transactions[w.ClientID], w.Transaction)
	return nil
}

func (m *Memory) TransactionsInOrder(_ context.Context, id ledger.ClientID) ([]ledger.CreditTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Insertion order IS causal order for the memory store.
	result := make([]ledger.CreditTransaction, len(m.transactions[id]))
	copy(result, m.transactions[id])
	return result, nil
}

// =============================================================================
// CLIENT STORE (ledger.ClientStore interface)
// =============================================================================

func (m *Memory) SaveClient(_ context.Context, c ledger.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.clients[c.ID]; ok {
		// Balance moves only through ApplyConsumption/ApplyCredit.
		c.CurrentBalance = existing.CurrentBalance
		c.CreatedAt = existing.CreatedAt
	}
	c.UpdatedAt = time.Now().UTC()
	m.clients[c.ID] = c
	return nil
}

func (m *Memory) DeleteClient(_ context.Context, id ledger.ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[id]; !ok {
		return ledger.ErrClientNotFound
	}
	delete(m.clients, id)
	delete(m.transactions, id)
	for k := range m.logs {
		if k.ClientID == id {
			delete(m.logs, k)
		}
	}
	return nil
}

func (m *Memory) ListClients(_ context.Context) ([]ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Client, 0, len(m.clients))
	for _, c := range m.clients {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) Transactions(_ context.Context, id ledger.ClientID) ([]ledger.CreditTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.CreditTransaction, len(m.transactions[id]))
	copy(result, m.transactions[id])

	// Display order: transaction_date desc, then created_at desc.
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].TransactionDate.Equal(result[j].TransactionDate) {
			return result[i].TransactionDate.After(result[j].TransactionDate)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) ConsumptionLogs(_ context.Context, id ledger.ClientID) ([]ledger.DailyConsumptionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.DailyConsumptionLog
	for k, row := range m.logs {
		if k.ClientID == id {
			result = append(result, row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ConsumptionDate.After(result[j].ConsumptionDate)
	})
	return result, nil
}
