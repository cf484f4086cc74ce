package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voxline/relay/internal/types"
)

// MemoryStore is an in-process Store used when DynamoDB is disabled and in
// tests. Semantics match the DynamoDB implementation.
type MemoryStore struct {
	mu        sync.Mutex
	calls     map[string][]types.CallRecord // tenantID -> records
	customers map[string]types.Customer     // tenantID/callerID -> customer
	messages  map[string][]types.Message    // tenantID -> messages
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:     make(map[string][]types.CallRecord),
		customers: make(map[string]types.Customer),
		messages:  make(map[string][]types.Message),
	}
}

func customerKey(tenantID, callerID string) string {
	return tenantID + "/" + callerID
}

func (s *MemoryStore) SaveCallRecord(_ context.Context, record types.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[record.TenantID] = append(s.calls[record.TenantID], record)
	return nil
}

func (s *MemoryStore) FindMostRecentCall(_ context.Context, tenantID, callerID string) (*types.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *types.CallRecord
	for i := range s.calls[tenantID] {
		rec := &s.calls[tenantID][i]
		if rec.CallerID != callerID {
			continue
		}
		if best == nil || rec.SortKey > best.SortKey {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	copy := *best
	return &copy, nil
}

func (s *MemoryStore) SaveCallSummary(_ context.Context, tenantID, sortKey, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.calls[tenantID] {
		if s.calls[tenantID][i].SortKey == sortKey {
			s.calls[tenantID][i].Summary = summary
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) UpsertCustomer(_ context.Context, tenantID, callerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := customerKey(tenantID, callerID)
	if existing, ok := s.customers[key]; ok {
		return existing.CustomerID, nil
	}

	customer := types.Customer{
		TenantID:   tenantID,
		CallerID:   callerID,
		CustomerID: uuid.New().String(),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	s.customers[key] = customer
	return customer.CustomerID, nil
}

func (s *MemoryStore) LinkCustomerToCall(_ context.Context, tenantID, sortKey, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.calls[tenantID] {
		if s.calls[tenantID][i].SortKey == sortKey {
			s.calls[tenantID][i].CustomerID = customerID
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) LinkRecentMessages(_ context.Context, tenantID, callerID string, window time.Duration, callID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)
	linked := 0
	for i := range s.messages[tenantID] {
		msg := &s.messages[tenantID][i]
		if msg.CallerID != callerID || msg.CallID != "" || msg.CreatedAt < cutoff {
			continue
		}
		msg.CallID = callID
		linked++
	}
	return linked, nil
}

func (s *MemoryStore) ListCallRecords(_ context.Context, tenantID string, limit int) ([]types.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]types.CallRecord, len(s.calls[tenantID]))
	copy(records, s.calls[tenantID])
	sort.Slice(records, func(i, j int) bool { return records[i].SortKey > records[j].SortKey })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// PutMessage seeds a message record. Messages are normally written by the
// dashboard's tool handlers; this exists for tests and local development.
func (s *MemoryStore) PutMessage(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.TenantID] = append(s.messages[msg.TenantID], msg)
}

// CustomerCount returns how many customers exist for a tenant
func (s *MemoryStore) CustomerCount(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, c := range s.customers {
		if c.TenantID == tenantID {
			count++
		}
	}
	return count
}
