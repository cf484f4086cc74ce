package storage

import (
	"context"
	"time"

	"github.com/voxline/relay/internal/types"
)

// Store defines the persistence operations the relay and the post-call
// pipeline depend on
type Store interface {
	// SaveCallRecord persists the finalized record for a completed call
	SaveCallRecord(ctx context.Context, record types.CallRecord) error

	// FindMostRecentCall returns the newest call record for (tenant, caller),
	// or nil when none exists
	FindMostRecentCall(ctx context.Context, tenantID, callerID string) (*types.CallRecord, error)

	// SaveCallSummary attaches a summary to an already persisted call record
	SaveCallSummary(ctx context.Context, tenantID, sortKey, summary string) error

	// UpsertCustomer finds or creates the customer record for a caller and
	// returns its id. Concurrent calls for the same (tenant, caller) must
	// resolve to a single record.
	UpsertCustomer(ctx context.Context, tenantID, callerID string) (string, error)

	// LinkCustomerToCall stamps the customer id onto a call record
	LinkCustomerToCall(ctx context.Context, tenantID, sortKey, customerID string) error

	// LinkRecentMessages associates messages created for this caller within
	// the window that have no call yet; returns how many were linked
	LinkRecentMessages(ctx context.Context, tenantID, callerID string, window time.Duration, callID string) (int, error)

	// ListCallRecords returns up to limit most-recent call records for a tenant
	ListCallRecords(ctx context.Context, tenantID string, limit int) ([]types.CallRecord, error)
}
