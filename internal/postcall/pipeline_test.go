package postcall

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/voxline/relay/internal/storage"
	"github.com/voxline/relay/internal/types"
)

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (s *fakeSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []float64
	err     error
}

func (r *fakeReporter) ReportCall(_ context.Context, _ string, durationSeconds float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, durationSeconds)
	return r.err
}

func testRecord(store *storage.MemoryStore) types.CallRecord {
	record := types.CallRecord{
		TenantID:   "T1",
		SortKey:    time.Now().UTC().Format(time.RFC3339Nano) + "#call-1",
		CallID:     "call-1",
		CallerID:   "+447700900000",
		StartedAt:  time.Now().UTC().Format(time.RFC3339),
		EndedAt:    time.Now().UTC().Format(time.RFC3339),
		Duration:   42,
		Transcript: "user: I need to book an appointment.\nassistant: Done.",
		Outcome:    types.OutcomeBooking,
	}
	store.SaveCallRecord(context.Background(), record)
	return record
}

func TestPipelineLinksCustomerAndSummarizes(t *testing.T) {
	store := storage.NewMemoryStore()
	record := testRecord(store)
	summarizer := &fakeSummarizer{summary: "Caller booked an appointment."}
	reporter := &fakeReporter{}

	p := NewPipeline(store, summarizer, reporter, zerolog.New(&bytes.Buffer{}))
	p.Run(record, map[string]struct{}{types.ToolBookAppointment: {}})

	if store.CustomerCount("T1") != 1 {
		t.Errorf("expected 1 customer, got %d", store.CustomerCount("T1"))
	}

	records, _ := store.ListCallRecords(context.Background(), "T1", 0)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].CustomerID == "" {
		t.Error("expected customer linked to call record")
	}
	if records[0].Summary != "Caller booked an appointment." {
		t.Errorf("expected summary saved, got %q", records[0].Summary)
	}
	if len(reporter.reports) != 1 || reporter.reports[0] != 42 {
		t.Errorf("expected one billing report of 42s, got %v", reporter.reports)
	}
}

func TestPipelineSkipsSummaryForEmptyTranscript(t *testing.T) {
	store := storage.NewMemoryStore()
	record := testRecord(store)
	record.Transcript = ""
	summarizer := &fakeSummarizer{summary: "should not appear"}

	p := NewPipeline(store, summarizer, nil, zerolog.New(&bytes.Buffer{}))
	p.Run(record, nil)

	if summarizer.calls != 0 {
		t.Error("summarizer must not run on an empty transcript")
	}
}

func TestPipelineLinksMessagesOnlyWhenTaken(t *testing.T) {
	store := storage.NewMemoryStore()
	record := testRecord(store)
	store.PutMessage(types.Message{
		TenantID:  "T1",
		SortKey:   time.Now().UTC().Format(time.RFC3339Nano) + "#msg-1",
		MessageID: "msg-1",
		CallerID:  "+447700900000",
		Body:      "Please call back",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})

	p := NewPipeline(store, nil, nil, zerolog.New(&bytes.Buffer{}))

	// Without takeMessage in the invoked set, the message stays unlinked
	p.Run(record, map[string]struct{}{types.ToolBookAppointment: {}})
	linked, _ := store.LinkRecentMessages(context.Background(), "T1", "+447700900000", time.Minute, "probe")
	if linked != 1 {
		t.Fatalf("message was linked without takeMessage, probe linked %d", linked)
	}

	// Reset and run with takeMessage
	store = storage.NewMemoryStore()
	record = testRecord(store)
	store.PutMessage(types.Message{
		TenantID:  "T1",
		SortKey:   time.Now().UTC().Format(time.RFC3339Nano) + "#msg-2",
		MessageID: "msg-2",
		CallerID:  "+447700900000",
		Body:      "Please call back",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	p = NewPipeline(store, nil, nil, zerolog.New(&bytes.Buffer{}))
	p.Run(record, map[string]struct{}{types.ToolTakeMessage: {}})

	linked, _ = store.LinkRecentMessages(context.Background(), "T1", "+447700900000", time.Minute, "probe")
	if linked != 0 {
		t.Error("expected message already linked to the call")
	}
}

func TestPipelineSkipsAnonymousCaller(t *testing.T) {
	store := storage.NewMemoryStore()
	record := testRecord(store)
	record.CallerID = ""

	p := NewPipeline(store, nil, nil, zerolog.New(&bytes.Buffer{}))
	p.Run(record, nil)

	if store.CustomerCount("T1") != 0 {
		t.Error("anonymous caller must not create a customer")
	}
}

func TestPipelineContinuesPastFailedSteps(t *testing.T) {
	store := storage.NewMemoryStore()
	record := testRecord(store)
	summarizer := &fakeSummarizer{err: errors.New("model overloaded")}
	reporter := &fakeReporter{err: errors.New("stripe down")}

	p := NewPipeline(store, summarizer, reporter, zerolog.New(&bytes.Buffer{}))
	p.Run(record, map[string]struct{}{types.ToolTakeMessage: {}})

	// Summary and billing failed, but customer linking still happened
	if store.CustomerCount("T1") != 1 {
		t.Error("customer linking must survive other step failures")
	}
	if len(reporter.reports) != 1 {
		t.Error("billing step must still be attempted")
	}
}
