package types

import (
	"strings"
	"time"
)

// Speaker identifies who produced a transcript entry
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is one utterance in a call transcript
type TranscriptEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Outcome classifies how a completed call ended
type Outcome string

const (
	OutcomeMissed       Outcome = "missed"
	OutcomeBooking      Outcome = "booking"
	OutcomeMessage      Outcome = "message"
	OutcomeTransfer     Outcome = "transfer" // kept for schema compatibility, never derived
	OutcomeCancellation Outcome = "cancellation"
)

// Tool names the relay classifies outcomes by
const (
	ToolBookAppointment   = "bookAppointment"
	ToolCancelAppointment = "cancelAppointment"
	ToolTakeMessage       = "takeMessage"
)

// DeriveOutcome classifies a call from the set of tools invoked during it.
// Priority: booking > cancellation > message. Always returns a value.
func DeriveOutcome(toolsInvoked map[string]struct{}) Outcome {
	if _, ok := toolsInvoked[ToolBookAppointment]; ok {
		return OutcomeBooking
	}
	if _, ok := toolsInvoked[ToolCancelAppointment]; ok {
		return OutcomeCancellation
	}
	return OutcomeMessage
}

// CallRecord represents a completed call for persistence
type CallRecord struct {
	TenantID   string  `json:"tenantId" dynamodbav:"TenantID"` // partition key
	SortKey    string  `json:"sortKey" dynamodbav:"SK"`        // StartedAt#CallID (sort key)
	CallID     string  `json:"callId" dynamodbav:"CallID"`
	CallerID   string  `json:"callerId" dynamodbav:"CallerID"`
	StartedAt  string  `json:"startedAt" dynamodbav:"StartedAt"` // RFC3339
	EndedAt    string  `json:"endedAt" dynamodbav:"EndedAt"`     // RFC3339
	Duration   float64 `json:"duration" dynamodbav:"Duration"`   // seconds
	Transcript string  `json:"transcript" dynamodbav:"Transcript"`
	Summary    string  `json:"summary,omitempty" dynamodbav:"Summary"`
	Outcome    Outcome `json:"outcome" dynamodbav:"Outcome"`
	CustomerID string  `json:"customerId,omitempty" dynamodbav:"CustomerID"`
}

// Customer represents a caller known to a tenant
type Customer struct {
	TenantID   string `json:"tenantId" dynamodbav:"TenantID"`  // partition key
	CallerID   string `json:"callerId" dynamodbav:"CallerID"`  // sort key
	CustomerID string `json:"customerId" dynamodbav:"CustomerID"`
	CreatedAt  string `json:"createdAt" dynamodbav:"CreatedAt"` // RFC3339
}

// Message represents a message taken during a call, possibly not yet linked
// to its call record
type Message struct {
	TenantID  string `json:"tenantId" dynamodbav:"TenantID"` // partition key
	SortKey   string `json:"sortKey" dynamodbav:"SK"`        // CreatedAt#MessageID (sort key)
	MessageID string `json:"messageId" dynamodbav:"MessageID"`
	CallerID  string `json:"callerId" dynamodbav:"CallerID"`
	Body      string `json:"body" dynamodbav:"Body"`
	CallID    string `json:"callId,omitempty" dynamodbav:"CallID"`
	CreatedAt string `json:"createdAt" dynamodbav:"CreatedAt"` // RFC3339
}

// RenderTranscript flattens transcript entries into the plain-text form the
// summarizer and call record use
func RenderTranscript(entries []TranscriptEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(e.Speaker))
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}
