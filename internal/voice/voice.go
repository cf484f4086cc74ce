// Package voice abstracts the upstream voice-AI session. Two implementations
// exist: a live WebSocket client against the real backend and a deterministic
// simulator used for development and tests. Both are driven through the same
// callback contract, selected once at startup.
package voice

import (
	"context"
	"encoding/json"
)

// Callbacks are invoked by a session as the conversation progresses. After
// Close returns, no callback fires again.
type Callbacks struct {
	// OnAudio delivers base64 synthesized speech to play back to the caller
	OnAudio func(payload string)

	// OnTranscript delivers one recognized utterance. speaker is "user" or
	// "assistant".
	OnTranscript func(text, speaker string)

	// OnToolCall asks the caller to execute a tool. The result (or error) is
	// relayed back to the backend.
	OnToolCall func(name string, params map[string]any) (json.RawMessage, error)

	// OnError reports a non-fatal session error. The session stays open; an
	// explicit Close is always required for cleanup.
	OnError func(err error)
}

// Session is one live voice-AI conversation
type Session interface {
	// SendAudio forwards one base64 caller audio frame. Fire-and-forget;
	// never blocks on the backend.
	SendAudio(payload string)

	// Close tears the session down, cancelling all pending timers and
	// background work. Idempotent.
	Close()
}

// Opener establishes voice sessions. Open may take hundreds of milliseconds;
// the caller drops media that arrives in the meantime.
type Opener interface {
	Open(ctx context.Context, tenantID string, cb Callbacks) (Session, error)
}
