package types

// Telephony media-stream event names. One WebSocket connection carries one
// call; frames are JSON with an "event" discriminator.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
)

// StreamEvent is a single frame on the telephony media stream
type StreamEvent struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload  `json:"mark,omitempty"`
}

// StartPayload carries call routing parameters. These arrive in the start
// frame, not in the WebSocket URL.
type StartPayload struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid,omitempty"`
	AccountSID       string            `json:"accountSid,omitempty"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

// Custom parameter keys on the start frame
const (
	ParamMerchantID = "merchantId"
	ParamCaller     = "caller"
	ParamToken      = "token"
	ParamTimestamp  = "ts"
)

// MediaFormat describes the audio encoding on the telephony leg
type MediaFormat struct {
	Encoding   string `json:"encoding"` // "audio/x-mulaw"
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64-encoded audio chunk
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// MarkPayload acknowledges playback position on the outbound track
type MarkPayload struct {
	Name string `json:"name"`
}
