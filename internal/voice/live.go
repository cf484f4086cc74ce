package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	liveOpenTimeout  = 10 * time.Second
	liveWriteTimeout = 10 * time.Second
	livePingPeriod   = 30 * time.Second
)

// liveFrame is the wire format of the upstream voice-AI session protocol
type liveFrame struct {
	Type    string          `json:"type"`
	Payload string          `json:"payload,omitempty"`
	Text    string          `json:"text,omitempty"`
	Speaker string          `json:"speaker,omitempty"`
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Params  map[string]any  `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`

	// session.start fields
	TenantID     string      `json:"tenant_id,omitempty"`
	InputFormat  *liveFormat `json:"input_format,omitempty"`
	OutputFormat *liveFormat `json:"output_format,omitempty"`
}

type liveFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// LiveOpener dials the real voice-AI backend over WebSocket
type LiveOpener struct {
	url         string
	apiKey      string
	audioFormat string // "mulaw" or "linear16"
	logger      zerolog.Logger
}

// NewLiveOpener creates a LiveOpener
func NewLiveOpener(url, apiKey, audioFormat string, logger zerolog.Logger) *LiveOpener {
	return &LiveOpener{
		url:         url,
		apiKey:      apiKey,
		audioFormat: audioFormat,
		logger:      logger.With().Str("component", "voice_live").Logger(),
	}
}

// Open dials the backend, negotiates the audio format, and waits for the
// ready frame before returning. Failure here aborts the call's AI leg; the
// caller handles it without crashing the transport.
func (o *LiveOpener) Open(ctx context.Context, tenantID string, cb Callbacks) (Session, error) {
	header := http.Header{}
	if o.apiKey != "" {
		header.Set("Authorization", "Bearer "+o.apiKey)
	}

	dialCtx, cancel := context.WithTimeout(ctx, liveOpenTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, o.url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial voice backend: %w", err)
	}

	format := &liveFormat{Encoding: "mulaw", SampleRate: 8000}
	if o.audioFormat == "linear16" {
		format = &liveFormat{Encoding: "linear16", SampleRate: 16000}
	}

	start := liveFrame{
		Type:         "session.start",
		TenantID:     tenantID,
		InputFormat:  format,
		OutputFormat: format,
	}
	conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send session start: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(liveOpenTimeout))
	var ready liveFrame
	if err := conn.ReadJSON(&ready); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read ready frame: %w", err)
	}
	if ready.Type != "ready" {
		conn.Close()
		return nil, fmt.Errorf("unexpected frame %q before ready", ready.Type)
	}
	conn.SetReadDeadline(time.Time{})

	s := &liveSession{
		conn:   conn,
		cb:     cb,
		send:   make(chan liveFrame, 64),
		done:   make(chan struct{}),
		logger: o.logger.With().Str("tenant_id", tenantID).Logger(),
	}
	go s.readLoop()
	go s.writePump()

	s.logger.Debug().Str("encoding", format.Encoding).Msg("live voice session opened")
	return s, nil
}

type liveSession struct {
	conn   *websocket.Conn
	cb     Callbacks
	send   chan liveFrame
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// SendAudio queues one caller audio frame. If the send buffer is full the
// frame is dropped; a real-time stream must never back up.
func (s *liveSession) SendAudio(payload string) {
	frame := liveFrame{Type: "audio", Payload: payload}
	select {
	case s.send <- frame:
	case <-s.done:
	default:
		s.logger.Debug().Msg("send buffer full, dropping audio frame")
	}
}

func (s *liveSession) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
		s.logger.Debug().Msg("live voice session closed")
	})
}

func (s *liveSession) readLoop() {
	for {
		var frame liveFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			select {
			case <-s.done:
				// Closed locally, the read error is expected
			default:
				s.reportError(fmt.Errorf("voice session read failed: %w", err))
			}
			return
		}

		switch frame.Type {
		case "audio":
			if s.cb.OnAudio != nil && !s.isDone() {
				s.cb.OnAudio(frame.Payload)
			}
		case "transcript":
			if s.cb.OnTranscript != nil && !s.isDone() {
				s.cb.OnTranscript(frame.Text, frame.Speaker)
			}
		case "tool_call":
			// Tool execution is unbounded; run it off the read loop so
			// audio keeps flowing while the tool works.
			go s.dispatchToolCall(frame)
		case "error":
			s.reportError(fmt.Errorf("voice backend error: %s", frame.Error))
		default:
			s.logger.Debug().Str("type", frame.Type).Msg("ignoring unknown frame type")
		}
	}
}

func (s *liveSession) dispatchToolCall(frame liveFrame) {
	if s.cb.OnToolCall == nil || s.isDone() {
		return
	}

	result, err := s.cb.OnToolCall(frame.Name, frame.Params)

	reply := liveFrame{Type: "tool_result", ID: frame.ID, Result: result}
	if err != nil {
		reply = liveFrame{Type: "tool_error", ID: frame.ID, Error: err.Error()}
	}
	select {
	case s.send <- reply:
	case <-s.done:
	}
}

func (s *liveSession) writePump() {
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.reportError(fmt.Errorf("voice session write failed: %w", err))
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *liveSession) reportError(err error) {
	if s.cb.OnError != nil && !s.isDone() {
		s.cb.OnError(err)
	}
}

func (s *liveSession) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
