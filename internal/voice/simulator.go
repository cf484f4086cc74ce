package voice

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Simulator timing constants. These are part of the behavioral contract the
// tests rely on: the greeting arrives once shortly after open, and a caller
// utterance is synthesized after the silence window elapses with no new
// frames (each frame resets the timer).
const (
	simConnectDelay  = 100 * time.Millisecond
	simGreetingDelay = 250 * time.Millisecond
	simSilenceWindow = 400 * time.Millisecond
)

// simScript is the rotation of fabricated caller utterances, one per
// detected speech turn
var simScript = []string{
	"Hi, I'd like to book an appointment for tomorrow morning.",
	"Could you take down a message for the owner?",
	"That's everything, thank you.",
}

// simSilence is one 20ms mu-law frame of silence used as synthesized audio
var simSilence = base64.StdEncoding.EncodeToString(make160(0xFF))

func make160(b byte) []byte {
	buf := make([]byte, 160)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

// SimOpener opens simulated voice sessions
type SimOpener struct {
	logger zerolog.Logger
}

// NewSimOpener creates a SimOpener
func NewSimOpener(logger zerolog.Logger) *SimOpener {
	return &SimOpener{logger: logger.With().Str("component", "voice_sim").Logger()}
}

// Open establishes a simulated session after a fixed connection delay
func (o *SimOpener) Open(ctx context.Context, tenantID string, cb Callbacks) (Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(simConnectDelay):
	}

	s := &simSession{
		cb:     cb,
		logger: o.logger.With().Str("tenant_id", tenantID).Logger(),
	}
	s.greeting = time.AfterFunc(simGreetingDelay, s.playGreeting)

	s.logger.Debug().Msg("simulated voice session opened")
	return s, nil
}

type simSession struct {
	cb     Callbacks
	logger zerolog.Logger

	mu       sync.Mutex
	closed   bool
	greeting *time.Timer
	silence  *time.Timer
	frames   int
	turn     int
}

func (s *simSession) SendAudio(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.frames++
	if s.silence == nil {
		s.silence = time.AfterFunc(simSilenceWindow, s.endOfUtterance)
	} else {
		// Debounce: each frame pushes the utterance boundary out again
		s.silence.Reset(simSilenceWindow)
	}
}

// Close stops all timers. A timer that already fired but has not run yet is
// still suppressed by the closed flag; no callback fires after Close.
func (s *simSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.greeting != nil {
		s.greeting.Stop()
	}
	if s.silence != nil {
		s.silence.Stop()
	}
	s.logger.Debug().Msg("simulated voice session closed")
}

// playGreeting emits the greeting as audio only. No transcript entry, so the
// first transcript pair of every simulated call is caller-then-assistant.
func (s *simSession) playGreeting() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.cb.OnAudio != nil {
		s.cb.OnAudio(simSilence)
	}
}

// endOfUtterance fires when the silence window elapses: fabricate the caller
// utterance, script a response, and emit callbacks in contract order
// (caller transcript, tool call if any, assistant transcript, audio).
func (s *simSession) endOfUtterance() {
	s.mu.Lock()
	if s.closed || s.frames == 0 {
		s.mu.Unlock()
		return
	}
	s.frames = 0
	utterance := simScript[s.turn%len(simScript)]
	s.turn++
	s.mu.Unlock()

	if s.cb.OnTranscript != nil {
		s.cb.OnTranscript(utterance, "user")
	}

	reply := s.respond(utterance)

	if s.isClosed() {
		return
	}
	if s.cb.OnTranscript != nil {
		s.cb.OnTranscript(reply, "assistant")
	}
	if s.cb.OnAudio != nil {
		s.cb.OnAudio(simSilence)
	}
}

// respond picks the scripted reply by keyword matching. Only booking-like
// utterances trigger a tool call.
func (s *simSession) respond(utterance string) string {
	lower := strings.ToLower(utterance)

	switch {
	case strings.Contains(lower, "book") || strings.Contains(lower, "appointment") || strings.Contains(lower, "reserve"):
		if s.cb.OnToolCall != nil {
			_, err := s.cb.OnToolCall("bookAppointment", map[string]any{
				"when": "tomorrow morning",
			})
			if err != nil {
				s.logger.Debug().Err(err).Msg("simulated tool call failed")
				return "I'm sorry, I couldn't complete that booking just now."
			}
		}
		return "You're all set, I've booked that for you."

	case strings.Contains(lower, "message"):
		return "Of course, I'll pass that message along."

	default:
		return "Thanks for calling. Is there anything else I can help with?"
	}
}

func (s *simSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
