// Package relay bridges one telephony media-stream connection to one
// voice-AI session. The Coordinator owns the call's lifecycle: it validates
// the start event's routing token, relays audio both ways, accumulates
// transcript and tool state, and finalizes the call record on teardown.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/voxline/relay/internal/audio"
	"github.com/voxline/relay/internal/config"
	"github.com/voxline/relay/internal/metrics"
	"github.com/voxline/relay/internal/storage"
	"github.com/voxline/relay/internal/token"
	"github.com/voxline/relay/internal/tools"
	"github.com/voxline/relay/internal/types"
	"github.com/voxline/relay/internal/voice"
)

// CloseCodeAuthFailure is the application close code sent when routing token
// verification fails, distinct from normal closure so the transport side can
// alert on auth failures separately.
const CloseCodeAuthFailure = 4401

// The voice-AI leg runs at 16kHz when transcoding; telephony is 8kHz mu-law
const resampleFactor = 2

const saveTimeout = 10 * time.Second

var errSessionClosed = errors.New("call is no longer active")

type state int

const (
	stateIdle state = iota
	stateAuthenticating
	stateActive
	stateClosing
	stateClosed
)

// PostCallRunner runs the post-call pipeline for a finalized call. The
// Coordinator launches it detached; its outcome never reaches the transport.
type PostCallRunner interface {
	Run(record types.CallRecord, toolsInvoked map[string]struct{})
}

// Deps are the collaborators a Coordinator needs
type Deps struct {
	Verifier *token.Verifier
	Opener   voice.Opener
	Tools    tools.Executor
	Store    storage.Store
	PostCall PostCallRunner // may be nil
}

// Coordinator owns one telephony connection for the duration of one call
type Coordinator struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	cfg    *config.Config
	deps   Deps
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         state
	streamID      string
	tenantID      string
	callerID      string
	verified      bool
	session       voice.Session
	transcript    []types.TranscriptEntry
	toolsInvoked  map[string]struct{}
	startedAt     time.Time
	droppedFrames int64
	connOpen      bool
}

// NewCoordinator creates a Coordinator for one accepted connection. conn may
// be nil in tests; outbound frames then stay queued on the send channel.
func NewCoordinator(conn *websocket.Conn, cfg *config.Config, deps Deps, logger zerolog.Logger) *Coordinator {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, 256),
		done:         make(chan struct{}),
		cfg:          cfg,
		deps:         deps,
		logger:       logger.With().Str("call_id", id).Logger(),
		ctx:          ctx,
		cancel:       cancel,
		state:        stateIdle,
		toolsInvoked: make(map[string]struct{}),
		connOpen:     conn != nil,
	}
}

// Run drives the connection's read and write pumps until the call ends
func (c *Coordinator) Run() {
	go c.writePump()
	c.readPump()
}

// readPump pumps frames from the telephony connection into the state
// machine. Frames arrive serialized; this is the only reader.
func (c *Coordinator) readPump() {
	defer func() {
		c.Teardown()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read error")
			}
			return
		}
		c.HandleFrame(message)
	}
}

// writePump pumps outbound frames to the telephony connection. This is the
// only writer.
func (c *Coordinator) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// HandleFrame processes one telephony event frame
func (c *Coordinator) HandleFrame(data []byte) {
	var event types.StreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Debug().Err(err).Msg("ignoring malformed frame")
		return
	}

	switch event.Event {
	case types.EventConnected:
		c.logger.Debug().Msg("transport connected")
	case types.EventStart:
		c.handleStart(event)
	case types.EventMedia:
		c.handleMedia(event)
	case types.EventStop:
		c.logger.Debug().Msg("stop event received")
		c.finalize()
	case types.EventMark:
		if event.Mark != nil {
			c.logger.Debug().Str("mark", event.Mark.Name).Msg("playback mark")
		}
	default:
		c.logger.Debug().Str("event", event.Event).Msg("ignoring unknown event")
	}
}

// handleStart authenticates the call and opens the voice session. Routing
// parameters live on the start frame, not the connection URL.
func (c *Coordinator) handleStart(event types.StreamEvent) {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		c.logger.Warn().Msg("duplicate start event ignored")
		return
	}
	c.state = stateAuthenticating
	c.mu.Unlock()

	if event.Start == nil {
		c.rejectAuth("start event missing payload")
		return
	}
	params := event.Start.CustomParameters

	identity, err := c.deps.Verifier.Verify(
		params[types.ParamToken],
		params[types.ParamMerchantID],
		params[types.ParamCaller],
		params[types.ParamTimestamp],
	)
	if err != nil {
		c.rejectAuth("routing token rejected")
		return
	}

	c.mu.Lock()
	c.streamID = event.Start.StreamSID
	if c.streamID == "" {
		c.streamID = event.StreamSID
	}
	c.tenantID = identity.TenantID
	c.callerID = identity.CallerID
	c.verified = true
	c.startedAt = time.Now()
	c.state = stateActive
	c.mu.Unlock()

	metrics.Get().RecordCallStarted()
	c.logger.Info().
		Str("tenant_id", identity.TenantID).
		Str("caller_id", identity.CallerID).
		Str("stream_id", c.streamID).
		Msg("call authenticated")

	// Opening the session can take hundreds of milliseconds; media frames
	// arriving before it completes are dropped, never queued.
	go c.openVoiceSession()
}

// rejectAuth closes the connection with the auth failure close code. No
// voice session is opened and nothing is persisted.
func (c *Coordinator) rejectAuth(reason string) {
	metrics.Get().RecordAuthFailure()
	c.logger.Warn().Str("reason", reason).Msg("closing unauthenticated call")

	c.mu.Lock()
	c.state = stateClosed
	c.connOpen = false
	c.mu.Unlock()

	if c.conn != nil {
		msg := websocket.FormatCloseMessage(CloseCodeAuthFailure, "verification failed")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
		c.conn.Close()
	}
	c.cancel()
	c.closeDone()
}

func (c *Coordinator) openVoiceSession() {
	sess, err := c.deps.Opener.Open(c.ctx, c.tenantID, voice.Callbacks{
		OnAudio:      c.onAudio,
		OnTranscript: c.onTranscript,
		OnToolCall:   c.onToolCall,
		OnError:      c.onSessionError,
	})
	if err != nil {
		// Fatal for the AI leg only: the call continues with no relay and
		// ends through the normal stop flow.
		metrics.Get().RecordVoiceSessionOpenError()
		c.logger.Error().Err(err).Msg("failed to open voice session")
		return
	}

	c.mu.Lock()
	if c.state != stateActive {
		c.mu.Unlock()
		sess.Close()
		return
	}
	c.session = sess
	c.mu.Unlock()

	metrics.Get().RecordVoiceSessionOpened()
	c.logger.Info().Msg("voice session open")
}

// handleMedia forwards one caller audio frame to the voice session. Frames
// arriving before verification or before the session is ready are dropped
// silently; that is expected, not exceptional.
func (c *Coordinator) handleMedia(event types.StreamEvent) {
	if event.Media == nil {
		return
	}

	c.mu.Lock()
	if c.state != stateActive || !c.verified || c.session == nil {
		c.droppedFrames++
		c.mu.Unlock()
		return
	}
	sess := c.session
	c.mu.Unlock()

	payload := event.Media.Payload
	if c.cfg.VoiceAudioFormat == "linear16" {
		payload = audio.MulawToPCM16(payload, resampleFactor)
	}

	sess.SendAudio(payload)
	metrics.Get().RecordMediaForwarded()
}

// onAudio forwards synthesized speech back to the telephony transport,
// dropped if the connection is no longer open
func (c *Coordinator) onAudio(payload string) {
	c.mu.Lock()
	open := c.connOpen && c.streamID != ""
	streamID := c.streamID
	c.mu.Unlock()
	if !open {
		return
	}

	if c.cfg.VoiceAudioFormat == "linear16" {
		payload = audio.PCM16ToMulaw(payload, resampleFactor)
	}

	frame := types.StreamEvent{
		Event:     types.EventMedia,
		StreamSID: streamID,
		Media:     &types.MediaPayload{Payload: payload},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	select {
	case c.send <- data:
		metrics.Get().RecordOutboundFrame()
	default:
		c.logger.Debug().Msg("outbound buffer full, dropping audio frame")
	}
}

func (c *Coordinator) onTranscript(text, speaker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateActive {
		return
	}
	c.transcript = append(c.transcript, types.TranscriptEntry{
		Speaker:   types.Speaker(speaker),
		Text:      text,
		Timestamp: time.Now(),
	})
}

// onToolCall records the invocation and dispatches to the tool executor.
// Execution errors come back as an error result for the voice session, never
// into the call's own control flow.
func (c *Coordinator) onToolCall(name string, params map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.state != stateActive {
		c.mu.Unlock()
		return nil, errSessionClosed
	}
	c.toolsInvoked[name] = struct{}{}
	tenantID := c.tenantID
	c.mu.Unlock()

	result, err := c.deps.Tools.Execute(c.ctx, tenantID, name, params)
	metrics.Get().RecordToolCall(err != nil)
	if err != nil {
		c.logger.Warn().Err(err).Str("tool", name).Msg("tool execution failed")
		return nil, err
	}

	c.logger.Debug().Str("tool", name).Msg("tool executed")
	return result, nil
}

func (c *Coordinator) onSessionError(err error) {
	metrics.Get().RecordVoiceSessionError()
	c.logger.Warn().Err(err).Msg("voice session error")
}

// Teardown handles transport closure or error: the voice session is closed
// synchronously; if the call was verified the record is finalized as on stop.
func (c *Coordinator) Teardown() {
	c.finalize()
}

// finalize transitions to Closing, releases the voice session, persists the
// call record, and launches the post-call pipeline detached. Safe to call
// more than once; only the first call does work.
func (c *Coordinator) finalize() {
	c.mu.Lock()
	if c.state == stateClosing || c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosing
	c.connOpen = false
	sess := c.session
	c.session = nil
	verified := c.verified
	tenantID := c.tenantID
	callerID := c.callerID
	startedAt := c.startedAt
	dropped := c.droppedFrames
	transcript := make([]types.TranscriptEntry, len(c.transcript))
	copy(transcript, c.transcript)
	invoked := make(map[string]struct{}, len(c.toolsInvoked))
	for name := range c.toolsInvoked {
		invoked[name] = struct{}{}
	}
	c.mu.Unlock()

	// Cancel first so a voice session still opening aborts instead of
	// attaching to a dead call
	c.cancel()
	if sess != nil {
		sess.Close()
	}

	if verified {
		if dropped > 0 {
			metrics.Get().RecordMediaDropped(dropped)
			c.logger.Info().Int64("frames", dropped).Msg("media frames dropped before session ready")
		}

		endedAt := time.Now()
		callID := uuid.New().String()
		record := types.CallRecord{
			TenantID:   tenantID,
			SortKey:    startedAt.UTC().Format(time.RFC3339Nano) + "#" + callID,
			CallID:     callID,
			CallerID:   callerID,
			StartedAt:  startedAt.UTC().Format(time.RFC3339),
			EndedAt:    endedAt.UTC().Format(time.RFC3339),
			Duration:   endedAt.Sub(startedAt).Seconds(),
			Transcript: types.RenderTranscript(transcript),
			Outcome:    types.DeriveOutcome(invoked),
		}

		saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := c.deps.Store.SaveCallRecord(saveCtx, record)
		cancel()
		if err != nil {
			// Without a persisted record the pipeline has nothing to link
			// against, so it is skipped entirely
			c.logger.Error().Err(err).Msg("failed to persist call record, skipping post-call pipeline")
		} else if c.deps.PostCall != nil {
			go c.deps.PostCall.Run(record, invoked)
		}

		metrics.Get().RecordCallCompleted()
		c.logger.Info().
			Str("outcome", string(record.Outcome)).
			Float64("duration", record.Duration).
			Msg("call finalized")
	}

	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	c.closeDone()
}

// closeDone releases the write pump exactly once
func (c *Coordinator) closeDone() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
