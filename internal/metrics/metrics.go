package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Call lifecycle
	CallsStartedTotal   int64
	CallsCompletedTotal int64
	AuthFailuresTotal   int64
	activeCalls         int64

	// Media relay
	MediaFramesForwardedTotal int64
	MediaFramesDroppedTotal   int64
	OutboundFramesTotal       int64

	// Voice sessions
	VoiceSessionsOpenedTotal int64
	VoiceSessionOpenErrors   int64
	VoiceSessionErrors       int64

	// Tools
	ToolCallsTotal     int64
	ToolCallErrors     int64

	// Post-call pipeline
	PostCallRunsTotal  int64
	PostCallStepErrors int64

	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{startTime: time.Now()}
	})
	return instance
}

func (m *Metrics) RecordCallStarted() {
	m.mu.Lock()
	m.CallsStartedTotal++
	m.activeCalls++
	m.mu.Unlock()
}

func (m *Metrics) RecordCallCompleted() {
	m.mu.Lock()
	m.CallsCompletedTotal++
	m.activeCalls--
	m.mu.Unlock()
}

func (m *Metrics) RecordAuthFailure() {
	m.mu.Lock()
	m.AuthFailuresTotal++
	m.mu.Unlock()
}

func (m *Metrics) RecordMediaForwarded() {
	m.mu.Lock()
	m.MediaFramesForwardedTotal++
	m.mu.Unlock()
}

// RecordMediaDropped counts frames dropped before the voice session was
// ready. Dropping is expected behavior; the counter exists for visibility.
func (m *Metrics) RecordMediaDropped(n int64) {
	m.mu.Lock()
	m.MediaFramesDroppedTotal += n
	m.mu.Unlock()
}

func (m *Metrics) RecordOutboundFrame() {
	m.mu.Lock()
	m.OutboundFramesTotal++
	m.mu.Unlock()
}

func (m *Metrics) RecordVoiceSessionOpened() {
	m.mu.Lock()
	m.VoiceSessionsOpenedTotal++
	m.mu.Unlock()
}

func (m *Metrics) RecordVoiceSessionOpenError() {
	m.mu.Lock()
	m.VoiceSessionOpenErrors++
	m.mu.Unlock()
}

func (m *Metrics) RecordVoiceSessionError() {
	m.mu.Lock()
	m.VoiceSessionErrors++
	m.mu.Unlock()
}

func (m *Metrics) RecordToolCall(failed bool) {
	m.mu.Lock()
	m.ToolCallsTotal++
	if failed {
		m.ToolCallErrors++
	}
	m.mu.Unlock()
}

func (m *Metrics) RecordPostCallRun() {
	m.mu.Lock()
	m.PostCallRunsTotal++
	m.mu.Unlock()
}

func (m *Metrics) RecordPostCallStepError() {
	m.mu.Lock()
	m.PostCallStepErrors++
	m.mu.Unlock()
}

// ActiveCalls returns the number of calls currently in progress
func (m *Metrics) ActiveCalls() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCalls
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		write := func(name string, value int64) {
			w.Write([]byte(name + " " + strconv.FormatInt(value, 10) + "\n"))
		}

		write("relay_uptime_seconds", int64(time.Since(m.startTime).Seconds()))

		write("relay_calls_started_total", m.CallsStartedTotal)
		write("relay_calls_completed_total", m.CallsCompletedTotal)
		write("relay_calls_active", m.activeCalls)
		write("relay_auth_failures_total", m.AuthFailuresTotal)

		write("relay_media_frames_forwarded_total", m.MediaFramesForwardedTotal)
		write("relay_media_frames_dropped_total", m.MediaFramesDroppedTotal)
		write("relay_outbound_frames_total", m.OutboundFramesTotal)

		write("relay_voice_sessions_opened_total", m.VoiceSessionsOpenedTotal)
		write("relay_voice_session_open_errors_total", m.VoiceSessionOpenErrors)
		write("relay_voice_session_errors_total", m.VoiceSessionErrors)

		write("relay_tool_calls_total", m.ToolCallsTotal)
		write("relay_tool_call_errors_total", m.ToolCallErrors)

		write("relay_postcall_runs_total", m.PostCallRunsTotal)
		write("relay_postcall_step_errors_total", m.PostCallStepErrors)
	}
}
