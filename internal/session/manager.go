// Package session tracks each connected user's interaction with the
// glasses: streaming capture, question capture and the camera lock that
// serializes the three trigger sources (poll timer, short press, long
// press) onto one physical camera.
package session

import (
	"context"
	"fmt"
	"time"

	"nutrilens-be/internal/config"
	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/internal/service"
	"nutrilens-be/pkg/device"
	"nutrilens-be/pkg/dispatch"
	"nutrilens-be/pkg/events"
	"nutrilens-be/pkg/worker"
)

const acquireStep = 100 * time.Millisecond

// Dispatcher is the facade slice the manager needs; satisfied by
// *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, job dispatch.Job) (map[string]interface{}, error)
}

// Manager owns all per-user session state. No other component reads or
// writes it except through these methods.
type Manager struct {
	users *userTable

	dispatcher Dispatcher
	pipeline   service.IPipelineService
	cfg        config.PipelineConfig
	logger     logger.ILogger

	// optional external bus for session lifecycle events
	events service.EventPublisher

	// injected for tests
	now func() time.Time
}

func NewManager(dispatcher Dispatcher, pipeline service.IPipelineService, cfg config.PipelineConfig, log logger.ILogger) *Manager {
	return &Manager{
		users:      newUserTable(),
		dispatcher: dispatcher,
		pipeline:   pipeline,
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
	}
}

// SetEventSink enables session lifecycle events on the external bus. A nil
// sink disables emission.
func (m *Manager) SetEventSink(sink service.EventPublisher) {
	m.events = sink
}

// OnStart binds a device session for the user, registers event handlers for
// the capabilities the device actually has and starts the poll ticker.
func (m *Manager) OnStart(userID string, sess device.Session) {
	caps := sess.Capabilities()

	st := &UserState{
		userID:      userID,
		sess:        sess,
		cameraReady: caps.HasCamera,
		pollStop:    make(chan struct{}),
		pollDone:    make(chan struct{}),
	}

	if caps.HasButton {
		unsub := sess.OnButtonPress(func(press device.PressType) {
			switch press {
			case device.PressShort:
				go m.HandleShortPress(userID)
			case device.PressLong:
				go m.HandleLongPress(userID)
			}
		})
		st.unsubs = append(st.unsubs, unsub)
	}

	if caps.HasMicrophone {
		unsub := sess.OnTranscription(func(text string, isFinal bool) {
			if isFinal {
				m.HandleTranscription(userID, text)
			}
		})
		st.unsubs = append(st.unsubs, unsub)
	}

	m.users.put(userID, st)

	go m.pollLoop(userID, st)

	m.logger.Info("Session", "Session started", map[string]interface{}{
		"user_id": userID,
		"camera":  caps.HasCamera,
		"mic":     caps.HasMicrophone,
		"button":  caps.HasButton,
	})
	m.emit(events.TypeSessionStarted, userID)
}

// OnStop tears the session down: the ticker is cancelled, listeners are
// unsubscribed and every per-user entry is purged.
func (m *Manager) OnStop(userID string) {
	st, ok := m.users.take(userID)
	if !ok {
		return
	}

	close(st.pollStop)
	<-st.pollDone

	for _, unsub := range st.unsubs {
		unsub()
	}

	m.logger.Info("Session", "Session stopped", map[string]interface{}{"user_id": userID})
	m.emit(events.TypeSessionStopped, userID)
}

// emit publishes a lifecycle event without blocking the caller.
func (m *Manager) emit(eventType, userID string) {
	if m.events == nil {
		return
	}
	go func() {
		if err := m.events.Publish(context.Background(), events.NewSessionEvent(eventType, userID)); err != nil {
			m.logger.Warn("Session", "Failed to publish session event", map[string]interface{}{
				"event":   eventType,
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}()
}

// HasUser reports whether a session is bound for the user.
func (m *Manager) HasUser(userID string) bool {
	_, ok := m.users.get(userID)
	return ok
}

// Phase reports the user's current protocol phase.
func (m *Manager) Phase(userID string) (Phase, bool) {
	st, ok := m.users.get(userID)
	if !ok {
		return "", false
	}
	return st.Phase(), true
}

// QuestionBuffer exposes the accumulated question text.
func (m *Manager) QuestionBuffer(userID string) string {
	st, ok := m.users.get(userID)
	if !ok {
		return ""
	}
	return st.question()
}

// ToggleStreaming arms or disarms periodic auto-capture.
func (m *Manager) ToggleStreaming(userID string, enabled bool) {
	st, ok := m.users.get(userID)
	if !ok {
		return
	}
	st.mu.Lock()
	st.streamingEnabled = enabled
	st.nextCaptureAt = m.now()
	st.mu.Unlock()
}

// HandleShortPress performs a single capture+analyze unless a capture is
// already in flight.
func (m *Manager) HandleShortPress(userID string) {
	st, ok := m.users.get(userID)
	if !ok {
		return
	}
	if st.Phase() == PhaseCaptureInFlight {
		return
	}

	m.captureAndDispatch(context.Background(), st, "", m.cfg.CameraMaxWait)
}

// HandleLongPress toggles question capture. Ending with a non-empty buffer
// fires the combined photo+question flow; ending empty reports "no question
// captured" and returns to rest.
func (m *Manager) HandleLongPress(userID string) {
	st, ok := m.users.get(userID)
	if !ok {
		return
	}

	st.mu.Lock()
	active := st.questionActive
	if !active {
		st.questionActive = true
		st.questionBuf.Reset()
		st.mu.Unlock()
		st.sess.ShowText("Listening... ask your question, then long-press again.", 3000)
		return
	}
	st.mu.Unlock()

	question := st.question()
	st.resetQuestion()

	if question == "" {
		st.sess.ShowText("No question captured.", 2500)
		return
	}

	m.captureAndDispatch(context.Background(), st, question, m.cfg.CameraMaxWait)
}

// HandleTranscription appends a finished speech fragment to the question
// buffer. Fragments arriving outside question capture are ignored.
func (m *Manager) HandleTranscription(userID, text string) {
	st, ok := m.users.get(userID)
	if !ok {
		return
	}
	st.appendQuestion(text)
}

// Speak narrates arbitrary text on the device, routed through the dispatch
// facade like every other heavy operation.
func (m *Manager) Speak(ctx context.Context, userID, text, voiceID string) error {
	st, ok := m.users.get(userID)
	if !ok {
		return fmt.Errorf("no active session for user %s", userID)
	}

	result, err := m.dispatcher.Dispatch(ctx, dispatch.Job{
		Type:    worker.TypeAudio,
		Payload: service.NewAudioPayload(userID, text, voiceID),
		Fallback: func(ctx context.Context) (map[string]interface{}, error) {
			audioURL, err := m.pipeline.Narrate(ctx, userID, text, voiceID)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"audio_url": audioURL}, nil
		},
	})
	if err != nil {
		return err
	}

	if audioURL, _ := result["audio_url"].(string); audioURL != "" {
		return st.sess.PlayAudio(audioURL)
	}
	return nil
}

// pollLoop drives the streaming auto-capture for one user.
func (m *Manager) pollLoop(userID string, st *UserState) {
	defer close(st.pollDone)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-st.pollStop:
			return
		case <-ticker.C:
			m.pollTick(st)
		}
	}
}

// pollTick performs one streaming capture attempt. Contention skips the
// tick; any capture error still advances the schedule so a failure cannot
// wedge the loop into tight retries.
func (m *Manager) pollTick(st *UserState) {
	st.mu.Lock()
	due := st.streamingEnabled && !m.now().Before(st.nextCaptureAt)
	st.mu.Unlock()
	if !due {
		return
	}

	// Single non-blocking acquisition attempt; the next tick retries.
	if !m.acquireCamera(st, 0) {
		return
	}
	defer m.releaseCamera(st)

	// Advance the schedule before capturing so an error cannot wedge the
	// loop into tight retries.
	st.mu.Lock()
	st.nextCaptureAt = m.now().Add(m.cfg.StreamInterval)
	st.mu.Unlock()

	m.runCapture(context.Background(), st, "")
}

// captureAndDispatch is the user-triggered capture path: acquire the
// camera (bounded wait), capture, dispatch, and release on every exit path.
func (m *Manager) captureAndDispatch(ctx context.Context, st *UserState, question string, maxWait time.Duration) {
	if !m.acquireCamera(st, maxWait) {
		st.sess.ShowText("Camera is busy, try again in a moment.", 2500)
		return
	}
	defer m.releaseCamera(st)

	m.runCapture(ctx, st, question)
}

// runCapture does one capture+dispatch cycle. The caller holds the camera.
func (m *Manager) runCapture(ctx context.Context, st *UserState, question string) {
	photo, err := st.sess.RequestPhoto(ctx)
	if err != nil {
		m.logger.Warn("Session", "Photo capture failed", map[string]interface{}{"user_id": st.userID, "error": err.Error()})
		st.sess.ShowText("Capture failed.", 2500)
		return
	}

	result, err := m.dispatcher.Dispatch(ctx, dispatch.Job{
		Type:    worker.TypeImage,
		Payload: service.NewImagePayload(st.userID, photo, question),
		Fallback: func(ctx context.Context) (map[string]interface{}, error) {
			if question != "" {
				return m.pipeline.AnswerQuestion(ctx, st.userID, photo, question)
			}
			return m.pipeline.ProcessImage(ctx, st.userID, photo)
		},
	})
	if err != nil {
		m.logger.Warn("Session", "Dispatch failed", map[string]interface{}{"user_id": st.userID, "error": err.Error()})
		st.sess.ShowText("Analysis failed, please retry.", 2500)
		return
	}

	if question != "" {
		answer, _ := result["answer"].(string)
		if audioURL, _ := result["audio_url"].(string); audioURL != "" {
			st.sess.PlayAudio(audioURL)
		}
		if answer != "" {
			st.sess.ShowText(answer, 6000)
		}
		return
	}

	if analyzed, _ := result["analyzed"].(bool); !analyzed {
		st.sess.ShowText("Couldn't read that meal, try another angle.", 3000)
		return
	}
	dish, _ := result["dish_name"].(string)
	calories, _ := result["total_calories"].(float64)
	st.sess.ShowText(fmt.Sprintf("%s — about %.0f kcal", dish, calories), 5000)
}

// acquireCamera takes the per-user camera lock. Acquisition requires the
// camera to be ready and idle AND the cooldown since the last completed
// operation to have elapsed. With maxWait > 0 the attempt retries in short
// sleep increments until the deadline.
func (m *Manager) acquireCamera(st *UserState, maxWait time.Duration) bool {
	deadline := m.now().Add(maxWait)
	for {
		st.mu.Lock()
		ready := st.cameraReady
		free := !st.cameraInUse && m.now().Sub(st.lastOpAt) >= m.cfg.CameraCooldown
		if ready && free {
			st.cameraInUse = true
			st.mu.Unlock()
			return true
		}
		st.mu.Unlock()

		if !ready || !m.now().Before(deadline) {
			return false
		}
		time.Sleep(acquireStep)
	}
}

// releaseCamera frees the lock and stamps the cooldown window.
func (m *Manager) releaseCamera(st *UserState) {
	st.mu.Lock()
	st.cameraInUse = false
	st.lastOpAt = m.now()
	st.mu.Unlock()
}
