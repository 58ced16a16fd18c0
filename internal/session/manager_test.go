package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"nutrilens-be/internal/config"
	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/pkg/device"
	"nutrilens-be/pkg/dispatch"
	"nutrilens-be/pkg/worker"
)

// fakeSession is an in-memory device the tests can observe and drive.
type fakeSession struct {
	mu sync.Mutex

	caps device.Capabilities

	photoBlock chan struct{} // when non-nil, RequestPhoto blocks until closed
	photoErr   error
	photoCount int

	shown  []string
	played []string

	onPress func(device.PressType)
	onSTT   func(string, bool)

	unsubCount int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		caps: device.Capabilities{HasCamera: true, HasMicrophone: true, HasButton: true},
	}
}

func (f *fakeSession) Capabilities() device.Capabilities { return f.caps }

func (f *fakeSession) RequestPhoto(ctx context.Context) (*device.Photo, error) {
	f.mu.Lock()
	f.photoCount++
	block := f.photoBlock
	err := f.photoErr
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return &device.Photo{Data: []byte("jpeg"), MimeType: "image/jpeg"}, nil
}

func (f *fakeSession) OnButtonPress(fn func(device.PressType)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPress = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubCount++
	}
}

func (f *fakeSession) OnTranscription(fn func(string, bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSTT = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubCount++
	}
}

func (f *fakeSession) ShowText(text string, durationMs int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, text)
	return nil
}

func (f *fakeSession) PlayAudio(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, url)
	return nil
}

func (f *fakeSession) shownTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.shown...)
}

func (f *fakeSession) playedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.played...)
}

func (f *fakeSession) photos() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.photoCount
}

func (f *fakeSession) transcribe(text string, isFinal bool) {
	f.mu.Lock()
	fn := f.onSTT
	f.mu.Unlock()
	if fn != nil {
		fn(text, isFinal)
	}
}

// fakeDispatcher plays back a scripted result and records every job.
type fakeDispatcher struct {
	mu     sync.Mutex
	jobs   []dispatch.Job
	result map[string]interface{}
	err    error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, job dispatch.Job) (map[string]interface{}, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	result, err := f.result, f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *fakeDispatcher) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *fakeDispatcher) lastJob() dispatch.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[len(f.jobs)-1]
}

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		TaskTimeout:    time.Second,
		CameraCooldown: 50 * time.Millisecond,
		CameraMaxWait:  0,
		PollInterval:   10 * time.Millisecond,
		StreamInterval: 30 * time.Millisecond,
	}
}

func newTestManager(disp Dispatcher) *Manager {
	return NewManager(disp, nil, testConfig(), logger.NewNopLogger())
}

func contains(texts []string, substr string) bool {
	for _, s := range texts {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestShortPressCapturesAndShowsResult(t *testing.T) {
	disp := &fakeDispatcher{result: map[string]interface{}{
		"analyzed":       true,
		"dish_name":      "ramen",
		"total_calories": 520.0,
	}}
	m := newTestManager(disp)

	sess := newFakeSession()
	m.OnStart("u1", sess)
	defer m.OnStop("u1")

	m.HandleShortPress("u1")

	if got := sess.photos(); got != 1 {
		t.Fatalf("photo requests = %d, want 1", got)
	}
	if disp.jobCount() != 1 {
		t.Fatalf("dispatched jobs = %d, want 1", disp.jobCount())
	}
	job := disp.lastJob()
	if job.Type != worker.TypeImage {
		t.Errorf("job type = %q, want image", job.Type)
	}
	if !contains(sess.shownTexts(), "ramen") {
		t.Errorf("HUD texts %v do not include the dish name", sess.shownTexts())
	}

	if phase, _ := m.Phase("u1"); phase != PhaseIdle {
		t.Errorf("phase after capture = %q, want idle", phase)
	}
}

func TestShortPressSkippedWhileCaptureInFlight(t *testing.T) {
	disp := &fakeDispatcher{result: map[string]interface{}{"analyzed": true, "dish_name": "x", "total_calories": 1.0}}
	m := newTestManager(disp)

	sess := newFakeSession()
	block := make(chan struct{})
	sess.photoBlock = block

	m.OnStart("u1", sess)
	defer m.OnStop("u1")

	done := make(chan struct{})
	go func() {
		m.HandleShortPress("u1")
		close(done)
	}()

	// Wait for the first capture to take the camera.
	deadline := time.Now().Add(time.Second)
	for {
		if phase, _ := m.Phase("u1"); phase == PhaseCaptureInFlight {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first capture never took the camera")
		}
		time.Sleep(time.Millisecond)
	}

	m.HandleShortPress("u1")

	close(block)
	<-done

	if got := sess.photos(); got != 1 {
		t.Errorf("photo requests = %d, want 1 (second press must be skipped)", got)
	}
	if disp.jobCount() != 1 {
		t.Errorf("dispatched jobs = %d, want 1", disp.jobCount())
	}
}

func TestShortPressRespectsCooldown(t *testing.T) {
	disp := &fakeDispatcher{result: map[string]interface{}{"analyzed": true, "dish_name": "x", "total_calories": 1.0}}
	m := newTestManager(disp)

	sess := newFakeSession()
	m.OnStart("u1", sess)
	defer m.OnStop("u1")

	m.HandleShortPress("u1")

	// Inside the cooldown window the camera must refuse a second capture.
	m.HandleShortPress("u1")
	if disp.jobCount() != 1 {
		t.Fatalf("dispatched jobs = %d inside cooldown, want 1", disp.jobCount())
	}
	if !contains(sess.shownTexts(), "Camera is busy") {
		t.Errorf("HUD texts %v missing the busy notice", sess.shownTexts())
	}

	time.Sleep(60 * time.Millisecond)
	m.HandleShortPress("u1")
	if disp.jobCount() != 2 {
		t.Errorf("dispatched jobs = %d after cooldown, want 2", disp.jobCount())
	}
}

func TestLongPressQuestionFlow(t *testing.T) {
	disp := &fakeDispatcher{result: map[string]interface{}{
		"answer":    "Spaghetti, around 640 calories.",
		"audio_url": "https://storage/narration.mp3",
	}}
	m := newTestManager(disp)

	sess := newFakeSession()
	m.OnStart("u1", sess)
	defer m.OnStop("u1")

	m.HandleLongPress("u1")
	if phase, _ := m.Phase("u1"); phase != PhaseQuestionCapture {
		t.Fatalf("phase = %q, want question_capture", phase)
	}
	if !contains(sess.shownTexts(), "Listening") {
		t.Errorf("HUD texts %v missing the listening prompt", sess.shownTexts())
	}

	// Interim fragments are discarded; only final fragments accumulate.
	sess.transcribe("wha", false)
	sess.transcribe("What's", true)
	sess.transcribe(" in", true)
	sess.transcribe(" this?", true)

	if got := m.QuestionBuffer("u1"); got != "What's in this?" {
		t.Fatalf("question buffer = %q, want %q", got, "What's in this?")
	}

	m.HandleLongPress("u1")

	if disp.jobCount() != 1 {
		t.Fatalf("dispatched jobs = %d, want 1", disp.jobCount())
	}
	job := disp.lastJob()
	if job.Type != worker.TypeImage {
		t.Errorf("job type = %q, want image", job.Type)
	}
	if q, _ := job.Payload["question"].(string); q != "What's in this?" {
		t.Errorf("payload question = %q, want the combined buffer", q)
	}

	if !contains(sess.playedURLs(), "https://storage/narration.mp3") {
		t.Errorf("played %v, want the narration url", sess.playedURLs())
	}
	if !contains(sess.shownTexts(), "Spaghetti") {
		t.Errorf("HUD texts %v missing the answer", sess.shownTexts())
	}
	if got := m.QuestionBuffer("u1"); got != "" {
		t.Errorf("question buffer = %q after dispatch, want empty", got)
	}
}

func TestLongPressEmptyQuestionAborts(t *testing.T) {
	disp := &fakeDispatcher{}
	m := newTestManager(disp)

	sess := newFakeSession()
	m.OnStart("u1", sess)
	defer m.OnStop("u1")

	m.HandleLongPress("u1")
	m.HandleLongPress("u1")

	if disp.jobCount() != 0 {
		t.Errorf("dispatched jobs = %d with empty question, want 0", disp.jobCount())
	}
	if !contains(sess.shownTexts(), "No question captured") {
		t.Errorf("HUD texts %v missing the empty-question notice", sess.shownTexts())
	}
	if phase, _ := m.Phase("u1"); phase != PhaseIdle {
		t.Errorf("phase = %q, want idle", phase)
	}
}

func TestTranscriptionIgnoredOutsideQuestionCapture(t *testing.T) {
	m := newTestManager(&fakeDispatcher{})

	sess := newFakeSession()
	m.OnStart("u1", sess)
	defer m.OnStop("u1")

	sess.transcribe("stray words", true)

	if got := m.QuestionBuffer("u1"); got != "" {
		t.Errorf("question buffer = %q, want empty", got)
	}
}

func TestDispatchFailureReleasesCamera(t *testing.T) {
	disp := &fakeDispatcher{err: errors.New("both attempts failed")}
	m := newTestManager(disp)

	sess := newFakeSession()
	m.OnStart("u1", sess)
	defer m.OnStop("u1")

	m.HandleShortPress("u1")

	if !contains(sess.shownTexts(), "Analysis failed") {
		t.Errorf("HUD texts %v missing the failure notice", sess.shownTexts())
	}

	// Camera must be free again once the cooldown has elapsed.
	time.Sleep(60 * time.Millisecond)
	m.HandleShortPress("u1")
	if disp.jobCount() != 2 {
		t.Errorf("dispatched jobs = %d, want 2 (camera wedged)", disp.jobCount())
	}
}

func TestStreamingPollCaptures(t *testing.T) {
	disp := &fakeDispatcher{result: map[string]interface{}{"analyzed": true, "dish_name": "x", "total_calories": 1.0}}
	m := newTestManager(disp)

	sess := newFakeSession()
	m.OnStart("u1", sess)

	m.ToggleStreaming("u1", true)
	if phase, _ := m.Phase("u1"); phase != PhaseStreamingArmed {
		t.Fatalf("phase = %q, want streaming_armed", phase)
	}

	deadline := time.Now().Add(2 * time.Second)
	for disp.jobCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("streaming never captured")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.OnStop("u1")

	// A stopped session must not keep capturing.
	count := disp.jobCount()
	time.Sleep(100 * time.Millisecond)
	if disp.jobCount() != count {
		t.Errorf("dispatched jobs grew from %d to %d after stop", count, disp.jobCount())
	}
}

func TestOnStopPurgesSession(t *testing.T) {
	m := newTestManager(&fakeDispatcher{})

	sess := newFakeSession()
	m.OnStart("u1", sess)
	if !m.HasUser("u1") {
		t.Fatal("HasUser = false after OnStart")
	}

	m.OnStop("u1")

	if m.HasUser("u1") {
		t.Error("HasUser = true after OnStop")
	}
	sess.mu.Lock()
	unsubs := sess.unsubCount
	sess.mu.Unlock()
	if unsubs != 2 {
		t.Errorf("unsubscribes = %d, want 2 (button and transcription)", unsubs)
	}

	// Repeated stop and events for a dead session are no-ops.
	m.OnStop("u1")
	m.HandleShortPress("u1")
	m.HandleLongPress("u1")
	m.HandleTranscription("u1", "late")
}

// fakePipeline counts in-process executions of the heavy operations.
type fakePipeline struct {
	mu            sync.Mutex
	processCalls  int
	questionCalls int
	narrateCalls  int
}

func (f *fakePipeline) ProcessImage(ctx context.Context, userID string, photo *device.Photo) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processCalls++
	return map[string]interface{}{"analyzed": true, "dish_name": "soup", "total_calories": 200.0}, nil
}

func (f *fakePipeline) AnswerQuestion(ctx context.Context, userID string, photo *device.Photo, question string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionCalls++
	return map[string]interface{}{"answer": "soup"}, nil
}

func (f *fakePipeline) Narrate(ctx context.Context, userID, text, voiceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.narrateCalls++
	return "https://storage/narration.mp3", nil
}

func TestCaptureFallsBackWhenWorkersUninitialized(t *testing.T) {
	// Real facade over a pool with no live workers: every capture must run
	// in-process through the fallback.
	pool := worker.NewPool(time.Second, logger.NewNopLogger())
	d := dispatch.NewDispatcher(pool, logger.NewNopLogger())

	pipeline := &fakePipeline{}
	m := NewManager(d, pipeline, testConfig(), logger.NewNopLogger())

	sess := newFakeSession()
	m.OnStart("u1", sess)
	defer m.OnStop("u1")

	m.HandleShortPress("u1")

	pipeline.mu.Lock()
	calls := pipeline.processCalls
	pipeline.mu.Unlock()
	if calls != 1 {
		t.Fatalf("in-process executions = %d, want 1", calls)
	}
	if !contains(sess.shownTexts(), "soup") {
		t.Errorf("HUD texts %v missing the fallback result", sess.shownTexts())
	}
}

func TestSpeakPlaysNarration(t *testing.T) {
	disp := &fakeDispatcher{result: map[string]interface{}{"audio_url": "https://storage/say.mp3"}}
	m := newTestManager(disp)

	sess := newFakeSession()
	m.OnStart("u1", sess)
	defer m.OnStop("u1")

	if err := m.Speak(context.Background(), "u1", "hello", ""); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if disp.jobCount() != 1 {
		t.Fatalf("jobs = %d, want 1", disp.jobCount())
	}
	if got := disp.lastJob().Type; got != worker.TypeAudio {
		t.Fatalf("job type = %q, want audio", got)
	}
	if !contains(sess.playedURLs(), "https://storage/say.mp3") {
		t.Errorf("played %v, want the narration url", sess.playedURLs())
	}

	if err := m.Speak(context.Background(), "nobody", "hello", ""); err == nil {
		t.Error("Speak succeeded for an unknown user")
	}
}
