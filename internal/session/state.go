package session

import (
	"strings"
	"sync"
	"time"

	"nutrilens-be/pkg/device"
)

// Phase is the user's position in the interaction protocol.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseStreamingArmed  Phase = "streaming_armed"
	PhaseQuestionCapture Phase = "question_capture"
	PhaseCaptureInFlight Phase = "capture_in_flight"
)

// UserState is all per-user interaction state. The Manager is the only
// writer; triggers arriving on different goroutines serialize through mu.
type UserState struct {
	mu sync.Mutex

	userID string
	sess   device.Session

	streamingEnabled bool
	nextCaptureAt    time.Time
	cameraReady      bool
	cameraInUse      bool
	lastOpAt         time.Time

	questionActive bool
	questionBuf    strings.Builder

	pollStop chan struct{}
	pollDone chan struct{}
	unsubs   []func()
}

// Phase derives the current protocol phase from the flags.
func (st *UserState) Phase() Phase {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch {
	case st.cameraInUse:
		return PhaseCaptureInFlight
	case st.questionActive:
		return PhaseQuestionCapture
	case st.streamingEnabled:
		return PhaseStreamingArmed
	default:
		return PhaseIdle
	}
}

func (st *UserState) appendQuestion(fragment string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.questionActive {
		st.questionBuf.WriteString(fragment)
	}
}

func (st *UserState) question() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.questionBuf.String()
}

func (st *UserState) resetQuestion() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.questionActive = false
	st.questionBuf.Reset()
}
