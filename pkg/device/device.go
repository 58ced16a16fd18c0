// Package device defines the narrow surface of the smart-glasses SDK the
// backend actually calls. The real SDK session is injected behind these
// interfaces; tests and the simulator provide their own implementations.
package device

import "context"

// PressType distinguishes the two hardware button gestures.
type PressType string

const (
	PressShort PressType = "short"
	PressLong  PressType = "long"
)

// Capabilities reports which hardware features the connected device exposes.
// Handlers are only registered for features that are present.
type Capabilities struct {
	HasCamera     bool
	HasMicrophone bool
	HasButton     bool
}

// Photo is one captured frame.
type Photo struct {
	Data     []byte
	MimeType string
	Filename string
}

// Session is one device's live connection. All methods may be called from
// multiple goroutines.
type Session interface {
	Capabilities() Capabilities

	// RequestPhoto triggers a single hardware capture.
	RequestPhoto(ctx context.Context) (*Photo, error)

	// OnButtonPress registers a handler for button gestures and returns an
	// unsubscribe function.
	OnButtonPress(fn func(press PressType)) (unsubscribe func())

	// OnTranscription registers a handler for speech-to-text fragments.
	OnTranscription(fn func(text string, isFinal bool)) (unsubscribe func())

	// ShowText displays a short message on the device HUD.
	ShowText(text string, durationMs int) error

	// PlayAudio streams synthesized speech to the device speaker.
	PlayAudio(url string) error
}
