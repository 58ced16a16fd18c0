package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "MEAL_ANALYZED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type codes published on the bus.
const (
	TypeMealAnalyzed     = "MEAL_ANALYZED"
	TypeQuestionAnswered = "QUESTION_ANSWERED"
	TypeSessionStarted   = "SESSION_STARTED"
	TypeSessionStopped   = "SESSION_STOPPED"
)

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewMealAnalyzed builds the event emitted after a capture has been uploaded
// and analyzed.
func NewMealAnalyzed(userID, imageURL string, payload map[string]interface{}) BaseEvent {
	data := map[string]interface{}{
		"user_id":   userID,
		"image_url": imageURL,
	}
	for k, v := range payload {
		data[k] = v
	}
	return BaseEvent{Type: TypeMealAnalyzed, Data: data, OccurredAt: time.Now()}
}

// NewQuestionAnswered builds the event for a completed photo+question flow.
func NewQuestionAnswered(userID, imageURL, question, answer string) BaseEvent {
	return BaseEvent{
		Type: TypeQuestionAnswered,
		Data: map[string]interface{}{
			"user_id":   userID,
			"image_url": imageURL,
			"question":  question,
			"answer":    answer,
		},
		OccurredAt: time.Now(),
	}
}

// NewSessionEvent marks session lifecycle changes for external consumers.
func NewSessionEvent(eventType, userID string) BaseEvent {
	return BaseEvent{
		Type:       eventType,
		Data:       map[string]interface{}{"user_id": userID},
		OccurredAt: time.Now(),
	}
}
