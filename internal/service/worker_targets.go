package service

import (
	"context"
	"fmt"

	"nutrilens-be/pkg/device"
	"nutrilens-be/pkg/worker"
)

// Payload keys shared between the session manager (which builds tasks) and
// the worker targets (which unpack them). Tasks stay in-process, so payloads
// may carry live pointers.
const (
	payloadUserID   = "user_id"
	payloadPhoto    = "photo"
	payloadQuestion = "question"
	payloadText     = "text"
	payloadVoiceID  = "voice_id"
)

// NewImagePayload builds the payload for an upload+analyze task. A non-empty
// question selects the combined answer-this-question flow.
func NewImagePayload(userID string, photo *device.Photo, question string) map[string]interface{} {
	return map[string]interface{}{
		payloadUserID:   userID,
		payloadPhoto:    photo,
		payloadQuestion: question,
	}
}

// NewAudioPayload builds the payload for a narration task.
func NewAudioPayload(userID, text, voiceID string) map[string]interface{} {
	return map[string]interface{}{
		payloadUserID:  userID,
		payloadText:    text,
		payloadVoiceID: voiceID,
	}
}

// ImageTaskTarget adapts the pipeline's image operations into a worker
// execution target.
func ImageTaskTarget(pipeline IPipelineService) worker.TargetFunc {
	return func(task worker.Task) (map[string]interface{}, error) {
		userID, _ := task.Payload[payloadUserID].(string)
		photo, _ := task.Payload[payloadPhoto].(*device.Photo)
		question, _ := task.Payload[payloadQuestion].(string)
		if photo == nil {
			return nil, fmt.Errorf("task %s: missing photo payload", task.ID)
		}

		if question != "" {
			return pipeline.AnswerQuestion(context.Background(), userID, photo, question)
		}
		return pipeline.ProcessImage(context.Background(), userID, photo)
	}
}

// AudioTaskTarget adapts narration into a worker execution target.
func AudioTaskTarget(pipeline IPipelineService) worker.TargetFunc {
	return func(task worker.Task) (map[string]interface{}, error) {
		userID, _ := task.Payload[payloadUserID].(string)
		text, _ := task.Payload[payloadText].(string)
		voiceID, _ := task.Payload[payloadVoiceID].(string)
		if text == "" {
			return nil, fmt.Errorf("task %s: missing text payload", task.ID)
		}

		audioURL, err := pipeline.Narrate(context.Background(), userID, text, voiceID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"audio_url": audioURL}, nil
	}
}
