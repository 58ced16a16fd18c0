package dto

// SpeakRequest asks the backend to narrate text on the user's device.
type SpeakRequest struct {
	Text    string `json:"text" validate:"required,min=1,max=500"`
	VoiceID string `json:"voice_id,omitempty"`
}

// LastImageResponse describes the freshest capture for a user.
type LastImageResponse struct {
	ImageURL string `json:"image_url"`
	TakenAt  string `json:"taken_at"`
}
