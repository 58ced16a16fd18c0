package service

import (
	"context"
	"fmt"
	"time"

	"nutrilens-be/internal/dto"
	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/internal/repository/memory"
	"nutrilens-be/pkg/device"
	"nutrilens-be/pkg/storage"
	"nutrilens-be/pkg/vision"

	"github.com/google/uuid"
)

// Uploader is the slice of the blob-storage client the pipeline needs.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename, mimeType, ownerID, requestID string) (*storage.UploadResult, error)
}

// Analyzer is the vision-model contract. A nil estimate with a nil error
// means "no analysis available", not a failure.
type Analyzer interface {
	Analyze(ctx context.Context, imageURL, promptContext string) (*vision.NutritionEstimate, error)
}

// Synthesizer converts text to narration audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// IPipelineService holds the logical operations behind the dispatch facade.
// The same code runs inside a background worker or as the in-process
// fallback; only the routing differs.
type IPipelineService interface {
	ProcessImage(ctx context.Context, userID string, photo *device.Photo) (map[string]interface{}, error)
	AnswerQuestion(ctx context.Context, userID string, photo *device.Photo, question string) (map[string]interface{}, error)
	Narrate(ctx context.Context, userID, text, voiceID string) (string, error)
}

type pipelineService struct {
	uploader  Uploader
	analyzer  Analyzer
	speech    Synthesizer
	publisher IPublisherService
	captures  *memory.CaptureCache
	voiceID   string
	logger    logger.ILogger
}

func NewPipelineService(
	uploader Uploader,
	analyzer Analyzer,
	speech Synthesizer,
	publisher IPublisherService,
	captures *memory.CaptureCache,
	voiceID string,
	log logger.ILogger,
) IPipelineService {
	return &pipelineService{
		uploader:  uploader,
		analyzer:  analyzer,
		speech:    speech,
		publisher: publisher,
		captures:  captures,
		voiceID:   voiceID,
		logger:    log,
	}
}

// ProcessImage uploads one capture, runs the nutrition analysis and emits a
// MEAL_ANALYZED message for the consumer to persist and fan out.
func (s *pipelineService) ProcessImage(ctx context.Context, userID string, photo *device.Photo) (map[string]interface{}, error) {
	uploaded, err := s.upload(ctx, userID, photo)
	if err != nil {
		return nil, err
	}

	estimate, err := s.analyzer.Analyze(ctx, uploaded.URL, "")
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"image_url": uploaded.URL,
		"image_key": uploaded.Key,
	}
	if estimate == nil {
		// Model output was not usable structured data. Report the upload
		// and move on; downstream branches on absence.
		s.logger.Warn("Pipeline", "No analysis available for capture", map[string]interface{}{"user_id": userID})
		result["analyzed"] = false
		return result, nil
	}

	result["analyzed"] = true
	result["dish_name"] = estimate.DishName
	result["total_calories"] = estimate.TotalCalories
	result["confidence"] = estimate.Confidence

	s.publishEstimate(userID, uploaded, estimate, "", "")
	return result, nil
}

// AnswerQuestion uploads the capture, asks the model the accumulated
// question about it and narrates the answer.
func (s *pipelineService) AnswerQuestion(ctx context.Context, userID string, photo *device.Photo, question string) (map[string]interface{}, error) {
	uploaded, err := s.upload(ctx, userID, photo)
	if err != nil {
		return nil, err
	}

	estimate, err := s.analyzer.Analyze(ctx, uploaded.URL, question)
	if err != nil {
		return nil, err
	}

	answer := "I could not analyze that photo."
	if estimate != nil && estimate.Answer != "" {
		answer = estimate.Answer
	} else if estimate != nil {
		answer = fmt.Sprintf("Looks like %s, roughly %.0f calories.", estimate.DishName, estimate.TotalCalories)
	}

	audioURL, err := s.Narrate(ctx, userID, answer, s.voiceID)
	if err != nil {
		// The spoken channel is optional; the text answer still stands.
		s.logger.Warn("Pipeline", "Narration failed", map[string]interface{}{"user_id": userID, "error": err.Error()})
		audioURL = ""
	}

	if estimate != nil {
		s.publishEstimate(userID, uploaded, estimate, question, answer)
	}

	return map[string]interface{}{
		"image_url": uploaded.URL,
		"answer":    answer,
		"audio_url": audioURL,
	}, nil
}

// Narrate synthesizes speech for the text and stores the audio so the
// device can stream it by URL.
func (s *pipelineService) Narrate(ctx context.Context, userID, text, voiceID string) (string, error) {
	if voiceID == "" {
		voiceID = s.voiceID
	}
	audio, err := s.speech.Synthesize(ctx, text, voiceID)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("narration_%d.mp3", time.Now().UnixMilli())
	uploaded, err := s.uploader.Upload(ctx, audio, filename, "audio/mpeg", userID, uuid.NewString())
	if err != nil {
		return "", err
	}
	return uploaded.URL, nil
}

func (s *pipelineService) upload(ctx context.Context, userID string, photo *device.Photo) (*storage.UploadResult, error) {
	filename := photo.Filename
	if filename == "" {
		filename = fmt.Sprintf("capture_%d.jpg", time.Now().UnixMilli())
	}
	mimeType := photo.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	uploaded, err := s.uploader.Upload(ctx, photo.Data, filename, mimeType, userID, uuid.NewString())
	if err != nil {
		return nil, err
	}

	s.captures.Save(&memory.Capture{
		UserID:   userID,
		Data:     photo.Data,
		MimeType: mimeType,
		ImageURL: uploaded.URL,
		TakenAt:  time.Now(),
	})
	return uploaded, nil
}

func (s *pipelineService) publishEstimate(userID string, uploaded *storage.UploadResult, estimate *vision.NutritionEstimate, question, answer string) {
	var protein, carbs, fat float64
	raw := map[string]interface{}{"items": estimate.Items}
	for _, item := range estimate.Items {
		protein += item.Protein
		carbs += item.Carbs
		fat += item.Fat
	}

	msg := dto.MealAnalyzedMessage{
		UserId:        userID,
		ImageURL:      uploaded.URL,
		ImageKey:      uploaded.Key,
		DishName:      estimate.DishName,
		TotalCalories: estimate.TotalCalories,
		ProteinG:      protein,
		CarbsG:        carbs,
		FatG:          fat,
		Confidence:    estimate.Confidence,
		Question:      question,
		Answer:        answer,
		RawAnalysis:   raw,
	}
	if err := s.publisher.PublishMealAnalyzed(msg); err != nil {
		s.logger.Error("Pipeline", "Failed to publish meal.analyzed", map[string]interface{}{"error": err.Error()})
	}
}
