package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"nutrilens-be/internal/dto"
	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/internal/repository/memory"
	"nutrilens-be/pkg/device"
	"nutrilens-be/pkg/storage"
	"nutrilens-be/pkg/vision"
	"nutrilens-be/pkg/worker"
)

type stubUploader struct {
	err   error
	calls int
}

func (s *stubUploader) Upload(ctx context.Context, data []byte, filename, mimeType, ownerID, requestID string) (*storage.UploadResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &storage.UploadResult{
		URL:  fmt.Sprintf("https://storage/%s/%s", ownerID, filename),
		Key:  ownerID + "/" + filename,
		Size: len(data),
	}, nil
}

type stubAnalyzer struct {
	estimate *vision.NutritionEstimate
	err      error
	lastCtx  string
}

func (s *stubAnalyzer) Analyze(ctx context.Context, imageURL, promptContext string) (*vision.NutritionEstimate, error) {
	s.lastCtx = promptContext
	return s.estimate, s.err
}

type stubSynthesizer struct {
	err error
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("mp3:" + text), nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []dto.MealAnalyzedMessage
}

func (r *recordingPublisher) PublishMealAnalyzed(msg dto.MealAnalyzedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) published() []dto.MealAnalyzedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dto.MealAnalyzedMessage{}, r.msgs...)
}

func testPhoto() *device.Photo {
	return &device.Photo{Data: []byte("jpeg"), MimeType: "image/jpeg", Filename: "meal.jpg"}
}

func TestProcessImagePublishesEstimate(t *testing.T) {
	pub := &recordingPublisher{}
	captures := memory.NewCaptureCache()
	svc := NewPipelineService(
		&stubUploader{},
		&stubAnalyzer{estimate: &vision.NutritionEstimate{
			DishName:      "Ramen",
			TotalCalories: 520,
			Confidence:    0.9,
			Items: []vision.NutritionItem{
				{Name: "noodles", Calories: 400, Protein: 12, Carbs: 80, Fat: 3},
				{Name: "broth", Calories: 120, Protein: 6, Carbs: 4, Fat: 8},
			},
		}},
		&stubSynthesizer{},
		pub,
		captures,
		"",
		logger.NewNopLogger(),
	)

	result, err := svc.ProcessImage(context.Background(), "u1", testPhoto())
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if result["analyzed"] != true {
		t.Fatalf("result = %v, want analyzed=true", result)
	}
	if result["dish_name"] != "Ramen" {
		t.Errorf("dish_name = %v, want Ramen", result["dish_name"])
	}

	msgs := pub.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.UserId != "u1" || msg.DishName != "Ramen" {
		t.Errorf("message = %+v, want u1/Ramen", msg)
	}
	// Macros are summed from the item list.
	if msg.ProteinG != 18 || msg.CarbsG != 84 || msg.FatG != 11 {
		t.Errorf("macros = %v/%v/%v, want 18/84/11", msg.ProteinG, msg.CarbsG, msg.FatG)
	}

	// The capture stays available for the last-image endpoint.
	if _, found := captures.Get("u1"); !found {
		t.Error("capture cache has no entry for u1")
	}
}

func TestProcessImageNoAnalysis(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewPipelineService(
		&stubUploader{},
		&stubAnalyzer{estimate: nil},
		&stubSynthesizer{},
		pub,
		memory.NewCaptureCache(),
		"",
		logger.NewNopLogger(),
	)

	result, err := svc.ProcessImage(context.Background(), "u1", testPhoto())
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if result["analyzed"] != false {
		t.Errorf("result = %v, want analyzed=false", result)
	}
	if result["image_url"] == "" {
		t.Error("image_url missing for an unanalyzed capture")
	}
	if len(pub.published()) != 0 {
		t.Errorf("published %d messages for an unanalyzed capture, want 0", len(pub.published()))
	}
}

func TestProcessImageUploadFailure(t *testing.T) {
	svc := NewPipelineService(
		&stubUploader{err: errors.New("bucket gone")},
		&stubAnalyzer{},
		&stubSynthesizer{},
		&recordingPublisher{},
		memory.NewCaptureCache(),
		"",
		logger.NewNopLogger(),
	)

	if _, err := svc.ProcessImage(context.Background(), "u1", testPhoto()); err == nil {
		t.Fatal("ProcessImage succeeded with a failing uploader")
	}
}

func TestAnswerQuestionNarrationFailureIsNonFatal(t *testing.T) {
	analyzer := &stubAnalyzer{estimate: &vision.NutritionEstimate{
		DishName:      "Pho",
		TotalCalories: 430,
		Answer:        "That's pho, about 430 calories.",
	}}
	svc := NewPipelineService(
		&stubUploader{},
		analyzer,
		&stubSynthesizer{err: errors.New("speech api down")},
		&recordingPublisher{},
		memory.NewCaptureCache(),
		"voice-1",
		logger.NewNopLogger(),
	)

	result, err := svc.AnswerQuestion(context.Background(), "u1", testPhoto(), "how many calories?")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if result["answer"] != "That's pho, about 430 calories." {
		t.Errorf("answer = %v, want the model's answer", result["answer"])
	}
	if result["audio_url"] != "" {
		t.Errorf("audio_url = %v, want empty when narration fails", result["audio_url"])
	}
	if analyzer.lastCtx != "how many calories?" {
		t.Errorf("prompt context = %q, want the question", analyzer.lastCtx)
	}
}

func TestAnswerQuestionFallbackText(t *testing.T) {
	tests := []struct {
		name       string
		estimate   *vision.NutritionEstimate
		wantAnswer string
	}{
		{
			name:       "no estimate",
			estimate:   nil,
			wantAnswer: "I could not analyze that photo.",
		},
		{
			name:       "estimate without answer",
			estimate:   &vision.NutritionEstimate{DishName: "toast", TotalCalories: 180},
			wantAnswer: "Looks like toast, roughly 180 calories.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewPipelineService(
				&stubUploader{},
				&stubAnalyzer{estimate: tt.estimate},
				&stubSynthesizer{},
				&recordingPublisher{},
				memory.NewCaptureCache(),
				"",
				logger.NewNopLogger(),
			)

			result, err := svc.AnswerQuestion(context.Background(), "u1", testPhoto(), "what is this?")
			if err != nil {
				t.Fatalf("AnswerQuestion: %v", err)
			}
			if result["answer"] != tt.wantAnswer {
				t.Errorf("answer = %v, want %q", result["answer"], tt.wantAnswer)
			}
		})
	}
}

func TestWorkerTargetsUnpackPayloads(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewPipelineService(
		&stubUploader{},
		&stubAnalyzer{estimate: &vision.NutritionEstimate{DishName: "Ramen", TotalCalories: 520}},
		&stubSynthesizer{},
		pub,
		memory.NewCaptureCache(),
		"",
		logger.NewNopLogger(),
	)

	imageTarget := ImageTaskTarget(svc)
	result, err := imageTarget(worker.Task{
		ID:      "image_1_abc",
		Payload: NewImagePayload("u1", testPhoto(), ""),
	})
	if err != nil {
		t.Fatalf("image target: %v", err)
	}
	if result["analyzed"] != true {
		t.Errorf("result = %v, want analyzed=true", result)
	}

	if _, err := imageTarget(worker.Task{ID: "image_2_def", Payload: map[string]interface{}{}}); err == nil {
		t.Error("image target succeeded without a photo payload")
	}

	audioTarget := AudioTaskTarget(svc)
	result, err = audioTarget(worker.Task{
		ID:      "audio_1_abc",
		Payload: NewAudioPayload("u1", "hello there", ""),
	})
	if err != nil {
		t.Fatalf("audio target: %v", err)
	}
	if url, _ := result["audio_url"].(string); url == "" {
		t.Error("audio target returned no audio_url")
	}

	if _, err := audioTarget(worker.Task{ID: "audio_2_def", Payload: map[string]interface{}{}}); err == nil {
		t.Error("audio target succeeded without text")
	}
}
