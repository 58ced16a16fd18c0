// Command simulate drives the session state machine from the terminal
// without glasses hardware or live API credentials. Captures, analysis and
// narration are stubbed; the worker pool, dispatch facade and camera lock
// run for real.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"nutrilens-be/internal/config"
	"nutrilens-be/internal/dto"
	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/internal/repository/memory"
	"nutrilens-be/internal/service"
	"nutrilens-be/internal/session"
	"nutrilens-be/pkg/device"
	"nutrilens-be/pkg/dispatch"
	"nutrilens-be/pkg/storage"
	"nutrilens-be/pkg/vision"
	"nutrilens-be/pkg/worker"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/fatih/color"
	"github.com/google/uuid"
)

const simUser = "11111111-1111-1111-1111-111111111111"

type simDevice struct {
	mu      sync.Mutex
	buttons []func(device.PressType)
	speech  []func(string, bool)
}

func (d *simDevice) Capabilities() device.Capabilities {
	return device.Capabilities{HasCamera: true, HasMicrophone: true, HasButton: true}
}

func (d *simDevice) RequestPhoto(ctx context.Context) (*device.Photo, error) {
	color.Cyan("📷 capture!")
	return &device.Photo{
		Data:     []byte("simulated-jpeg"),
		MimeType: "image/jpeg",
		Filename: fmt.Sprintf("sim_%d.jpg", time.Now().UnixMilli()),
	}, nil
}

func (d *simDevice) OnButtonPress(fn func(device.PressType)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buttons = append(d.buttons, fn)
	return func() {}
}

func (d *simDevice) OnTranscription(fn func(string, bool)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speech = append(d.speech, fn)
	return func() {}
}

func (d *simDevice) ShowText(text string, durationMs int) error {
	color.Green("HUD> %s", text)
	return nil
}

func (d *simDevice) PlayAudio(url string) error {
	color.Magenta("🔊 playing %s", url)
	return nil
}

func (d *simDevice) press(p device.PressType) {
	d.mu.Lock()
	handlers := append([]func(device.PressType){}, d.buttons...)
	d.mu.Unlock()
	for _, fn := range handlers {
		fn(p)
	}
}

func (d *simDevice) transcribe(text string) {
	d.mu.Lock()
	handlers := append([]func(string, bool){}, d.speech...)
	d.mu.Unlock()
	for _, fn := range handlers {
		fn(text, true)
	}
}

type stubUploader struct{}

func (stubUploader) Upload(ctx context.Context, data []byte, filename, mimeType, ownerID, requestID string) (*storage.UploadResult, error) {
	return &storage.UploadResult{
		URL:  "https://storage.local/" + ownerID + "/" + filename,
		Key:  ownerID + "/" + filename,
		Size: len(data),
	}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, imageURL, promptContext string) (*vision.NutritionEstimate, error) {
	est := &vision.NutritionEstimate{
		DishName:      "Spaghetti Bolognese",
		TotalCalories: 640,
		Confidence:    0.82,
		Items: []vision.NutritionItem{
			{Name: "pasta", Calories: 380, Protein: 13, Carbs: 75, Fat: 2},
			{Name: "meat sauce", Calories: 260, Protein: 18, Carbs: 9, Fat: 16},
		},
	}
	if promptContext != "" {
		est.Answer = "That looks like spaghetti bolognese, around 640 calories."
	}
	return est, nil
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

func main() {
	cfg := config.Load()
	cfg.Pipeline.CameraCooldown = 500 * time.Millisecond
	log := logger.NewNopLogger()

	// Real event bus, console consumer.
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	publisher := service.NewPublisherService("MEAL_ANALYZED", pubSub)
	go printMeals(pubSub)

	captures := memory.NewCaptureCache()
	pipeline := service.NewPipelineService(
		stubUploader{},
		stubAnalyzer{},
		stubSynthesizer{},
		publisher,
		captures,
		"",
		log,
	)

	pool := worker.NewPool(cfg.Pipeline.TaskTimeout, log)
	pool.RegisterType(worker.TypeImage, service.ImageTaskTarget(pipeline))
	pool.RegisterType(worker.TypeAudio, service.AudioTaskTarget(pipeline))
	pool.Initialize(worker.TypeImage)
	pool.Initialize(worker.TypeAudio)
	defer pool.TerminateAll()

	dispatcher := dispatch.NewDispatcher(pool, log)
	manager := session.NewManager(dispatcher, pipeline, cfg.Pipeline, log)

	dev := &simDevice{}
	userID := simUser
	if _, err := uuid.Parse(userID); err != nil {
		panic(err)
	}
	manager.OnStart(userID, dev)
	defer manager.OnStop(userID)

	color.White("commands: short | long | say <text> | stream on|off | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "short":
			dev.press(device.PressShort)
		case line == "long":
			dev.press(device.PressLong)
		case strings.HasPrefix(line, "say "):
			dev.transcribe(strings.TrimPrefix(line, "say "))
		case line == "stream on":
			manager.ToggleStreaming(userID, true)
			color.Yellow("streaming armed")
		case line == "stream off":
			manager.ToggleStreaming(userID, false)
			color.Yellow("streaming disarmed")
		case line == "quit":
			return
		default:
			color.Red("unknown command: %s", line)
		}
		// Give async handlers a beat before the next prompt.
		time.Sleep(300 * time.Millisecond)
	}
}

// printMeals shows analyzed meals on the console instead of persisting them.
func printMeals(pubSub *gochannel.GoChannel) {
	messages, err := pubSub.Subscribe(context.Background(), "MEAL_ANALYZED")
	if err != nil {
		color.Red("subscribe failed: %v", err)
		return
	}
	for msg := range messages {
		var meal dto.MealAnalyzedMessage
		if err := json.Unmarshal(msg.Payload, &meal); err == nil {
			color.Yellow("meal analyzed: %s (%.0f kcal, confidence %.2f)",
				meal.DishName, meal.TotalCalories, meal.Confidence)
		}
		msg.Ack()
	}
}
