package bootstrap

import (
	"context"
	"fmt"
	"log"
	"strings"

	"nutrilens-be/internal/config"
	"nutrilens-be/internal/controller"
	"nutrilens-be/internal/handler"
	"nutrilens-be/internal/model"
	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/internal/repository/contract"
	"nutrilens-be/internal/repository/implementation"
	"nutrilens-be/internal/repository/memory"
	"nutrilens-be/internal/service"
	"nutrilens-be/internal/session"
	"nutrilens-be/internal/websocket"
	"nutrilens-be/pkg/dispatch"
	"nutrilens-be/pkg/events"
	"nutrilens-be/pkg/notify"
	"nutrilens-be/pkg/speech"
	"nutrilens-be/pkg/storage"
	"nutrilens-be/pkg/vision"
	"nutrilens-be/pkg/worker"

	pktNats "nutrilens-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const mealAnalyzedTopic = "MEAL_ANALYZED"

type Container struct {
	// Controllers
	CaptureController controller.ICaptureController
	MealController    controller.IMealController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// Core runtime
	SessionManager *session.Manager
	WorkerPool     *worker.Pool

	// WebSockets
	FeedHandler  *handler.FeedHandler
	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/feed.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. Collaborator clients
	storageClient := storage.NewClient(cfg.Storage.BaseURL, cfg.Storage.Bucket, cfg.Storage.APIKey)
	visionClient := vision.NewClient(cfg.Vision.APIKey, cfg.Vision.Model)
	speechClient := speech.NewClient(cfg.Speech.APIKey)
	webhookClient := notify.NewWebhookClient(cfg.Webhook.URL, sysLogger)

	// 4. Services
	captureCache := memory.NewCaptureCache()
	publisherService := service.NewPublisherService(mealAnalyzedTopic, pubSub)

	pipelineService := service.NewPipelineService(
		storageClient,
		visionClient,
		speechClient,
		publisherService,
		captureCache,
		cfg.Speech.VoiceID,
		sysLogger,
	)

	mealRepo := implementation.NewMealRepository(db)
	mealService := service.NewMealService(mealRepo, sysLogger)
	deviceEventRepo := implementation.NewDeviceEventRepository(db)

	consumerService := service.NewConsumerService(
		pubSub,
		mealAnalyzedTopic,
		mealService,
		deviceEventRepo,
		wsHub,
		natsPublisherOrNil(natsPub),
		webhookClient,
		sysLogger,
	)

	// 5. Worker pool + dispatch facade
	poolLogger := logger.NewIsolatedLogger("logs/worker.log")
	pool := worker.NewPool(cfg.Pipeline.TaskTimeout, poolLogger)
	pool.RegisterType(worker.TypeImage, service.ImageTaskTarget(pipelineService))
	pool.RegisterType(worker.TypeAudio, service.AudioTaskTarget(pipelineService))

	// Initialization failure is non-fatal: dispatch falls back to
	// in-process execution when a worker is missing.
	if err := pool.Initialize(worker.TypeImage); err != nil {
		log.Printf("[WARN] Failed to initialize image worker: %v", err)
	}
	if err := pool.Initialize(worker.TypeAudio); err != nil {
		log.Printf("[WARN] Failed to initialize audio worker: %v", err)
	}

	dispatcher := dispatch.NewDispatcher(pool, sysLogger)

	// 6. Session state machine
	sessionManager := session.NewManager(dispatcher, pipelineService, cfg.Pipeline, sysLogger)
	sessionManager.SetEventSink(natsPublisherOrNil(natsPub))

	// Session lifecycle events flow through the bus and land as audit rows.
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		for _, eventType := range []string{events.TypeSessionStarted, events.TypeSessionStopped} {
			subject := "events." + eventType
			durable := "nutrilens-audit-" + strings.ToLower(eventType)
			if err := natsSub.Subscribe(subject, durable, sessionAuditHandler(deviceEventRepo)); err != nil {
				log.Printf("[WARN] Failed to subscribe to %s: %v", subject, err)
			}
		}
	}

	// 7. Controllers & handlers
	captureController := controller.NewCaptureController(sessionManager, captureCache)
	mealController := controller.NewMealController(mealService)
	feedHandler := handler.NewFeedHandler(wsHub, wsLogger)

	return &Container{
		CaptureController: captureController,
		MealController:    mealController,
		ConsumerService:   consumerService,
		SessionManager:    sessionManager,
		WorkerPool:        pool,
		FeedHandler:       feedHandler,
		WebSocketHub:      wsHub,
	}
}

// sessionAuditHandler persists session lifecycle events from the bus as
// device-event audit rows. Malformed payloads are dropped, not redelivered.
func sessionAuditHandler(repo contract.DeviceEventRepository) pktNats.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		uid, err := uuid.Parse(fmt.Sprint(event.Payload()["user_id"]))
		if err != nil {
			return nil
		}
		return repo.Create(ctx, &model.DeviceEvent{
			Id:        uuid.New(),
			UserId:    uid,
			EventType: strings.TrimPrefix(event.EventType(), "events."),
		})
	}
}

// natsPublisherOrNil keeps a failed NATS connection from becoming a typed
// nil inside the consumer's interface field.
func natsPublisherOrNil(p *pktNats.Publisher) service.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
