package service

import (
	"context"
	"encoding/json"

	"nutrilens-be/internal/dto"
	"nutrilens-be/internal/model"
	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/internal/repository/contract"
	"nutrilens-be/internal/websocket"
	"nutrilens-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EventPublisher forwards domain events to the external bus (NATS). May be
// nil when the broker is unreachable; delivery is then skipped.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Notifier is the best-effort webhook contract.
type Notifier interface {
	Notify(ctx context.Context, payload map[string]interface{})
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the in-process bus: every analyzed meal is
// persisted, pushed to dashboard websockets, forwarded to NATS and posted
// to the outbound webhook.
type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	meals     IMealService
	audit     contract.DeviceEventRepository
	hub       *websocket.Hub
	natsPub   EventPublisher
	notifier  Notifier
	logger    logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	meals IMealService,
	audit contract.DeviceEventRepository,
	hub *websocket.Hub,
	natsPub EventPublisher,
	notifier Notifier,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		meals:     meals,
		audit:     audit,
		hub:       hub,
		natsPub:   natsPub,
		notifier:  notifier,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.MealAnalyzedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	// 1. Persist. Failure is reported, not retried: the capture already
	// succeeded from the user's point of view.
	if ok := cs.meals.Record(ctx, payload); !ok {
		cs.logger.Warn("ConsumerService", "Meal record not persisted", map[string]interface{}{"user_id": payload.UserId})
	}

	// 2. Audit trail.
	if cs.audit != nil {
		if uid, err := uuid.Parse(payload.UserId); err == nil {
			meta, _ := json.Marshal(map[string]interface{}{
				"image_url": payload.ImageURL,
				"dish_name": payload.DishName,
				"question":  payload.Question,
			})
			eventType := events.TypeMealAnalyzed
			if payload.Question != "" {
				eventType = events.TypeQuestionAnswered
			}
			event := &model.DeviceEvent{
				Id:        uuid.New(),
				UserId:    uid,
				EventType: eventType,
				Metadata:  datatypes.JSON(meta),
			}
			if err := cs.audit.Create(ctx, event); err != nil {
				cs.logger.Warn("ConsumerService", "Failed to write audit event", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	// 3. Live dashboard push.
	if cs.hub != nil {
		if uid, err := uuid.Parse(payload.UserId); err == nil {
			cs.hub.Send(uid, websocket.FeedMessage{
				Kind: "meal",
				Data: map[string]interface{}{
					"image_url":      payload.ImageURL,
					"dish_name":      payload.DishName,
					"total_calories": payload.TotalCalories,
					"confidence":     payload.Confidence,
				},
			})
		}
	}

	// 4. External bus. Question flows get their own event type so downstream
	// consumers can filter them.
	if cs.natsPub != nil {
		var event events.BaseEvent
		if payload.Question != "" {
			event = events.NewQuestionAnswered(payload.UserId, payload.ImageURL, payload.Question, payload.Answer)
		} else {
			event = events.NewMealAnalyzed(payload.UserId, payload.ImageURL, map[string]interface{}{
				"dish_name":      payload.DishName,
				"total_calories": payload.TotalCalories,
			})
		}
		if err := cs.natsPub.Publish(ctx, event); err != nil {
			cs.logger.Warn("ConsumerService", "Failed to publish to NATS", map[string]interface{}{"error": err.Error()})
		}
	}

	// 5. Webhook, best-effort by contract.
	if cs.notifier != nil {
		webhookType := events.TypeMealAnalyzed
		if payload.Question != "" {
			webhookType = events.TypeQuestionAnswered
		}
		cs.notifier.Notify(ctx, map[string]interface{}{
			"type":           webhookType,
			"user_id":        payload.UserId,
			"image_url":      payload.ImageURL,
			"dish_name":      payload.DishName,
			"total_calories": payload.TotalCalories,
		})
	}

	msg.Ack()
}
