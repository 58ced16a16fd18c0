package service

import (
	"context"
	"encoding/json"
	"time"

	"nutrilens-be/internal/dto"
	"nutrilens-be/internal/model"
	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type IMealService interface {
	// Record persists one analyzed meal. It reports success as a bool and
	// never propagates the storage error to the capture path.
	Record(ctx context.Context, msg dto.MealAnalyzedMessage) bool

	Recent(ctx context.Context, userId uuid.UUID, limit int) ([]dto.MealResponse, error)
	DailySummary(ctx context.Context, userId uuid.UUID, days int) ([]dto.DailySummaryResponse, error)
}

type mealService struct {
	repo   contract.MealRepository
	logger logger.ILogger
}

func NewMealService(repo contract.MealRepository, log logger.ILogger) IMealService {
	return &mealService{repo: repo, logger: log}
}

func (s *mealService) Record(ctx context.Context, msg dto.MealAnalyzedMessage) bool {
	userId, err := uuid.Parse(msg.UserId)
	if err != nil {
		s.logger.Warn("MealService", "Dropping record with invalid user id", map[string]interface{}{"user_id": msg.UserId})
		return false
	}

	var raw datatypes.JSON
	if msg.RawAnalysis != nil {
		if b, err := json.Marshal(msg.RawAnalysis); err == nil {
			raw = datatypes.JSON(b)
		}
	}

	record := &model.MealRecord{
		Id:            uuid.New(),
		UserId:        userId,
		ImageURL:      msg.ImageURL,
		ImageKey:      msg.ImageKey,
		DishName:      msg.DishName,
		TotalCalories: msg.TotalCalories,
		ProteinG:      msg.ProteinG,
		CarbsG:        msg.CarbsG,
		FatG:          msg.FatG,
		Confidence:    msg.Confidence,
		Question:      msg.Question,
		Answer:        msg.Answer,
		RawAnalysis:   raw,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error("MealService", "Failed to persist meal record", map[string]interface{}{"error": err.Error(), "user_id": msg.UserId})
		return false
	}
	return true
}

func (s *mealService) Recent(ctx context.Context, userId uuid.UUID, limit int) ([]dto.MealResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	records, err := s.repo.FindRecent(ctx, userId, limit)
	if err != nil {
		return nil, err
	}

	res := make([]dto.MealResponse, 0, len(records))
	for _, r := range records {
		res = append(res, dto.MealResponse{
			Id:            r.Id.String(),
			ImageURL:      r.ImageURL,
			DishName:      r.DishName,
			TotalCalories: r.TotalCalories,
			ProteinG:      r.ProteinG,
			CarbsG:        r.CarbsG,
			FatG:          r.FatG,
			Confidence:    r.Confidence,
			Question:      r.Question,
			Answer:        r.Answer,
			CreatedAt:     r.CreatedAt,
		})
	}
	return res, nil
}

func (s *mealService) DailySummary(ctx context.Context, userId uuid.UUID, days int) ([]dto.DailySummaryResponse, error) {
	if days <= 0 || days > 90 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)
	totals, err := s.repo.DailyTotals(ctx, userId, since)
	if err != nil {
		return nil, err
	}

	res := make([]dto.DailySummaryResponse, 0, len(totals))
	for _, t := range totals {
		res = append(res, dto.DailySummaryResponse{
			Day:      t.Day.Format("2006-01-02"),
			Calories: t.Calories,
			ProteinG: t.ProteinG,
			CarbsG:   t.CarbsG,
			FatG:     t.FatG,
			Meals:    t.Meals,
		})
	}
	return res, nil
}
