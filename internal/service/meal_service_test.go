package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"nutrilens-be/internal/dto"
	"nutrilens-be/internal/model"
	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMealRepo struct {
	created   []*model.MealRecord
	createErr error
	recent    []model.MealRecord
	totals    []contract.DailyTotal
}

func (f *fakeMealRepo) Create(ctx context.Context, record *model.MealRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, record)
	return nil
}

func (f *fakeMealRepo) FindRecent(ctx context.Context, userId uuid.UUID, limit int) ([]model.MealRecord, error) {
	return f.recent, nil
}

func (f *fakeMealRepo) DailyTotals(ctx context.Context, userId uuid.UUID, since time.Time) ([]contract.DailyTotal, error) {
	return f.totals, nil
}

func TestMealServiceRecord(t *testing.T) {
	userId := uuid.New()

	t.Run("persists analyzed meal", func(t *testing.T) {
		repo := &fakeMealRepo{}
		svc := NewMealService(repo, logger.NewNopLogger())

		ok := svc.Record(context.Background(), dto.MealAnalyzedMessage{
			UserId:        userId.String(),
			ImageURL:      "https://storage/meal.jpg",
			DishName:      "Ramen",
			TotalCalories: 520,
			RawAnalysis:   map[string]interface{}{"items": []string{"noodles"}},
		})

		require.True(t, ok)
		require.Len(t, repo.created, 1)
		record := repo.created[0]
		assert.Equal(t, userId, record.UserId)
		assert.Equal(t, "Ramen", record.DishName)
		assert.NotEmpty(t, record.RawAnalysis)
	})

	t.Run("rejects invalid user id without error", func(t *testing.T) {
		repo := &fakeMealRepo{}
		svc := NewMealService(repo, logger.NewNopLogger())

		ok := svc.Record(context.Background(), dto.MealAnalyzedMessage{UserId: "not-a-uuid"})

		assert.False(t, ok)
		assert.Empty(t, repo.created)
	})

	t.Run("reports storage failure as false", func(t *testing.T) {
		repo := &fakeMealRepo{createErr: errors.New("db down")}
		svc := NewMealService(repo, logger.NewNopLogger())

		ok := svc.Record(context.Background(), dto.MealAnalyzedMessage{UserId: userId.String()})

		assert.False(t, ok)
	})
}

func TestMealServiceRecentMapsRecords(t *testing.T) {
	now := time.Now()
	repo := &fakeMealRepo{recent: []model.MealRecord{
		{
			Id:            uuid.New(),
			ImageURL:      "https://storage/a.jpg",
			DishName:      "Pho",
			TotalCalories: 430,
			Confidence:    0.8,
			CreatedAt:     now,
		},
	}}
	svc := NewMealService(repo, logger.NewNopLogger())

	res, err := svc.Recent(context.Background(), uuid.New(), 20)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Pho", res[0].DishName)
	assert.Equal(t, 430.0, res[0].TotalCalories)
}

func TestMealServiceDailySummary(t *testing.T) {
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	repo := &fakeMealRepo{totals: []contract.DailyTotal{
		{Day: day, Calories: 1840, ProteinG: 92, CarbsG: 210, FatG: 61, Meals: 3},
	}}
	svc := NewMealService(repo, logger.NewNopLogger())

	res, err := svc.DailySummary(context.Background(), uuid.New(), 7)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "2026-08-30", res[0].Day)
	assert.Equal(t, int64(3), res[0].Meals)
	assert.Equal(t, 1840.0, res[0].Calories)
}
