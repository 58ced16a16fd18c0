package implementation

import (
	"context"
	"time"

	"nutrilens-be/internal/model"
	"nutrilens-be/internal/repository/contract"
	"nutrilens-be/internal/repository/scope"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type mealRepository struct {
	db *gorm.DB
}

func NewMealRepository(db *gorm.DB) contract.MealRepository {
	return &mealRepository{db: db}
}

func (r *mealRepository) Create(ctx context.Context, record *model.MealRecord) error {
	if record.Id == uuid.Nil {
		record.Id = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *mealRepository) FindRecent(ctx context.Context, userId uuid.UUID, limit int) ([]model.MealRecord, error) {
	var records []model.MealRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Scopes(scope.OrderByCreatedDesc).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *mealRepository) DailyTotals(ctx context.Context, userId uuid.UUID, since time.Time) ([]contract.DailyTotal, error) {
	var totals []contract.DailyTotal
	err := r.db.WithContext(ctx).
		Model(&model.MealRecord{}).
		Select(`date_trunc('day', created_at) AS day,
			SUM(total_calories) AS calories,
			SUM(protein_g) AS protein_g,
			SUM(carbs_g) AS carbs_g,
			SUM(fat_g) AS fat_g,
			COUNT(*) AS meals`).
		Where("user_id = ? AND created_at >= ?", userId, since).
		Group("day").
		Order("day DESC").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}
