package contract

import (
	"context"
	"time"

	"nutrilens-be/internal/model"

	"github.com/google/uuid"
)

// DailyTotal aggregates one day of meals for the dashboard summary.
type DailyTotal struct {
	Day      time.Time `json:"day"`
	Calories float64   `json:"calories"`
	ProteinG float64   `json:"protein_g"`
	CarbsG   float64   `json:"carbs_g"`
	FatG     float64   `json:"fat_g"`
	Meals    int64     `json:"meals"`
}

type MealRepository interface {
	Create(ctx context.Context, record *model.MealRecord) error
	FindRecent(ctx context.Context, userId uuid.UUID, limit int) ([]model.MealRecord, error)
	DailyTotals(ctx context.Context, userId uuid.UUID, since time.Time) ([]DailyTotal, error)
}
