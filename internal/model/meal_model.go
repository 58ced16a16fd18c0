package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MealRecord is one analyzed capture persisted for the dashboard.
type MealRecord struct {
	Id            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserId        uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	ImageURL      string         `gorm:"type:text" json:"image_url"`
	ImageKey      string         `gorm:"type:text" json:"image_key"`
	DishName      string         `gorm:"type:varchar(255)" json:"dish_name"`
	TotalCalories float64        `json:"total_calories"`
	ProteinG      float64        `json:"protein_g"`
	CarbsG        float64        `json:"carbs_g"`
	FatG          float64        `json:"fat_g"`
	Confidence    float64        `json:"confidence"`
	Question      string         `gorm:"type:text" json:"question,omitempty"`
	Answer        string         `gorm:"type:text" json:"answer,omitempty"`
	RawAnalysis   datatypes.JSON `gorm:"type:jsonb" json:"raw_analysis,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (MealRecord) TableName() string {
	return "meal_records"
}
