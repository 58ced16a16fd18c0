package dto

import "time"

type MealItemResponse struct {
	Name     string  `json:"name"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type MealResponse struct {
	Id            string    `json:"id"`
	ImageURL      string    `json:"image_url"`
	DishName      string    `json:"dish_name"`
	TotalCalories float64   `json:"total_calories"`
	ProteinG      float64   `json:"protein_g"`
	CarbsG        float64   `json:"carbs_g"`
	FatG          float64   `json:"fat_g"`
	Confidence    float64   `json:"confidence"`
	Question      string    `json:"question,omitempty"`
	Answer        string    `json:"answer,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type DailySummaryResponse struct {
	Day      string  `json:"day"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
	Meals    int64   `json:"meals"`
}

// MealAnalyzedMessage is the payload published on the in-process bus after
// a capture has been analyzed.
type MealAnalyzedMessage struct {
	UserId        string                 `json:"user_id"`
	ImageURL      string                 `json:"image_url"`
	ImageKey      string                 `json:"image_key"`
	DishName      string                 `json:"dish_name"`
	TotalCalories float64                `json:"total_calories"`
	ProteinG      float64                `json:"protein_g"`
	CarbsG        float64                `json:"carbs_g"`
	FatG          float64                `json:"fat_g"`
	Confidence    float64                `json:"confidence"`
	Question      string                 `json:"question,omitempty"`
	Answer        string                 `json:"answer,omitempty"`
	RawAnalysis   map[string]interface{} `json:"raw_analysis,omitempty"`
}
