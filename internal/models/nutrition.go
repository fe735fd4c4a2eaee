package models

import "time"

type Meal struct {
	Name     string  `json:"name"`
	Calories int     `json:"calories"`
	ProteinG float64 `json:"proteinG"`
	CarbsG   float64 `json:"carbsG"`
	FatG     float64 `json:"fatG"`
}

type NutritionPlan struct {
	ID            string
	TrainerID     string
	ClientID      *string
	Name          string
	DailyCalories int
	Meals         []Meal
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NutritionOverview summarises the plans a trainer manages.
type NutritionOverview struct {
	TotalPlans       int
	ActivePlans      int
	AssignedClients  int
	AverageDailyKcal float64
}

// NutritionAnalytics aggregates macro distribution across active plans.
type NutritionAnalytics struct {
	Plans         int
	TotalCalories int
	ProteinG      float64
	CarbsG        float64
	FatG          float64
}
