package models

import "time"

type WorkoutExercise struct {
	ExerciseID string `json:"exerciseId"`
	Sets       int    `json:"sets"`
	Reps       int    `json:"reps"`
	RestSec    int    `json:"restSec"`
}

type Workout struct {
	ID          string
	TrainerID   string
	ClientID    *string
	Title       string
	Description string
	IsTemplate  bool
	Exercises   []WorkoutExercise
	ScheduledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
