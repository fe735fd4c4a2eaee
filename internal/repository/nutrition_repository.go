package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitcoach/internal/models"
)

type NutritionRepository struct {
	pool *pgxpool.Pool
}

func NewNutritionRepository(pool *pgxpool.Pool) *NutritionRepository {
	return &NutritionRepository{pool: pool}
}

const planColumns = `id, trainer_id, client_id, name, daily_calories, meals, active, created_at, updated_at`

func (r *NutritionRepository) CreatePlan(ctx context.Context, plan models.NutritionPlan) error {
	meals, err := json.Marshal(plan.Meals)
	if err != nil {
		return fmt.Errorf("encode meals: %w", err)
	}

	const query = `
		INSERT INTO nutrition_plans (
			id, trainer_id, client_id, name, daily_calories, meals, active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $8
		)
	`
	_, err = r.pool.Exec(ctx, query,
		plan.ID,
		plan.TrainerID,
		plan.ClientID,
		plan.Name,
		plan.DailyCalories,
		meals,
		plan.Active,
		plan.CreatedAt,
	)
	return err
}

func (r *NutritionRepository) UpdatePlan(ctx context.Context, plan models.NutritionPlan) error {
	meals, err := json.Marshal(plan.Meals)
	if err != nil {
		return fmt.Errorf("encode meals: %w", err)
	}

	const query = `
		UPDATE nutrition_plans
		SET client_id = $2,
		    name = $3,
		    daily_calories = $4,
		    meals = $5,
		    active = $6,
		    updated_at = $7
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		plan.ID,
		plan.ClientID,
		plan.Name,
		plan.DailyCalories,
		meals,
		plan.Active,
		plan.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (r *NutritionRepository) DeletePlan(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM nutrition_plans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (r *NutritionRepository) GetPlan(ctx context.Context, id string) (models.NutritionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM nutrition_plans WHERE id = $1`
	return scanPlan(r.pool.QueryRow(ctx, query, id))
}

func (r *NutritionRepository) ListPlansForUser(ctx context.Context, userID string) ([]models.NutritionPlan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM nutrition_plans
		WHERE trainer_id = $1 OR client_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := []models.NutritionPlan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func scanPlan(row pgx.Row) (models.NutritionPlan, error) {
	var (
		plan  models.NutritionPlan
		meals []byte
	)
	if err := row.Scan(
		&plan.ID,
		&plan.TrainerID,
		&plan.ClientID,
		&plan.Name,
		&plan.DailyCalories,
		&meals,
		&plan.Active,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NutritionPlan{}, ErrPlanNotFound
		}
		return models.NutritionPlan{}, err
	}
	if len(meals) > 0 {
		if err := json.Unmarshal(meals, &plan.Meals); err != nil {
			return models.NutritionPlan{}, fmt.Errorf("decode meals: %w", err)
		}
	}
	return plan, nil
}
