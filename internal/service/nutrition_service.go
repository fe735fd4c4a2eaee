package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fitcoach/internal/events"
	"fitcoach/internal/ids"
	"fitcoach/internal/models"
)

type NutritionService struct {
	plans NutritionStore
	emitter
}

func NewNutritionService(plans NutritionStore, publisher events.Publisher, log zerolog.Logger) *NutritionService {
	return &NutritionService{
		plans:   plans,
		emitter: emitter{publisher: publisher, log: log},
	}
}

type PlanInput struct {
	ClientID      *string
	Name          string
	DailyCalories int
	Meals         []models.Meal
	Active        bool
}

func (in PlanInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if in.DailyCalories < 0 {
		return fmt.Errorf("%w: dailyCalories must not be negative", ErrInvalidInput)
	}
	for i, meal := range in.Meals {
		if meal.Calories < 0 || meal.ProteinG < 0 || meal.CarbsG < 0 || meal.FatG < 0 {
			return fmt.Errorf("%w: meal %d has negative values", ErrInvalidInput, i)
		}
	}
	return nil
}

func (s *NutritionService) Plans(ctx context.Context, user models.User) ([]models.NutritionPlan, error) {
	return s.plans.ListPlansForUser(ctx, user.ID)
}

// Overview counts the plans visible to user.
func (s *NutritionService) Overview(ctx context.Context, user models.User) (models.NutritionOverview, error) {
	plans, err := s.plans.ListPlansForUser(ctx, user.ID)
	if err != nil {
		return models.NutritionOverview{}, err
	}

	var overview models.NutritionOverview
	clients := make(map[string]struct{})
	kcal := 0
	for _, plan := range plans {
		overview.TotalPlans++
		kcal += plan.DailyCalories
		if plan.Active {
			overview.ActivePlans++
		}
		if plan.ClientID != nil {
			clients[*plan.ClientID] = struct{}{}
		}
	}
	overview.AssignedClients = len(clients)
	if overview.TotalPlans > 0 {
		overview.AverageDailyKcal = float64(kcal) / float64(overview.TotalPlans)
	}
	return overview, nil
}

// Analytics sums meal macros over active plans.
func (s *NutritionService) Analytics(ctx context.Context, user models.User) (models.NutritionAnalytics, error) {
	plans, err := s.plans.ListPlansForUser(ctx, user.ID)
	if err != nil {
		return models.NutritionAnalytics{}, err
	}

	var out models.NutritionAnalytics
	for _, plan := range plans {
		if !plan.Active {
			continue
		}
		out.Plans++
		for _, meal := range plan.Meals {
			out.TotalCalories += meal.Calories
			out.ProteinG += meal.ProteinG
			out.CarbsG += meal.CarbsG
			out.FatG += meal.FatG
		}
	}
	return out, nil
}

func (s *NutritionService) Create(ctx context.Context, actor models.User, input PlanInput) (models.NutritionPlan, error) {
	if err := input.validate(); err != nil {
		return models.NutritionPlan{}, err
	}

	now := time.Now().UTC()
	plan := models.NutritionPlan{
		ID:            ids.New(),
		TrainerID:     actor.ID,
		ClientID:      input.ClientID,
		Name:          strings.TrimSpace(input.Name),
		DailyCalories: input.DailyCalories,
		Meals:         input.Meals,
		Active:        input.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.plans.CreatePlan(ctx, plan); err != nil {
		return models.NutritionPlan{}, fmt.Errorf("save plan: %w", err)
	}

	s.emit(ctx, events.NutritionPlanCreated, plan.ID, actor.ID)
	return plan, nil
}

func (s *NutritionService) Update(ctx context.Context, actor models.User, id string, input PlanInput) (models.NutritionPlan, error) {
	if err := input.validate(); err != nil {
		return models.NutritionPlan{}, err
	}

	plan, err := s.owned(ctx, actor, id)
	if err != nil {
		return models.NutritionPlan{}, err
	}

	plan.ClientID = input.ClientID
	plan.Name = strings.TrimSpace(input.Name)
	plan.DailyCalories = input.DailyCalories
	plan.Meals = input.Meals
	plan.Active = input.Active
	plan.UpdatedAt = time.Now().UTC()

	if err := s.plans.UpdatePlan(ctx, plan); err != nil {
		return models.NutritionPlan{}, err
	}

	s.emit(ctx, events.NutritionPlanUpdated, plan.ID, actor.ID)
	return plan, nil
}

func (s *NutritionService) Delete(ctx context.Context, actor models.User, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.plans.DeletePlan(ctx, id); err != nil {
		return err
	}

	s.emit(ctx, events.NutritionPlanDeleted, id, actor.ID)
	return nil
}

func (s *NutritionService) owned(ctx context.Context, actor models.User, id string) (models.NutritionPlan, error) {
	plan, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return models.NutritionPlan{}, err
	}
	if plan.TrainerID != actor.ID && !actor.HasAnyRole(models.UserRoleAdmin) {
		return models.NutritionPlan{}, ErrForbidden
	}
	return plan, nil
}
