package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fitcoach/internal/models"
	"fitcoach/internal/service"
)

type planRequest struct {
	ClientID      *string       `json:"clientId"`
	Name          string        `json:"name" binding:"required"`
	DailyCalories int           `json:"dailyCalories"`
	Meals         []models.Meal `json:"meals"`
	Active        *bool         `json:"active"`
}

func (r planRequest) input() service.PlanInput {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return service.PlanInput{
		ClientID:      r.ClientID,
		Name:          r.Name,
		DailyCalories: r.DailyCalories,
		Meals:         r.Meals,
		Active:        active,
	}
}

type planResponse struct {
	ID            string        `json:"id"`
	TrainerID     string        `json:"trainerId"`
	ClientID      *string       `json:"clientId,omitempty"`
	Name          string        `json:"name"`
	DailyCalories int           `json:"dailyCalories"`
	Meals         []models.Meal `json:"meals"`
	Active        bool          `json:"active"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func toPlanResponse(p models.NutritionPlan) planResponse {
	meals := p.Meals
	if meals == nil {
		meals = []models.Meal{}
	}
	return planResponse{
		ID:            p.ID,
		TrainerID:     p.TrainerID,
		ClientID:      p.ClientID,
		Name:          p.Name,
		DailyCalories: p.DailyCalories,
		Meals:         meals,
		Active:        p.Active,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (h HandlerSet) ListPlans(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	plans, err := h.nutrition.Plans(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		items = append(items, toPlanResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) NutritionOverview(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	overview, err := h.nutrition.Overview(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overview": gin.H{
		"totalPlans":       overview.TotalPlans,
		"activePlans":      overview.ActivePlans,
		"assignedClients":  overview.AssignedClients,
		"averageDailyKcal": overview.AverageDailyKcal,
	}})
}

func (h HandlerSet) NutritionAnalytics(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	analytics, err := h.nutrition.Analytics(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analytics": gin.H{
		"plans":         analytics.Plans,
		"totalCalories": analytics.TotalCalories,
		"proteinG":      analytics.ProteinG,
		"carbsG":        analytics.CarbsG,
		"fatG":          analytics.FatG,
	}})
}

func (h HandlerSet) CreatePlan(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := h.nutrition.Create(c.Request.Context(), user, req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"plan": toPlanResponse(plan)})
}

func (h HandlerSet) UpdatePlan(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := h.nutrition.Update(c.Request.Context(), user, c.Param("id"), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": toPlanResponse(plan)})
}

func (h HandlerSet) DeletePlan(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	if err := h.nutrition.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
