package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fitcoach/internal/media/sniffer"
	"fitcoach/internal/models"
	"fitcoach/internal/service"
)

type exerciseRequest struct {
	Name        string `json:"name" binding:"required"`
	MuscleGroup string `json:"muscleGroup"`
	Equipment   string `json:"equipment"`
}

type exerciseResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	MuscleGroup string    `json:"muscleGroup"`
	Equipment   string    `json:"equipment"`
	MediaURL    string    `json:"mediaUrl,omitempty"`
	MediaFormat string    `json:"mediaFormat,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (h HandlerSet) toExerciseResponse(e models.Exercise) exerciseResponse {
	resp := exerciseResponse{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		Name:        e.Name,
		MuscleGroup: e.MuscleGroup,
		Equipment:   e.Equipment,
		MediaURL:    h.exercises.MediaURL(e),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.MediaFormat != nil {
		resp.MediaFormat = *e.MediaFormat
	}
	return resp
}

func (h HandlerSet) ListExercises(c *gin.Context) {
	limit, offset := pageParams(c)
	exercises, err := h.exercises.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]exerciseResponse, 0, len(exercises))
	for _, e := range exercises {
		items = append(items, h.toExerciseResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) CreateExercise(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var req exerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exercise, err := h.exercises.Create(c.Request.Context(), user, service.ExerciseInput{
		Name:        req.Name,
		MuscleGroup: req.MuscleGroup,
		Equipment:   req.Equipment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"exercise": h.toExerciseResponse(exercise)})
}

func (h HandlerSet) UploadExerciseMedia(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	result, err := h.exercises.AttachMedia(c.Request.Context(), user, service.MediaInput{
		ExerciseID:   c.Param("id"),
		File:         file,
		DeclaredMIME: sniffer.DeclaredType(http.Header(header.Header)),
	})
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Str("exercise_id", c.Param("id")).Msg("media upload failed")
		h.fail(c, err)
		return
	}

	resp := h.toExerciseResponse(result.Exercise)
	resp.MediaURL = result.URL
	c.JSON(http.StatusOK, gin.H{"exercise": resp})
}
