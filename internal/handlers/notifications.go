package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fitcoach/internal/models"
	"fitcoach/internal/service"
)

type notificationRequest struct {
	RecipientID string `json:"recipientId" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Body        string `json:"body"`
}

type notificationResponse struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toNotificationResponse(n models.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func (h HandlerSet) ListNotifications(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	items, err := h.notifications.List(c.Request.Context(), user, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, toNotificationResponse(n))
	}
	c.JSON(http.StatusOK, gin.H{"items": resp})
}

func (h HandlerSet) SendNotification(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.notifications.Send(c.Request.Context(), user, service.NotificationInput{
		RecipientID: req.RecipientID,
		Title:       req.Title,
		Body:        req.Body,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"notification": toNotificationResponse(n)})
}

func (h HandlerSet) MarkNotificationRead(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
