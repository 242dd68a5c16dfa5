package api

import (
	"net/http"
	"strconv"

	"TicketWatch/internal/repository"
	"TicketWatch/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventHandler 活动浏览接口
type EventHandler struct {
	eventService *service.EventService
	logger       *logrus.Logger
}

func NewEventHandler(db *gorm.DB, logger *logrus.Logger) *EventHandler {
	store := repository.NewEventQueryRepository(db)
	return &EventHandler{
		eventService: service.NewEventService(store, logger),
		logger:       logger,
	}
}

// ListEvents 活动列表
// GET /api/events?status=planned&availability=available&page=1&page_size=20
func (h *EventHandler) ListEvents(c *gin.Context) {
	status := c.Query("status")
	availability := c.Query("availability")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.eventService.ListEvents(c.Request.Context(), status, availability, page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("ListEvents failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetEventDetail 活动详情（含场次与平台映射）
// GET /api/events/:event_uuid
func (h *EventHandler) GetEventDetail(c *gin.Context) {
	eventUUID := c.Param("event_uuid")
	if eventUUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_uuid is required"})
		return
	}

	result, err := h.eventService.GetEventDetail(c.Request.Context(), eventUUID)
	if err != nil {
		h.logger.WithError(err).Error("GetEventDetail failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
