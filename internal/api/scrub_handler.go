package api

import (
	"fmt"
	"net/http"

	"TicketWatch/internal/config"
	"TicketWatch/internal/repository"
	"TicketWatch/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ScrubHandler struct {
	scrubService *service.ScrubService
	logger       *logrus.Logger
}

func NewScrubHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *ScrubHandler {
	store := repository.NewCatalogRepository(db)
	return &ScrubHandler{
		scrubService: service.NewScrubService(store, logger, cfg),
		logger:       logger,
	}
}

// ScrubPlatformHandler 采集指定平台的活动目录
// @Summary 采集平台活动目录
// @Param platform path string true "平台名称（ticketmaster/eventbrite）"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Router /scrub/platform/{platform} [post]
func (h *ScrubHandler) ScrubPlatformHandler(c *gin.Context) {
	platformName := c.Param("platform")

	stats, err := h.scrubService.ScrubPlatform(c.Request.Context(), platformName)
	if err != nil {
		h.logger.Errorf("采集%s失败: %v", platformName, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%s目录采集完成", platformName),
		"stats":   stats,
	})
}
