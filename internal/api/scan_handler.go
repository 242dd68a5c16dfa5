package api

import (
	"net/http"

	"TicketWatch/internal/adapter/ticketmaster"
	"TicketWatch/internal/config"
	"TicketWatch/internal/mailer"
	"TicketWatch/internal/repository"
	"TicketWatch/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScanHandler 三类扫描任务的触发入口
type ScanHandler struct {
	scanService   *service.ScanService
	resaleService *service.ResaleScanService
	logger        *logrus.Logger
}

func NewScanHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *ScanHandler {
	tmCfg := cfg.Platforms["ticketmaster"]
	prober := ticketmaster.NewProber(&tmCfg, logger)
	prices := ticketmaster.NewPriceClient(&tmCfg, logger)

	subs := repository.NewSubscriptionRepository(db)
	mappings := repository.NewMappingRepository(db)
	inventory := repository.NewInventoryRepository(db)
	notifications := repository.NewNotificationRepository(db)

	dispatcher := service.NewDispatcher(
		notifications,
		mailer.NewSMTPSender(&cfg.Mail, logger),
		cfg.Scan.EmailRetries,
		cfg.Scan.EmailBaseWaitSec,
		logger,
	)

	return &ScanHandler{
		scanService:   service.NewScanService(subs, mappings, inventory, prober, dispatcher, cfg, logger),
		resaleService: service.NewResaleScanService(mappings, subs, prober, prices, dispatcher, cfg, logger),
		logger:        logger,
	}
}

// ScanService 暴露给常驻任务（免费扫描循环）
func (h *ScanHandler) ScanService() *service.ScanService {
	return h.scanService
}

// ScanPaidHandler 执行一轮付费订阅扫描
// @Router /scan/paid [post]
func (h *ScanHandler) ScanPaidHandler(c *gin.Context) {
	results, err := h.scanService.RunPaid(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("付费扫描失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "付费扫描完成",
		"targets": len(results),
		"results": results,
	})
}

// ScanFreeHandler 执行一轮免费订阅扫描
// @Router /scan/free [post]
func (h *ScanHandler) ScanFreeHandler(c *gin.Context) {
	results, err := h.scanService.RunFree(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("免费扫描失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "免费扫描完成",
		"targets": len(results),
		"results": results,
	})
}

// ScanResaleHandler 执行一轮转售探测
// @Router /scan/resale [post]
func (h *ScanHandler) ScanResaleHandler(c *gin.Context) {
	stats, err := h.resaleService.Run(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("转售探测失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "转售探测完成",
		"stats":   stats,
	})
}
