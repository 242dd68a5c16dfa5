package repository

import (
	"context"
	"fmt"
	"time"

	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"gorm.io/gorm"
)

// InventoryRepository 站内供给查询（票档文件、挂牌、转售）
type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) interfaces.InventoryStore {
	return &InventoryRepository{db: db}
}

// HasInternalSupply 场次有有效票档文件或未过期的活跃挂牌即视为有站内票源
func (r *InventoryRepository) HasInternalSupply(ctx context.Context, performanceID uint64) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.TicketFile{}).
		Where("performance_id = ? AND is_valid = ?", performanceID, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("查询票档文件失败: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	if err := r.db.WithContext(ctx).Model(&model.MarketListing{}).
		Where("performance_id = ? AND status = ?", performanceID, "ACTIVE").
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("查询市场挂牌失败: %w", err)
	}
	return count > 0, nil
}

// CountEventAvailability 活动维度的站内供给：场次上的活跃挂牌 + 活动上的可购转售
func (r *InventoryRepository) CountEventAvailability(ctx context.Context, eventID uint64, now time.Time) (int64, int64, error) {
	var listings int64
	if err := r.db.WithContext(ctx).Model(&model.MarketListing{}).
		Joins("JOIN performances ON performances.id = market_listings.performance_id").
		Where("performances.event_id = ?", eventID).
		Where("market_listings.status = ?", "ACTIVE").
		Where("market_listings.expires_at IS NULL OR market_listings.expires_at > ?", now).
		Count(&listings).Error; err != nil {
		return 0, 0, fmt.Errorf("统计市场挂牌失败: %w", err)
	}

	var resales int64
	if err := r.db.WithContext(ctx).Model(&model.Resale{}).
		Where("event_id = ? AND status = ? AND is_available = ?", eventID, "PUBLISHED", true).
		Count(&resales).Error; err != nil {
		return 0, 0, fmt.Errorf("统计转售失败: %w", err)
	}
	return listings, resales, nil
}
