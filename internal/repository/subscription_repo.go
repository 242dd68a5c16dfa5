package repository

import (
	"context"
	"fmt"
	"time"

	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"gorm.io/gorm"
)

// SubscriptionRepository 订阅读取（扫描任务专用）
type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) interfaces.SubscriptionStore {
	return &SubscriptionRepository{db: db}
}

// activeScope 活跃 = is_active 且生效期内（ends_at为空视为不过期）
func activeScope(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("is_active = ?", true).
		Where("starts_at <= ?", now).
		Where("ends_at IS NULL OR ends_at >= ?", now)
}

// ListPaidActive 付费档：price > 0，带用户与场次（含活动、场馆）
func (r *SubscriptionRepository) ListPaidActive(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 500
	}
	var subs []*model.Subscription
	if err := activeScope(r.db.WithContext(ctx).Model(&model.Subscription{}), now).
		Where("price > 0").
		Preload("Account").
		Preload("Performance").
		Preload("Performance.Event").
		Preload("Performance.Venue").
		Order("id ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("查询付费订阅失败: %w", err)
	}
	return subs, nil
}

// ListFreeActive 免费档：price = 0 且关联活动
func (r *SubscriptionRepository) ListFreeActive(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 500
	}
	var subs []*model.Subscription
	if err := activeScope(r.db.WithContext(ctx).Model(&model.Subscription{}), now).
		Where("price = 0 AND event_id IS NOT NULL").
		Preload("Account").
		Preload("Event").
		Order("id ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("查询免费订阅失败: %w", err)
	}
	return subs, nil
}

// ListActiveByEventID 某活动的全部活跃订阅（转售通知用）。
// 活动级订阅直接匹配，场次级订阅通过场次归属的活动匹配。
func (r *SubscriptionRepository) ListActiveByEventID(ctx context.Context, eventID uint64) ([]*model.Subscription, error) {
	perfIDs := r.db.WithContext(ctx).Model(&model.Performance{}).
		Select("id").
		Where("event_id = ?", eventID)

	var subs []*model.Subscription
	if err := activeScope(r.db.WithContext(ctx).Model(&model.Subscription{}), time.Now().UTC()).
		Where("event_id = ? OR performance_id IN (?)", eventID, perfIDs).
		Preload("Account").
		Preload("Event").
		Preload("Performance").
		Preload("Performance.Event").
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("查询活动订阅失败: %w", err)
	}
	return subs, nil
}
