package repository

import (
	"context"
	"fmt"

	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"gorm.io/gorm"
)

// NotificationRepository 通知记录读写，Transaction内的实例共享同一事务连接
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) interfaces.NotificationStore {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) ExistsSent(ctx context.Context, dedupeKey string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.NotificationRecord{}).
		Where("dedupe_key = ? AND status = ?", dedupeKey, "SENT").
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("查询通知记录失败: %w", err)
	}
	return count > 0, nil
}

func (r *NotificationRepository) Create(ctx context.Context, rec *model.NotificationRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("写入通知记录失败: %w, key: %s", err, rec.DedupeKey)
	}
	return nil
}

func (r *NotificationRepository) Transaction(ctx context.Context, fn func(tx interfaces.NotificationStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&NotificationRepository{db: tx})
	})
}
