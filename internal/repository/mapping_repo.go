package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MappingRepository 平台映射的扫描侧读写
type MappingRepository struct {
	db *gorm.DB
}

func NewMappingRepository(db *gorm.DB) interfaces.MappingStore {
	return &MappingRepository{db: db}
}

// URLForPerformance 优先取场次级映射，没有则回退到活动级映射
func (r *MappingRepository) URLForPerformance(ctx context.Context, perf *model.Performance, platformName string) (string, string, error) {
	base := r.db.WithContext(ctx).Model(&model.PlatformMapping{}).
		Joins("JOIN platforms ON platforms.id = platform_mappings.platform_id").
		Where("platforms.name = ? AND platform_mappings.url <> ''", platformName)

	var m model.PlatformMapping
	err := base.Session(&gorm.Session{}).
		Where("platform_mappings.performance_id = ?", perf.ID).
		First(&m).Error
	if err == nil {
		return m.URL, m.ExternalEventID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", fmt.Errorf("查询场次映射失败: %w", err)
	}

	err = base.Session(&gorm.Session{}).
		Where("platform_mappings.event_id = ?", perf.EventID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", fmt.Errorf("场次%d无可用平台映射", perf.ID)
	}
	if err != nil {
		return "", "", fmt.Errorf("查询活动映射失败: %w", err)
	}
	return m.URL, m.ExternalEventID, nil
}

// ListRecent 最近扫描过的映射，最久未扫的在前
func (r *MappingRepository) ListRecent(ctx context.Context, platformName string, limit int) ([]*model.PlatformMapping, error) {
	if limit <= 0 {
		limit = 200
	}
	var mappings []*model.PlatformMapping
	if err := r.db.WithContext(ctx).
		Joins("JOIN platforms ON platforms.id = platform_mappings.platform_id").
		Where("platforms.name = ? AND platform_mappings.url <> ''", platformName).
		Order("platform_mappings.last_scanned_at ASC").
		Limit(limit).
		Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("查询平台映射失败: %w", err)
	}
	return mappings, nil
}

func (r *MappingRepository) TouchScanned(ctx context.Context, id uint64, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.PlatformMapping{}).
		Where("id = ?", id).
		Update("last_scanned_at", at).Error; err != nil {
		return fmt.Errorf("更新扫描时间失败: %w", err)
	}
	return nil
}

func (r *MappingRepository) SaveSnapshot(ctx context.Context, id uint64, snapshot datatypes.JSON, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.PlatformMapping{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"snapshot":        snapshot,
			"last_scanned_at": at,
		}).Error; err != nil {
		return fmt.Errorf("保存快照失败: %w", err)
	}
	return nil
}
