package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository 目录采集的持久化实现
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) interfaces.CatalogStore {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetOrCreatePlatform(ctx context.Context, name, domain string) (*model.Platform, error) {
	var p model.Platform
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询平台失败: %w", err)
	}
	p = model.Platform{Name: name, Domain: domain, IsEnabled: true}
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("创建平台失败: %w", err)
	}
	return &p, nil
}

// UpsertVenue 按归一化slug幂等，已存在时只回填缺失字段
func (r *CatalogRepository) UpsertVenue(ctx context.Context, v *model.Venue) (*model.Venue, error) {
	var existing model.Venue
	err := r.db.WithContext(ctx).Where("normalized_slug = ?", v.NormalizedSlug).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
			return nil, fmt.Errorf("创建场馆失败: %w, slug: %s", err, v.NormalizedSlug)
		}
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询场馆失败: %w", err)
	}

	updates := map[string]interface{}{}
	if existing.Address == "" && v.Address != "" {
		updates["address"] = v.Address
	}
	if existing.City == "" && v.City != "" {
		updates["city"] = v.City
	}
	if len(updates) > 0 {
		if err := r.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("回填场馆字段失败: %w", err)
		}
	}
	return &existing, nil
}

// UpsertEvent 按规范哈希幂等。slug冲突时追加序号重试。
func (r *CatalogRepository) UpsertEvent(ctx context.Context, in *model.EventUpsert) (*model.Event, string, error) {
	var existing model.Event
	err := r.db.WithContext(ctx).Where("canonical_hash = ?", in.CanonicalHash).First(&existing).Error
	if err == nil {
		if existing.Name == in.Name {
			return &existing, model.UpsertUnchanged, nil
		}
		if err := r.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
			"name":            in.Name,
			"normalized_name": in.NormalizedName,
			"raw_notes":       in.RawNotes,
		}).Error; err != nil {
			return nil, "", fmt.Errorf("更新活动失败: %w", err)
		}
		existing.Name = in.Name
		return &existing, model.UpsertUpdated, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("查询活动失败: %w", err)
	}

	event := &model.Event{
		EventUUID:      uuid.NewString(),
		Name:           in.Name,
		NormalizedName: in.NormalizedName,
		Status:         "planned",
		Availability:   model.AvailabilityUnknown,
		CanonicalHash:  in.CanonicalHash,
		RawNotes:       in.RawNotes,
	}
	for i := 1; i <= 5; i++ {
		if i == 1 {
			event.Slug = in.SlugBase
		} else {
			event.Slug = fmt.Sprintf("%s-%d", in.SlugBase, i)
		}
		err := r.db.WithContext(ctx).Create(event).Error
		if err == nil {
			return event, model.UpsertCreated, nil
		}
		if strings.Contains(err.Error(), "slug") {
			continue
		}
		return nil, "", fmt.Errorf("创建活动失败: %w, name: %s", err, in.Name)
	}
	return nil, "", fmt.Errorf("活动slug冲突重试耗尽: %s", in.SlugBase)
}

// ApplyMapping 平台映射写入。行锁防并发，校验和一致时只更新扫描时间。
func (r *CatalogRepository) ApplyMapping(ctx context.Context, in *model.MappingUpsert) (string, error) {
	snapshot, err := json.Marshal(in.Snapshot)
	if err != nil {
		return "", fmt.Errorf("快照序列化失败: %w", err)
	}

	outcome := model.UpsertUnchanged
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.PlatformMapping
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("platform_id = ? AND external_event_id = ?", in.PlatformID, in.ExternalEventID).
			First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m = model.PlatformMapping{
				EventID:         in.EventID,
				PlatformID:      in.PlatformID,
				ExternalEventID: in.ExternalEventID,
				URL:             in.URL,
				Availability:    model.AvailabilityUnknown,
				LastScannedAt:   in.ScannedAt,
				Snapshot:        snapshot,
				ContentChecksum: in.ContentChecksum,
			}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("创建平台映射失败: %w", err)
			}
			outcome = model.UpsertCreated
			return nil
		}
		if err != nil {
			return fmt.Errorf("查询平台映射失败: %w", err)
		}

		if m.ContentChecksum == in.ContentChecksum {
			// 内容未变：只证明活性
			if err := tx.Model(&m).Update("last_scanned_at", in.ScannedAt).Error; err != nil {
				return fmt.Errorf("更新扫描时间失败: %w", err)
			}
			outcome = model.UpsertUnchanged
			return nil
		}

		if err := tx.Model(&m).Updates(map[string]interface{}{
			"url":              in.URL,
			"snapshot":         snapshot,
			"content_checksum": in.ContentChecksum,
			"last_scanned_at":  in.ScannedAt,
		}).Error; err != nil {
			return fmt.Errorf("更新平台映射失败: %w", err)
		}
		outcome = model.UpsertUpdated
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// EnsurePerformance 同一活动同一开演时间幂等
func (r *CatalogRepository) EnsurePerformance(ctx context.Context, in *model.PerformanceUpsert) (string, error) {
	var existing model.Performance
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND starts_at_utc = ?", in.EventID, in.StartsAtUTC).
		First(&existing).Error
	if err == nil {
		// 精确时间后补时解除TBD
		if existing.TimeTBD && !in.TimeTBD {
			if err := r.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
				"time_tbd": false,
				"status":   "SCHEDULED",
			}).Error; err != nil {
				return "", fmt.Errorf("更新场次TBD状态失败: %w", err)
			}
			return model.UpsertUpdated, nil
		}
		return model.UpsertUnchanged, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("查询场次失败: %w", err)
	}

	status := "SCHEDULED"
	availability := model.AvailabilityUnknown
	if in.TimeTBD {
		status = "TIME_TBD"
		availability = "time_tbd"
	}
	perf := model.Performance{
		EventID:      in.EventID,
		VenueID:      in.VenueID,
		StartsAtUTC:  in.StartsAtUTC,
		TimeTBD:      in.TimeTBD,
		Status:       status,
		Availability: availability,
		Currency:     "EUR",
	}
	if err := r.db.WithContext(ctx).Create(&perf).Error; err != nil {
		return "", fmt.Errorf("创建场次失败: %w, event_id: %d", err, in.EventID)
	}
	return model.UpsertCreated, nil
}

// EventQueryRepository 活动浏览查询实现
type EventQueryRepository struct {
	db *gorm.DB
}

func NewEventQueryRepository(db *gorm.DB) interfaces.EventStore {
	return &EventQueryRepository{db: db}
}

func (r *EventQueryRepository) ListEvents(ctx context.Context, status, availability string, page, pageSize int) (*model.EventListResult, error) {
	db := r.db.WithContext(ctx).Model(&model.Event{})
	if status != "" {
		db = db.Where("status = ?", status)
	}
	if availability != "" {
		db = db.Where("availability = ?", availability)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计活动数失败: %w", err)
	}

	var events []*model.Event
	if err := db.Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("查询活动列表失败: %w", err)
	}

	result := &model.EventListResult{Total: total, Page: page, PageSize: pageSize, Items: make([]model.EventItem, 0, len(events))}
	for _, e := range events {
		item := model.EventItem{
			EventUUID:    e.EventUUID,
			Slug:         e.Slug,
			Name:         e.Name,
			Status:       e.Status,
			Availability: e.Availability,
			MinPrice:     e.MinPrice,
			MaxPrice:     e.MaxPrice,
			Currency:     e.Currency,
		}
		var next model.Performance
		if err := r.db.WithContext(ctx).
			Where("event_id = ? AND starts_at_utc >= NOW()", e.ID).
			Order("starts_at_utc ASC").
			First(&next).Error; err == nil {
			item.NextStartUTC = &next.StartsAtUTC
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (r *EventQueryRepository) GetEventDetail(ctx context.Context, eventUUID string) (*model.EventDetailResult, error) {
	var event model.Event
	if err := r.db.WithContext(ctx).Where("event_uuid = ?", eventUUID).First(&event).Error; err != nil {
		return nil, fmt.Errorf("查询活动失败: %w", err)
	}

	var performances []model.Performance
	if err := r.db.WithContext(ctx).
		Preload("Venue").
		Where("event_id = ?", event.ID).
		Order("starts_at_utc ASC").
		Find(&performances).Error; err != nil {
		return nil, fmt.Errorf("查询场次失败: %w", err)
	}

	var mappings []model.PlatformMapping
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", event.ID).
		Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("查询平台映射失败: %w", err)
	}

	return &model.EventDetailResult{Event: &event, Performances: performances, Mappings: mappings}, nil
}
