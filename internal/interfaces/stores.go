package interfaces

import (
	"context"
	"time"

	"TicketWatch/internal/model"

	"gorm.io/datatypes"
)

// CatalogStore 目录采集的持久化操作（活动/场馆/场次/平台映射）
type CatalogStore interface {
	GetOrCreatePlatform(ctx context.Context, name, domain string) (*model.Platform, error)
	UpsertVenue(ctx context.Context, v *model.Venue) (*model.Venue, error)
	UpsertEvent(ctx context.Context, in *model.EventUpsert) (*model.Event, string, error)
	// ApplyMapping 带校验和短路：未变化时只更新last_scanned_at
	ApplyMapping(ctx context.Context, in *model.MappingUpsert) (string, error)
	EnsurePerformance(ctx context.Context, in *model.PerformanceUpsert) (string, error)
}

// SubscriptionStore 订阅读取（扫描任务用，预加载用户与目标）
type SubscriptionStore interface {
	ListPaidActive(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error)
	ListFreeActive(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error)
	ListActiveByEventID(ctx context.Context, eventID uint64) ([]*model.Subscription, error)
}

// MappingStore 平台映射读取与扫描回写
type MappingStore interface {
	// URLForPerformance 场次级映射优先，回退到活动级映射
	URLForPerformance(ctx context.Context, perf *model.Performance, platformName string) (url string, externalID string, err error)
	ListRecent(ctx context.Context, platformName string, limit int) ([]*model.PlatformMapping, error)
	TouchScanned(ctx context.Context, id uint64, at time.Time) error
	SaveSnapshot(ctx context.Context, id uint64, snapshot datatypes.JSON, at time.Time) error
}

// NotificationStore 通知记录读写。Transaction 内的再查重是并发安全的唯一保障。
type NotificationStore interface {
	ExistsSent(ctx context.Context, dedupeKey string) (bool, error)
	Create(ctx context.Context, rec *model.NotificationRecord) error
	Transaction(ctx context.Context, fn func(tx NotificationStore) error) error
}

// InventoryStore 站内供给查询（有内部票源时不再提醒外部可用性）
type InventoryStore interface {
	HasInternalSupply(ctx context.Context, performanceID uint64) (bool, error)
	CountEventAvailability(ctx context.Context, eventID uint64, now time.Time) (listings int64, resales int64, err error)
}

// EventStore 活动浏览查询
type EventStore interface {
	ListEvents(ctx context.Context, status, availability string, page, pageSize int) (*model.EventListResult, error)
	GetEventDetail(ctx context.Context, eventUUID string) (*model.EventDetailResult, error)
}
