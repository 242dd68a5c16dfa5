package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventUpsert 目录采集写入活动时的入参
type EventUpsert struct {
	CanonicalHash  string
	Name           string
	NormalizedName string
	SlugBase       string
	RawNotes       datatypes.JSON
}

// MappingUpsert 目录采集写入平台映射时的入参。
// ContentChecksum由调用方预先算好，与库内校验和一致时走短路更新。
type MappingUpsert struct {
	PlatformID      uint64
	ExternalEventID string
	EventID         uint64
	URL             string
	Snapshot        map[string]interface{}
	ContentChecksum string
	ScannedAt       time.Time
}

// PerformanceUpsert 目录采集写入场次时的入参
type PerformanceUpsert struct {
	EventID     uint64
	VenueID     *uint64
	StartsAtUTC time.Time
	TimeTBD     bool
}

// 写入结果（created/updated/unchanged）
const (
	UpsertCreated   = "created"
	UpsertUpdated   = "updated"
	UpsertUnchanged = "unchanged"
)

// EventListResult 活动分页查询结果
type EventListResult struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    []EventItem `json:"items"`
}

// EventItem 活动列表项
type EventItem struct {
	EventUUID    string     `json:"event_uuid"`
	Slug         string     `json:"slug"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	Availability string     `json:"availability"`
	MinPrice     *float64   `json:"min_price,omitempty"`
	MaxPrice     *float64   `json:"max_price,omitempty"`
	Currency     *string    `json:"currency,omitempty"`
	NextStartUTC *time.Time `json:"next_start_utc,omitempty"`
}

// EventDetailResult 活动详情（含场次与平台映射）
type EventDetailResult struct {
	Event        *Event            `json:"event"`
	Performances []Performance     `json:"performances"`
	Mappings     []PlatformMapping `json:"mappings"`
}
