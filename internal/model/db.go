package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Account struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Email       string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null;comment:用户邮箱"`
	FirstName   string    `gorm:"column:first_name;type:varchar(100);comment:名"`
	LastName    string    `gorm:"column:last_name;type:varchar(100);comment:姓"`
	NotifyEmail bool      `gorm:"column:notify_email;type:boolean;default:true;comment:是否接收邮件通知"`
	IsActive    bool      `gorm:"column:is_active;type:boolean;default:true;comment:是否活跃"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

type Venue struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Name           string    `gorm:"column:name;type:varchar(255);not null;comment:场馆名称"`
	NormalizedSlug string    `gorm:"column:normalized_slug;type:varchar(255);uniqueIndex;not null;comment:归一化slug（name-city-country）"`
	Address        string    `gorm:"column:address;type:varchar(255);comment:地址"`
	City           string    `gorm:"column:city;type:varchar(120);comment:城市"`
	CountryCode    string    `gorm:"column:country_code;type:varchar(2);comment:国家ISO代码"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

type Event struct {
	ID             uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	EventUUID      string         `gorm:"column:event_uuid;type:varchar(64);uniqueIndex;not null;comment:全局唯一ID"`
	Slug           string         `gorm:"column:slug;type:varchar(255);uniqueIndex;not null;comment:唯一slug"`
	Name           string         `gorm:"column:name;type:varchar(255);not null;comment:活动名称"`
	NormalizedName string         `gorm:"column:normalized_name;type:varchar(255);comment:归一化名称"`
	Status         string         `gorm:"column:status;type:varchar(20);default:planned;comment:状态：planned/canceled/postponed/rescheduled"`
	Availability   string         `gorm:"column:availability;type:varchar(20);default:unknown;comment:汇总可用性：available/limited/unavailable/unknown"`
	MinPrice       *float64       `gorm:"column:min_price;type:numeric(10,2);comment:最低票价"`
	MaxPrice       *float64       `gorm:"column:max_price;type:numeric(10,2);comment:最高票价"`
	Currency       *string        `gorm:"column:currency;type:varchar(3);comment:币种"`
	CanonicalHash  string         `gorm:"column:canonical_hash;type:varchar(64);uniqueIndex;not null;comment:跨平台规范哈希 sha256(platform:external_id)"`
	RawNotes       datatypes.JSON `gorm:"column:raw_notes;type:jsonb;comment:来源备注"`
	CreatedAt      time.Time      `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

type Performance struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	EventID      uint64    `gorm:"column:event_id;type:bigint;not null;index;comment:关联活动ID"`
	VenueID      *uint64   `gorm:"column:venue_id;type:bigint;index;comment:关联场馆ID"`
	StartsAtUTC  time.Time `gorm:"column:starts_at_utc;type:timestamp;not null;comment:开演时间UTC（TimeTBD时为本地日期零点占位）"`
	TimeTBD      bool      `gorm:"column:time_tbd;type:boolean;default:false;comment:开演时间未公布（占位时间仅供展示）"`
	Status       string    `gorm:"column:status;type:varchar(20);default:SCHEDULED;comment:状态：SCHEDULED/TIME_TBD/CANCELED"`
	Availability string    `gorm:"column:availability;type:varchar(20);default:unknown;comment:可用性：available/limited/unavailable/unknown/time_tbd"`
	Currency     string    `gorm:"column:currency;type:varchar(3);default:EUR;comment:币种"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`

	Event *Event `gorm:"foreignKey:EventID"`
	Venue *Venue `gorm:"foreignKey:VenueID"`
}

type Platform struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Name      string    `gorm:"column:name;type:varchar(60);uniqueIndex;not null;comment:平台名称"`
	Domain    string    `gorm:"column:domain;type:varchar(120);comment:平台域名"`
	IsEnabled bool      `gorm:"column:is_enabled;type:boolean;default:true;comment:是否启用"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

// PlatformMapping 活动在单一外部平台上的映射。仅创建与更新，从不删除。
type PlatformMapping struct {
	ID              uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	EventID         uint64         `gorm:"column:event_id;type:bigint;not null;uniqueIndex:uk_event_platform;comment:关联活动ID"`
	PerformanceID   *uint64        `gorm:"column:performance_id;type:bigint;index;comment:关联场次ID（可选，场次级映射）"`
	PlatformID      uint64         `gorm:"column:platform_id;type:bigint;not null;uniqueIndex:uk_event_platform;uniqueIndex:uk_platform_external;comment:关联平台ID"`
	ExternalEventID string         `gorm:"column:external_event_id;type:varchar(255);uniqueIndex:uk_platform_external;comment:平台原生活动ID"`
	URL             string         `gorm:"column:url;type:varchar(1024);comment:活动页URL"`
	Availability    string         `gorm:"column:availability;type:varchar(20);default:unknown;comment:平台侧可用性"`
	LastScannedAt   time.Time      `gorm:"column:last_scanned_at;type:timestamp;comment:最近扫描时间"`
	Snapshot        datatypes.JSON `gorm:"column:snapshot;type:jsonb;comment:最近一次原始快照（diff与审计用）"`
	ContentChecksum string         `gorm:"column:content_checksum;type:varchar(64);comment:快照稳定校验和"`
	CreatedAt       time.Time      `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

type Subscription struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	AccountID     uint64         `gorm:"column:account_id;type:bigint;not null;index;comment:所属用户ID"`
	EventID       *uint64        `gorm:"column:event_id;type:bigint;index;comment:监控的活动ID（与场次二选一）"`
	PerformanceID *uint64        `gorm:"column:performance_id;type:bigint;index;comment:监控的场次ID（与活动二选一）"`
	StartsAt      time.Time      `gorm:"column:starts_at;type:timestamp;default:now();comment:订阅生效时间"`
	EndsAt        *time.Time     `gorm:"column:ends_at;type:timestamp;comment:订阅到期时间（空=不过期）"`
	IsActive      bool           `gorm:"column:is_active;type:boolean;default:true;comment:是否生效（到期仅置否，不删除）"`
	Price         float64        `gorm:"column:price;type:numeric(10,2);default:0;comment:订阅价格（0=免费档）"`
	Filter        datatypes.JSON `gorm:"column:filter;type:jsonb;comment:过滤条件（价格上限、偏好平台等）"`
	CreatedAt     time.Time      `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`

	Account     *Account     `gorm:"foreignKey:AccountID"`
	Event       *Event       `gorm:"foreignKey:EventID"`
	Performance *Performance `gorm:"foreignKey:PerformanceID"`
}

// BeforeSave 订阅必须恰好关联一个目标（活动或场次），写入期校验而非扫描期发现
func (s *Subscription) BeforeSave(tx *gorm.DB) error {
	if (s.EventID == nil) == (s.PerformanceID == nil) {
		return errors.New("订阅必须且仅能关联一个活动或场次")
	}
	return nil
}

// NotificationRecord 通知记录，仅追加。SENT记录是去重判断的唯一依据。
type NotificationRecord struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	SubscriptionID uint64    `gorm:"column:subscription_id;type:bigint;not null;index;comment:关联订阅ID"`
	Channel        string    `gorm:"column:channel;type:varchar(10);default:email;comment:通知渠道"`
	DedupeKey      string    `gorm:"column:dedupe_key;type:varchar(255);index;not null;comment:去重键"`
	Status         string    `gorm:"column:status;type:varchar(10);not null;comment:结果：SENT/FAILED"`
	SentAt         time.Time `gorm:"column:sent_at;type:timestamp;default:now();comment:发送时间"`
	Message        string    `gorm:"column:message;type:text;comment:通知内容"`
}

type TicketFile struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	PerformanceID uint64    `gorm:"column:performance_id;type:bigint;not null;index;comment:关联场次ID"`
	FileName      string    `gorm:"column:file_name;type:varchar(255);comment:文件名"`
	FileHash      string    `gorm:"column:file_hash;type:varchar(64);comment:文件哈希"`
	IsValid       bool      `gorm:"column:is_valid;type:boolean;default:false;comment:是否已核验有效"`
	UploadedAt    time.Time `gorm:"column:uploaded_at;type:timestamp;default:now();comment:上传时间"`
}

type MarketListing struct {
	ID            uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	PerformanceID uint64     `gorm:"column:performance_id;type:bigint;not null;index;comment:关联场次ID"`
	SellerID      *uint64    `gorm:"column:seller_id;type:bigint;comment:卖家用户ID"`
	Price         float64    `gorm:"column:price;type:numeric(10,2);default:0;comment:挂牌价格"`
	Status        string     `gorm:"column:status;type:varchar(16);default:ACTIVE;comment:状态：ACTIVE/SOLD/EXPIRED"`
	ExpiresAt     *time.Time `gorm:"column:expires_at;type:timestamp;comment:过期时间（空=不过期）"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

type Resale struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	EventID     uint64    `gorm:"column:event_id;type:bigint;not null;index;comment:关联活动ID"`
	SellerID    *uint64   `gorm:"column:seller_id;type:bigint;comment:卖家用户ID"`
	URL         string    `gorm:"column:url;type:varchar(1024);comment:转售页URL"`
	Price       float64   `gorm:"column:price;type:numeric(10,2);default:0;comment:转售价格"`
	IsAvailable bool      `gorm:"column:is_available;type:boolean;default:true;comment:是否可购"`
	Status      string    `gorm:"column:status;type:varchar(16);default:DRAFT;comment:状态：DRAFT/PUBLISHED/SOLD"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

func (Account) TableName() string            { return "accounts" }
func (Venue) TableName() string              { return "venues" }
func (Event) TableName() string              { return "events" }
func (Performance) TableName() string        { return "performances" }
func (Platform) TableName() string           { return "platforms" }
func (PlatformMapping) TableName() string    { return "platform_mappings" }
func (Subscription) TableName() string       { return "subscriptions" }
func (NotificationRecord) TableName() string { return "notification_records" }
func (TicketFile) TableName() string         { return "ticket_files" }
func (MarketListing) TableName() string      { return "market_listings" }
func (Resale) TableName() string             { return "resales" }
