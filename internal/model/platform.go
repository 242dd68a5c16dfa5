package model

import "time"

// 可用性取值（各平台归一后统一使用）
const (
	AvailabilityAvailable   = "available"
	AvailabilityLimited     = "limited"
	AvailabilityUnavailable = "unavailable"
	AvailabilityUnknown     = "unknown"
)

// NormalizedEvent 所有平台采集结果的通用归一结构
type NormalizedEvent struct {
	ExternalID  string                 // 平台原生活动ID
	Title       string                 // 活动标题
	URL         string                 // 活动页URL
	VenueName   string                 // 场馆名称
	VenueAddr   string                 // 场馆地址
	City        string                 // 城市
	CountryCode string                 // 国家ISO代码
	StartsAtUTC *time.Time             // 开演时间UTC（可能缺失）
	LocalDate   string                 // 本地日期（yyyy-mm-dd，可能仅有日期）
	TimeTBD     bool                   // 有日期但无具体时间
	Raw         map[string]interface{} // 平台原始payload（快照与校验和用）
}

// CollectOptions 采集参数（窗口化目录采集用）
type CollectOptions struct {
	Country     string // 国家代码
	MonthsAhead int    // 采集未来多少个月
	StepDays    int    // 时间窗口长度（天）
	PageSize    int    // 每页条数
	Limit       int    // 0=不限制
}

// CollectStats 单次采集的统计（窗口失败不中断，仅计数）
type CollectStats struct {
	Windows       int // 窗口总数
	Pages         int // 翻页总数
	Yielded       int // 产出条数
	DedupedAcross int // 相邻窗口重复被跳过的条数
	Malformed     int // 缺少必填字段被跳过的条数
	WindowErrors  int // 整窗失败数
}

// PageObservation 页面关键字启发式的单次观测
type PageObservation struct {
	OK           bool   // 观测本身是否成功（404也算成功，语义为unknown）
	Availability string // available/limited/unavailable/unknown
	IsResale     bool   // 是否检出转售信号
	StatusCode   int    // 最后一次HTTP状态码（0=未知）
	FinalURL     string // 重定向后的最终URL
	Reason       string // 结论原因（negative_keyword等）
	Sample       string // 页面片段（调试用）
}

// PriceObservation 价格API的单次观测
type PriceObservation struct {
	OK           bool
	StatusCode   int
	Availability string
	MinPrice     *float64
	MaxPrice     *float64
	Currency     *string
	Reason       string
	Raw          map[string]interface{}
}

// CombinedObservation 页面与价格信号合并后的最终判定
type CombinedObservation struct {
	OK           bool
	Availability string
	IsResale     bool
	MinPrice     *float64
	MaxPrice     *float64
	Currency     *string
	Source       string // page/price/mixed
	Reason       string
	Page         *PageObservation
	Prices       *PriceObservation
}
