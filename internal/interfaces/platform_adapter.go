package interfaces

import (
	"context"

	"TicketWatch/internal/model"
)

// CatalogAdapter 所有目录平台必须实现的核心接口。
// CollectEvents 以流式方式逐条回调，避免整库载入内存。
type CatalogAdapter interface {
	GetName() string
	CollectEvents(ctx context.Context, opts model.CollectOptions, yield func(*model.NormalizedEvent) error) (*model.CollectStats, error)
}

// AvailabilityProber 活动页可用性探测（关键字启发式）
type AvailabilityProber interface {
	CheckPage(ctx context.Context, url string) *model.PageObservation
}

// PriceFetcher 价格API探测
type PriceFetcher interface {
	FetchPrices(ctx context.Context, externalEventID string) *model.PriceObservation
}

// MailSender 外部邮件发送能力
type MailSender interface {
	Send(to, subject, body string) error
}
