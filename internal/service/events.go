package service

import (
	"context"
	"fmt"

	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"github.com/sirupsen/logrus"
)

// EventService 活动浏览
type EventService struct {
	store  interfaces.EventStore
	logger *logrus.Logger
}

func NewEventService(store interfaces.EventStore, logger *logrus.Logger) *EventService {
	return &EventService{store: store, logger: logger}
}

// ListEvents 分页查询活动，status/availability为空表示不过滤
func (s *EventService) ListEvents(ctx context.Context, status, availability string, page, pageSize int) (*model.EventListResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	result, err := s.store.ListEvents(ctx, status, availability, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询活动列表失败: %w", err)
	}
	return result, nil
}

// GetEventDetail 按UUID查询活动详情（含场次与平台映射）
func (s *EventService) GetEventDetail(ctx context.Context, eventUUID string) (*model.EventDetailResult, error) {
	if eventUUID == "" {
		return nil, fmt.Errorf("活动UUID不能为空")
	}
	detail, err := s.store.GetEventDetail(ctx, eventUUID)
	if err != nil {
		return nil, fmt.Errorf("查询活动详情失败: %w", err)
	}
	return detail, nil
}
