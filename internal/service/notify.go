package service

import (
	"context"
	"fmt"
	"time"

	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"
	"TicketWatch/internal/utils/backoff"

	"github.com/sirupsen/logrus"
)

// 去重键构造。键的格式一旦变化，历史SENT记录即失去去重效力，改动需谨慎。

// BackInStockKey 付费档回流提醒：同一用户、同一场次、同一平台，每天至多一条
func BackInStockKey(platform string, performanceID, accountID uint64, day time.Time) string {
	return fmt.Sprintf("%s:BACK_IN_STOCK:perf:%d:user:%d:%s", platform, performanceID, accountID, day.UTC().Format("2006-01-02"))
}

// FreeKey 免费档提醒：按N分钟桶去重，桶号=floor(unix/(N*60))
func FreeKey(accountID, eventID uint64, bucketMinutes int, now time.Time) string {
	if bucketMinutes <= 0 {
		bucketMinutes = 60
	}
	bucket := now.Unix() / int64(bucketMinutes*60)
	return fmt.Sprintf("FREE:%d:%d:%dm:%d", accountID, eventID, bucketMinutes, bucket)
}

// ResaleKey 转售探测提醒：同一订阅在同一探测结论下只发一次，结论变化即生成新键
func ResaleKey(subscriptionID uint64, probeChecksum string) string {
	return fmt.Sprintf("tm_resale:%d:%s", subscriptionID, probeChecksum)
}

// Dispatcher 去重的事务化通知派发器
type Dispatcher struct {
	store    interfaces.NotificationStore
	sender   interfaces.MailSender
	retries  int
	baseWait time.Duration
	logger   *logrus.Logger
}

func NewDispatcher(store interfaces.NotificationStore, sender interfaces.MailSender, retries int, baseWaitSec float64, logger *logrus.Logger) *Dispatcher {
	if retries <= 0 {
		retries = 3
	}
	if baseWaitSec <= 0 {
		baseWaitSec = 2
	}
	return &Dispatcher{
		store:    store,
		sender:   sender,
		retries:  retries,
		baseWait: time.Duration(baseWaitSec * float64(time.Second)),
		logger:   logger,
	}
}

// Notification 一次待发通知
type Notification struct {
	SubscriptionID uint64
	DedupeKey      string
	To             string
	Subject        string
	Body           string
}

// 派发结果
const (
	DispatchSent        = "sent"
	DispatchAlreadySent = "already_sent"
	DispatchFailed      = "failed"
)

// sendWithRetry 线性退避重试，全部失败时返回最后一次错误
func (d *Dispatcher) sendWithRetry(n *Notification) error {
	policy := backoff.Mail(d.baseWait)
	var lastErr error
	for attempt := 0; attempt < d.retries; attempt++ {
		if attempt > 0 {
			policy.Sleep(attempt - 1)
		}
		if err := d.sender.Send(n.To, n.Subject, n.Body); err != nil {
			lastErr = err
			d.logger.WithError(err).Warnf("邮件发送失败，第%d/%d次: key=%s", attempt+1, d.retries, n.DedupeKey)
			continue
		}
		return nil
	}
	return lastErr
}

// NotifyIfNew 同一去重键至多产生一条SENT记录。
// 事务内再查重 -> 发送 -> 成功才写SENT；发送耗尽后写FAILED记录（FAILED不参与去重，下轮可重试）。
func (d *Dispatcher) NotifyIfNew(ctx context.Context, n *Notification) (string, error) {
	outcome := DispatchFailed
	err := d.store.Transaction(ctx, func(tx interfaces.NotificationStore) error {
		sent, err := tx.ExistsSent(ctx, n.DedupeKey)
		if err != nil {
			return fmt.Errorf("查询通知记录失败: %w", err)
		}
		if sent {
			outcome = DispatchAlreadySent
			return nil
		}

		if sendErr := d.sendWithRetry(n); sendErr != nil {
			if recErr := tx.Create(ctx, &model.NotificationRecord{
				SubscriptionID: n.SubscriptionID,
				Channel:        "email",
				DedupeKey:      n.DedupeKey,
				Status:         "FAILED",
				SentAt:         time.Now().UTC(),
				Message:        n.Subject,
			}); recErr != nil {
				return fmt.Errorf("写入失败记录失败: %w", recErr)
			}
			outcome = DispatchFailed
			return nil
		}

		if err := tx.Create(ctx, &model.NotificationRecord{
			SubscriptionID: n.SubscriptionID,
			Channel:        "email",
			DedupeKey:      n.DedupeKey,
			Status:         "SENT",
			SentAt:         time.Now().UTC(),
			Message:        n.Subject,
		}); err != nil {
			return fmt.Errorf("写入发送记录失败: %w", err)
		}
		outcome = DispatchSent
		return nil
	})
	if err != nil {
		return DispatchFailed, err
	}
	return outcome, nil
}
