package service

import (
	"context"
	"fmt"
	"time"

	"TicketWatch/internal/model"
)

// RunFree 处理一轮免费订阅：只看站内供给（挂牌与转售），不触碰外部平台。
// 去重按时间桶，同一用户同一活动每桶至多一条。
func (s *ScanService) RunFree(ctx context.Context) ([]TargetResult, error) {
	now := time.Now().UTC()
	targets, err := s.subs.ListFreeActive(ctx, now, s.cfg.Scan.Limit)
	if err != nil {
		return nil, fmt.Errorf("查询免费订阅失败: %w", err)
	}

	bucket := s.cfg.Scan.DedupeBucketMin
	results := make([]TargetResult, 0, len(targets))
	counts := map[string]int{}
	start := time.Now()
	defer func() {
		s.logger.Infof("免费扫描完成: 目标%d, 通知%d, 去重%d, 演练%d, 无供给%d, 已退订%d, 发送失败%d, 耗时%s",
			len(targets), counts[OutcomeNotified], counts[OutcomeDeduped], counts[OutcomeWouldNotify],
			counts[OutcomeSkipNoAvail], counts[OutcomeSkipOptOut], counts[OutcomeNotifyFail],
			time.Since(start).Round(time.Millisecond))
	}()

	for _, sub := range targets {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res := s.freeScanOne(ctx, sub, bucket, now)
		results = append(results, res)
		counts[res.Outcome]++
	}
	return results, nil
}

func (s *ScanService) freeScanOne(ctx context.Context, sub *model.Subscription, bucketMin int, now time.Time) TargetResult {
	res := TargetResult{SubscriptionID: sub.ID}

	if sub.EventID == nil {
		res.Outcome = OutcomeSkipNoPerf
		res.Reason = "免费订阅未关联活动"
		return res
	}
	eventID := *sub.EventID

	if sub.Account != nil && !sub.Account.NotifyEmail {
		res.Outcome = OutcomeSkipOptOut
		res.Reason = "用户已关闭邮件通知"
		return res
	}

	listings, resales, err := s.inventory.CountEventAvailability(ctx, eventID, now)
	if err != nil {
		res.Outcome = OutcomeSkipTMError
		res.Reason = fmt.Sprintf("站内供给查询失败: %v", err)
		return res
	}
	if listings == 0 && resales == 0 {
		res.Outcome = OutcomeSkipNoAvail
		res.Reason = "站内无可购供给"
		return res
	}

	key := FreeKey(sub.AccountID, eventID, bucketMin, now)
	if s.cfg.Scan.DryRun {
		res.Outcome = OutcomeWouldNotify
		res.Reason = key
		s.logger.Infof("[dry-run] 将发送免费档通知: key=%s listings=%d resales=%d", key, listings, resales)
		return res
	}

	eventName := ""
	if sub.Event != nil {
		eventName = sub.Event.Name
	}
	to := ""
	if sub.Account != nil {
		to = sub.Account.Email
	}
	outcome, err := s.dispatcher.NotifyIfNew(ctx, &Notification{
		SubscriptionID: sub.ID,
		DedupeKey:      key,
		To:             to,
		Subject:        fmt.Sprintf("Biglietti disponibili sulla piattaforma: %s", eventName),
		Body: fmt.Sprintf("Per %s risultano %d biglietti in vendita e %d in rivendita sulla piattaforma.",
			eventName, listings, resales),
	})
	if err != nil {
		res.Outcome = OutcomeNotifyFail
		res.Reason = err.Error()
		return res
	}
	switch outcome {
	case DispatchSent:
		res.Outcome = OutcomeNotified
	case DispatchAlreadySent:
		res.Outcome = OutcomeDeduped
	default:
		res.Outcome = OutcomeNotifyFail
	}
	return res
}

// RunFreeLoop 常驻循环执行免费扫描，ctx取消时退出
func (s *ScanService) RunFreeLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Scan.FreeLoopIntervalS) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunFree(ctx); err != nil {
			s.logger.WithError(err).Error("免费扫描执行失败")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
