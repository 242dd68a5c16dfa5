package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"TicketWatch/internal/config"
	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"github.com/sirupsen/logrus"
)

// 单目标结论。每个订阅目标都落到其中一个，失败从不中断整轮。
const (
	OutcomeNotified    = "notified"
	OutcomeDeduped     = "deduped"
	OutcomeWouldNotify = "would_notify" // dry-run
	OutcomeSkipNoPerf  = "skip_no_perf"
	OutcomeSkipOptOut  = "skip_opt_out"
	OutcomeSkipIntern  = "skip_internal"
	OutcomeSkipNoMap   = "skip_no_mapping"
	OutcomeSkipTMError = "skip_tm_error"
	OutcomeSkipNoAvail = "skip_not_avail"
	OutcomeNotifyFail  = "notify_failed"
)

// TargetResult 单个订阅目标的处理结果
type TargetResult struct {
	SubscriptionID uint64
	Outcome        string
	Reason         string
}

// ScanService 付费档扫描：活跃付费订阅 -> 外部可用性探测 -> 去重通知
type ScanService struct {
	subs       interfaces.SubscriptionStore
	mappings   interfaces.MappingStore
	inventory  interfaces.InventoryStore
	prober     interfaces.AvailabilityProber
	dispatcher *Dispatcher
	cfg        *config.Config
	logger     *logrus.Logger

	sleep func(time.Duration) // 测试可替换
}

func NewScanService(
	subs interfaces.SubscriptionStore,
	mappings interfaces.MappingStore,
	inventory interfaces.InventoryStore,
	prober interfaces.AvailabilityProber,
	dispatcher *Dispatcher,
	cfg *config.Config,
	logger *logrus.Logger,
) *ScanService {
	return &ScanService{
		subs:       subs,
		mappings:   mappings,
		inventory:  inventory,
		prober:     prober,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// snooze 对外请求后的限速：基数 + uniform(0.2, 0.9)秒；
// 刚被403/429时基数加倍，再加重 uniform(2, 6)秒
func (s *ScanService) snooze(heavy bool) {
	base := time.Duration(s.cfg.Scan.SleepBaseSeconds*1000) * time.Millisecond
	d := base + time.Duration((0.2+rand.Float64()*0.7)*1000)*time.Millisecond
	if heavy {
		d += base + time.Duration((2+rand.Float64()*4)*1000)*time.Millisecond
	}
	s.sleep(d)
}

// RunPaid 处理一轮付费订阅。汇总日志无论成败都会输出。
func (s *ScanService) RunPaid(ctx context.Context) ([]TargetResult, error) {
	now := time.Now().UTC()
	targets, err := s.subs.ListPaidActive(ctx, now, s.cfg.Scan.Limit)
	if err != nil {
		return nil, fmt.Errorf("查询付费订阅失败: %w", err)
	}

	results := make([]TargetResult, 0, len(targets))
	counts := map[string]int{}
	start := time.Now()
	defer func() {
		s.logger.Infof("付费扫描完成: 目标%d, 通知%d, 去重%d, 演练%d, 跳过(无场次%d/已退订%d/站内有票%d/无映射%d/探测失败%d/不可购%d), 发送失败%d, 耗时%s",
			len(targets), counts[OutcomeNotified], counts[OutcomeDeduped], counts[OutcomeWouldNotify],
			counts[OutcomeSkipNoPerf], counts[OutcomeSkipOptOut], counts[OutcomeSkipIntern],
			counts[OutcomeSkipNoMap], counts[OutcomeSkipTMError], counts[OutcomeSkipNoAvail],
			counts[OutcomeNotifyFail], time.Since(start).Round(time.Millisecond))
	}()

	for i, sub := range targets {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, fetched, heavy := s.scanOne(ctx, sub, now)
		results = append(results, res)
		counts[res.Outcome]++
		if res.Outcome != OutcomeNotified && res.Outcome != OutcomeDeduped && res.Outcome != OutcomeWouldNotify {
			s.logger.WithFields(logrus.Fields{
				"subscription_id": sub.ID,
				"outcome":         res.Outcome,
				"reason":          res.Reason,
			}).Debug("订阅目标跳过")
		}
		// 只有真正发起过对外请求才限速；纯库内跳过不消耗扫描间隔
		if fetched && i < len(targets)-1 {
			s.snooze(heavy)
		}
	}
	return results, nil
}

// scanOne 单个付费订阅目标。
// 第二返回值表示本目标是否发起过对外请求，第三返回值表示是否刚被限流/封禁。
func (s *ScanService) scanOne(ctx context.Context, sub *model.Subscription, now time.Time) (TargetResult, bool, bool) {
	res := TargetResult{SubscriptionID: sub.ID}

	perf := sub.Performance
	if perf == nil {
		res.Outcome = OutcomeSkipNoPerf
		res.Reason = "订阅未关联可扫描的场次"
		return res, false, false
	}

	if sub.Account != nil && !sub.Account.NotifyEmail {
		res.Outcome = OutcomeSkipOptOut
		res.Reason = "用户已关闭邮件通知"
		return res, false, false
	}

	// 站内已有票源则不必看外部页面，省一次对外请求
	hasSupply, err := s.inventory.HasInternalSupply(ctx, perf.ID)
	if err != nil {
		res.Outcome = OutcomeSkipTMError
		res.Reason = fmt.Sprintf("站内票源查询失败: %v", err)
		return res, false, false
	}
	if hasSupply {
		res.Outcome = OutcomeSkipIntern
		res.Reason = "站内已有有效票源"
		return res, false, false
	}

	pageURL, _, err := s.mappings.URLForPerformance(ctx, perf, "ticketmaster")
	if err != nil || pageURL == "" {
		res.Outcome = OutcomeSkipNoMap
		res.Reason = "无可用平台映射"
		return res, false, false
	}

	obs := s.prober.CheckPage(ctx, pageURL)
	heavy := obs.StatusCode == 403 || obs.StatusCode == 429
	if !obs.OK {
		res.Outcome = OutcomeSkipTMError
		res.Reason = obs.Reason
		return res, true, heavy
	}
	if obs.Availability != model.AvailabilityAvailable && obs.Availability != model.AvailabilityLimited {
		res.Outcome = OutcomeSkipNoAvail
		res.Reason = obs.Reason
		return res, true, heavy
	}

	key := BackInStockKey("ticketmaster", perf.ID, sub.AccountID, now)
	if s.cfg.Scan.DryRun {
		res.Outcome = OutcomeWouldNotify
		res.Reason = key
		s.logger.Infof("[dry-run] 将发送通知: key=%s url=%s", key, pageURL)
		return res, true, heavy
	}

	eventName := ""
	if perf.Event != nil {
		eventName = perf.Event.Name
	}
	to := ""
	if sub.Account != nil {
		to = sub.Account.Email
	}
	outcome, err := s.dispatcher.NotifyIfNew(ctx, &Notification{
		SubscriptionID: sub.ID,
		DedupeKey:      key,
		To:             to,
		Subject:        fmt.Sprintf("Biglietti di nuovo disponibili: %s", eventName),
		Body:           fmt.Sprintf("I biglietti per %s risultano di nuovo disponibili.\n\n%s", eventName, pageURL),
	})
	if err != nil {
		res.Outcome = OutcomeNotifyFail
		res.Reason = err.Error()
		return res, true, heavy
	}
	switch outcome {
	case DispatchSent:
		res.Outcome = OutcomeNotified
	case DispatchAlreadySent:
		res.Outcome = OutcomeDeduped
	default:
		res.Outcome = OutcomeNotifyFail
	}
	return res, true, heavy
}
