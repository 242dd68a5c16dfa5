package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"TicketWatch/internal/config"
	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"github.com/sirupsen/logrus"
)

// ResaleScanService 转售探测：轮询平台映射页面，结论变化才落快照，
// 探测到可购转售时通知该活动的活跃订阅者。
type ResaleScanService struct {
	mappings   interfaces.MappingStore
	subs       interfaces.SubscriptionStore
	prober     interfaces.AvailabilityProber
	prices     interfaces.PriceFetcher
	dispatcher *Dispatcher
	cfg        *config.Config
	logger     *logrus.Logger

	sleep func(time.Duration)
}

func NewResaleScanService(
	mappings interfaces.MappingStore,
	subs interfaces.SubscriptionStore,
	prober interfaces.AvailabilityProber,
	prices interfaces.PriceFetcher,
	dispatcher *Dispatcher,
	cfg *config.Config,
	logger *logrus.Logger,
) *ResaleScanService {
	return &ResaleScanService{
		mappings:   mappings,
		subs:       subs,
		prober:     prober,
		prices:     prices,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// ResaleStats 单轮转售探测计数
type ResaleStats struct {
	Probed    int
	Unchanged int
	Changed   int
	Resale    int
	Notified  int
	Deduped   int
	OptedOut  int
	Failed    int
}

// snooze 对外请求后的限速，刚被403/429时基数加倍并加重 uniform(2, 6)秒
func (r *ResaleScanService) snooze(heavy bool) {
	base := time.Duration(r.cfg.Scan.SleepBaseSeconds*1000) * time.Millisecond
	d := base + time.Duration((0.2+rand.Float64()*0.7)*1000)*time.Millisecond
	if heavy {
		d += base + time.Duration((2+rand.Float64()*4)*1000)*time.Millisecond
	}
	r.sleep(d)
}

// Run 探测一轮最近的平台映射
func (r *ResaleScanService) Run(ctx context.Context) (*ResaleStats, error) {
	mappings, err := r.mappings.ListRecent(ctx, "ticketmaster", r.cfg.Scan.Limit)
	if err != nil {
		return nil, fmt.Errorf("查询平台映射失败: %w", err)
	}

	stats := &ResaleStats{}
	start := time.Now()
	defer func() {
		r.logger.Infof("转售探测完成: 探测%d, 未变%d, 变化%d, 转售%d, 通知%d, 去重%d, 已退订%d, 失败%d, 耗时%s",
			stats.Probed, stats.Unchanged, stats.Changed, stats.Resale,
			stats.Notified, stats.Deduped, stats.OptedOut, stats.Failed,
			time.Since(start).Round(time.Millisecond))
	}()

	for i, m := range mappings {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		heavy, err := r.probeOne(ctx, m, stats)
		if err != nil {
			stats.Failed++
			r.logger.WithError(err).Warnf("转售探测失败: mapping_id=%d", m.ID)
		}
		if i < len(mappings)-1 {
			r.snooze(heavy)
		}
	}
	return stats, nil
}

// probeOne 单条映射的探测与落库。返回是否刚被限流/封禁。
func (r *ResaleScanService) probeOne(ctx context.Context, m *model.PlatformMapping, stats *ResaleStats) (bool, error) {
	if m.URL == "" {
		return false, nil
	}
	stats.Probed++

	page := r.prober.CheckPage(ctx, m.URL)
	heavy := page.StatusCode == 403 || page.StatusCode == 429

	var priceObs *model.PriceObservation
	if r.cfg.Scan.ResaleEnablePrices && r.prices != nil && m.ExternalEventID != "" {
		priceObs = r.prices.FetchPrices(ctx, m.ExternalEventID)
	}
	combined := MergeSignals(page, priceObs)
	if !combined.OK {
		return heavy, fmt.Errorf("页面与价格探测均失败: %s", combined.Reason)
	}

	now := time.Now().UTC()
	checksum := ProbeChecksum(combined.Availability, combined.IsResale, page.FinalURL)
	if checksum == previousProbeChecksum(m.Snapshot) {
		stats.Unchanged++
		if err := r.mappings.TouchScanned(ctx, m.ID, now); err != nil {
			return heavy, fmt.Errorf("更新扫描时间失败: %w", err)
		}
		return heavy, nil
	}

	stats.Changed++
	snapshot, err := probeSnapshot(m.Snapshot, combined, page.FinalURL, checksum, now)
	if err != nil {
		return heavy, err
	}
	if err := r.mappings.SaveSnapshot(ctx, m.ID, snapshot, now); err != nil {
		return heavy, fmt.Errorf("保存探测快照失败: %w", err)
	}

	if !combined.IsResale ||
		(combined.Availability != model.AvailabilityAvailable && combined.Availability != model.AvailabilityLimited) {
		return heavy, nil
	}
	stats.Resale++

	subs, err := r.subs.ListActiveByEventID(ctx, m.EventID)
	if err != nil {
		return heavy, fmt.Errorf("查询活动订阅失败: %w", err)
	}
	for _, sub := range subs {
		if sub.Account != nil && !sub.Account.NotifyEmail {
			stats.OptedOut++
			continue
		}
		to := ""
		eventName := ""
		if sub.Account != nil {
			to = sub.Account.Email
		}
		// 场次级订阅没有直挂的Event，从场次上取活动名
		if sub.Event != nil {
			eventName = sub.Event.Name
		} else if sub.Performance != nil && sub.Performance.Event != nil {
			eventName = sub.Performance.Event.Name
		}
		outcome, err := r.dispatcher.NotifyIfNew(ctx, &Notification{
			SubscriptionID: sub.ID,
			DedupeKey:      ResaleKey(sub.ID, checksum),
			To:             to,
			Subject:        fmt.Sprintf("Biglietti in rivendita: %s", eventName),
			Body:           fmt.Sprintf("Sono comparsi biglietti in rivendita per %s.\n\n%s", eventName, m.URL),
		})
		if err != nil {
			stats.Failed++
			r.logger.WithError(err).Warnf("转售通知失败: subscription_id=%d", sub.ID)
			continue
		}
		switch outcome {
		case DispatchSent:
			stats.Notified++
		case DispatchAlreadySent:
			stats.Deduped++
		default:
			stats.Failed++
		}
	}
	return heavy, nil
}

// previousProbeChecksum 上一轮探测结论的校验和，快照缺失或不含探测字段时为空
func previousProbeChecksum(snapshot []byte) string {
	if len(snapshot) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(snapshot, &m); err != nil {
		return ""
	}
	if v, ok := m["resale_checksum"].(string); ok {
		return v
	}
	return ""
}

// probeSnapshot 在既有快照上合并本轮探测结论，目录采集写入的字段原样保留
func probeSnapshot(prev []byte, combined *model.CombinedObservation, finalURL, checksum string, at time.Time) ([]byte, error) {
	m := map[string]interface{}{}
	if len(prev) > 0 {
		_ = json.Unmarshal(prev, &m)
	}
	m["resale_checksum"] = checksum
	m["resale_probe"] = map[string]interface{}{
		"availability": combined.Availability,
		"is_resale":    combined.IsResale,
		"source":       combined.Source,
		"reason":       combined.Reason,
		"final_url":    finalURL,
		"probed_at":    at.Format(time.RFC3339),
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("探测快照序列化失败: %w", err)
	}
	return b, nil
}
