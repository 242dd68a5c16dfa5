package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"TicketWatch/internal/adapter/eventbrite"
	"TicketWatch/internal/adapter/ticketmaster"
	"TicketWatch/internal/config"
	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"github.com/sirupsen/logrus"
)

// ScrubService 目录采集：拉取平台活动目录并归一入库
type ScrubService struct {
	logger *logrus.Logger
	cfg    *config.Config
	store  interfaces.CatalogStore
	// 适配器工厂：新增平台仅需添加此处
	adapterFactory map[string]func(platformCfg *config.PlatformConfig, logger *logrus.Logger) interfaces.CatalogAdapter
}

func NewScrubService(store interfaces.CatalogStore, logger *logrus.Logger, cfg *config.Config) *ScrubService {
	return &ScrubService{
		logger: logger,
		cfg:    cfg,
		store:  store,
		adapterFactory: map[string]func(platformCfg *config.PlatformConfig, logger *logrus.Logger) interfaces.CatalogAdapter{
			"ticketmaster": ticketmaster.NewAdapter,
			"eventbrite":   eventbrite.NewAdapter,
		},
	}
}

// ScrubStats 单次采集的结果计数
type ScrubStats struct {
	EventsCreated     int
	EventsUpdated     int
	EventsUnchanged   int
	PerformancesNew   int
	MappingsChanged   int
	MappingsUnchanged int
	Failed            int
}

// ScrubPlatform 采集单个平台的活动目录。
// 单条记录失败只计数不中断，汇总日志无论成败都会输出。
func (s *ScrubService) ScrubPlatform(ctx context.Context, platformName string) (*ScrubStats, error) {
	adapterBuilder, ok := s.adapterFactory[platformName]
	if !ok {
		return nil, fmt.Errorf("未支持的平台: %s", platformName)
	}
	adapterCfg, ok := s.cfg.Platforms[platformName]
	if !ok {
		return nil, fmt.Errorf("未获取到平台配置: %s", platformName)
	}
	adapter := adapterBuilder(&adapterCfg, s.logger)

	platform, err := s.store.GetOrCreatePlatform(ctx, platformName, adapterCfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("查询%s平台记录失败: %w", platformName, err)
	}
	if !platform.IsEnabled {
		return nil, fmt.Errorf("%s平台已禁用", platformName)
	}

	stats := &ScrubStats{}
	start := time.Now()
	defer func() {
		s.logger.Infof("%s目录采集完成: 活动 新建%d/更新%d/未变%d, 场次新建%d, 映射 变化%d/未变%d, 失败%d, 耗时%s",
			platformName, stats.EventsCreated, stats.EventsUpdated, stats.EventsUnchanged,
			stats.PerformancesNew, stats.MappingsChanged, stats.MappingsUnchanged, stats.Failed,
			time.Since(start).Round(time.Millisecond))
	}()

	opts := model.CollectOptions{
		Country:     s.cfg.Scrub.Country,
		MonthsAhead: s.cfg.Scrub.MonthsAhead,
		StepDays:    s.cfg.Scrub.StepDays,
		PageSize:    s.cfg.Scrub.PageSize,
		Limit:       s.cfg.Scrub.Limit,
	}

	collectStats, err := adapter.CollectEvents(ctx, opts, func(ne *model.NormalizedEvent) error {
		if err := s.ingestOne(ctx, platform, platformName, ne, stats); err != nil {
			stats.Failed++
			s.logger.WithError(err).Warnf("%s单条活动入库失败: external_id=%s", platformName, ne.ExternalID)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("%s目录采集失败: %w", platformName, err)
	}
	s.logger.Infof("%s采集器: 窗口%d 页%d 产出%d 跨窗去重%d 坏记录%d 窗口失败%d",
		platformName, collectStats.Windows, collectStats.Pages, collectStats.Yielded,
		collectStats.DedupedAcross, collectStats.Malformed, collectStats.WindowErrors)
	return stats, nil
}

// ingestOne 单条活动：场馆 -> 活动 -> 平台映射 -> 场次
func (s *ScrubService) ingestOne(ctx context.Context, platform *model.Platform, platformName string, ne *model.NormalizedEvent, stats *ScrubStats) error {
	var venueID *uint64
	if ne.VenueName != "" {
		venue, err := s.store.UpsertVenue(ctx, &model.Venue{
			Name:           ne.VenueName,
			NormalizedSlug: Slugify(ne.VenueName + " " + ne.City + " " + ne.CountryCode),
			Address:        ne.VenueAddr,
			City:           ne.City,
			CountryCode:    ne.CountryCode,
		})
		if err != nil {
			return fmt.Errorf("场馆入库失败: %w", err)
		}
		venueID = &venue.ID
	}

	rawNotes, err := json.Marshal(ne.Raw)
	if err != nil {
		return fmt.Errorf("原始payload序列化失败: %w", err)
	}
	event, eventOutcome, err := s.store.UpsertEvent(ctx, &model.EventUpsert{
		CanonicalHash:  CanonicalHash(platformName, ne.ExternalID),
		Name:           ne.Title,
		NormalizedName: NormalizeName(ne.Title),
		SlugBase:       slugBase(ne.Title, ne.ExternalID),
		RawNotes:       rawNotes,
	})
	if err != nil {
		return fmt.Errorf("活动入库失败: %w", err)
	}
	switch eventOutcome {
	case model.UpsertCreated:
		stats.EventsCreated++
	case model.UpsertUpdated:
		stats.EventsUpdated++
	default:
		stats.EventsUnchanged++
	}

	checksum, err := StableChecksum(ne.Raw)
	if err != nil {
		return fmt.Errorf("快照校验和计算失败: %w", err)
	}
	mappingOutcome, err := s.store.ApplyMapping(ctx, &model.MappingUpsert{
		PlatformID:      platform.ID,
		ExternalEventID: ne.ExternalID,
		EventID:         event.ID,
		URL:             ne.URL,
		Snapshot:        ne.Raw,
		ContentChecksum: checksum,
		ScannedAt:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("平台映射入库失败: %w", err)
	}
	if mappingOutcome == model.UpsertUnchanged {
		stats.MappingsUnchanged++
	} else {
		stats.MappingsChanged++
	}

	perf, ok := performanceFor(event.ID, venueID, ne)
	if !ok {
		// 完全无日期信息的活动只建目录条目，不建场次
		return nil
	}
	perfOutcome, err := s.store.EnsurePerformance(ctx, perf)
	if err != nil {
		return fmt.Errorf("场次入库失败: %w", err)
	}
	if perfOutcome == model.UpsertCreated {
		stats.PerformancesNew++
	}
	return nil
}

// performanceFor 有精确时间用精确时间；只有本地日期（TBD）用当日UTC零点占位，
// TimeTBD标记才是事实，占位时间仅供排序展示。
func performanceFor(eventID uint64, venueID *uint64, ne *model.NormalizedEvent) (*model.PerformanceUpsert, bool) {
	if ne.StartsAtUTC != nil {
		return &model.PerformanceUpsert{
			EventID:     eventID,
			VenueID:     venueID,
			StartsAtUTC: *ne.StartsAtUTC,
			TimeTBD:     false,
		}, true
	}
	if ne.TimeTBD && ne.LocalDate != "" {
		d, err := time.ParseInLocation("2006-01-02", ne.LocalDate, time.UTC)
		if err != nil {
			return nil, false
		}
		return &model.PerformanceUpsert{
			EventID:     eventID,
			VenueID:     venueID,
			StartsAtUTC: d,
			TimeTBD:     true,
		}, true
	}
	return nil, false
}

// NormalizeName 标题归一化：小写、压缩空白
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Slugify 非字母数字折叠为连字符
func Slugify(s string) string {
	var b strings.Builder
	prevDash := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevDash = false
		} else if !prevDash {
			b.WriteByte('-')
			prevDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// slugBase 活动slug基底：归一化标题 + 平台ID前缀保证可读且大概率唯一
func slugBase(title, externalID string) string {
	idPart := externalID
	if len(idPart) > 8 {
		idPart = idPart[:8]
	}
	return Slugify(NormalizeName(title) + " " + idPart)
}
