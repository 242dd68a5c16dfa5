package ticketmaster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"TicketWatch/internal/config"
	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"
	"TicketWatch/internal/utils/backoff"
	"TicketWatch/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

const defaultHardPageCap = 20000

// Adapter Ticketmaster Discovery API v2 目录采集适配器。
// Discovery 有 deep paging 限制（单查询最多约1000条），
// 因此按时间窗口切分查询，窗口内翻页，跨窗口按活动ID去重。
type Adapter struct {
	cfg        *config.PlatformConfig
	httpClient *http.Client
	logger     *logrus.Logger
	policy     backoff.Policy
}

func NewAdapter(cfg *config.PlatformConfig, logger *logrus.Logger) interfaces.CatalogAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
		policy:     backoff.Policy{Base: time.Second, Cap: 60 * time.Second},
	}
}

func (a *Adapter) GetName() string {
	return "ticketmaster"
}

// Window 一个时间窗口 [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

// BuildWindows 把 [start, end) 切成连续的 stepDays 天窗口。
// 相邻窗口首尾相接，边界上的活动可能被两个窗口同时返回，由采集侧的seen集合去重。
func BuildWindows(start, end time.Time, stepDays int) []Window {
	start = start.UTC()
	end = end.UTC()
	if !end.After(start) || stepDays <= 0 {
		return nil
	}
	step := time.Duration(stepDays) * 24 * time.Hour
	var out []Window
	cur := start
	for cur.Before(end) {
		nxt := cur.Add(step)
		if nxt.After(end) {
			nxt = end
		}
		out = append(out, Window{Start: cur, End: nxt})
		cur = nxt
	}
	return out
}

// isoZ Discovery 接受的时间格式：秒精度、无微秒、Z结尾
func isoZ(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// fetchEventsPage 拉取窗口内的一页。429按Retry-After或指数退避重试。
func (a *Adapter) fetchEventsPage(ctx context.Context, w Window, page, size int, country string) (*model.TMEventsPage, error) {
	q := url.Values{}
	q.Set("apikey", a.cfg.APIKey)
	q.Set("countryCode", country)
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("size", fmt.Sprintf("%d", size))
	q.Set("sort", "date,asc")
	if a.cfg.IncludeTBA {
		q.Set("includeTBA", "yes")
	} else {
		q.Set("includeTBA", "no")
	}
	if a.cfg.IncludeTBD {
		q.Set("includeTBD", "yes")
	} else {
		q.Set("includeTBD", "no")
	}
	q.Set("startDateTime", isoZ(w.Start))
	q.Set("endDateTime", isoZ(w.End))
	if a.cfg.SourceFilter != "" {
		q.Set("source", a.cfg.SourceFilter)
	}

	reqURL := a.cfg.BaseURL + "?" + q.Encode()

	maxRetries := a.cfg.RetryCount
	if maxRetries <= 0 {
		maxRetries = 6
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("构造Discovery请求失败: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("请求Discovery失败: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			retryAfter := resp.Header.Get("Retry-After")
			_ = resp.Body.Close()
			if d, ok := backoff.FromRetryAfter(retryAfter); ok {
				time.Sleep(d)
			} else {
				a.policy.Sleep(attempt)
			}
			continue
		}

		if resp.StatusCode >= 400 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("Discovery返回HTTP %d", resp.StatusCode)
		}

		var pageData model.TMEventsPage
		err = json.NewDecoder(resp.Body).Decode(&pageData)
		if closeErr := resp.Body.Close(); closeErr != nil {
			a.logger.WithError(closeErr).Warn("关闭Discovery响应体失败")
		}
		if err != nil {
			return nil, fmt.Errorf("解析Discovery响应失败: %w", err)
		}
		return &pageData, nil
	}

	return nil, fmt.Errorf("Discovery限流重试耗尽（429）")
}

// CollectEvents 窗口化全量采集：
//   - 窗口覆盖 [now, now + MonthsAhead*30天)
//   - 单窗口失败仅计数，不中断整体
//   - seen集合的生命周期限定在本次调用内，避免常驻进程跨批次串味
func (a *Adapter) CollectEvents(ctx context.Context, opts model.CollectOptions, yield func(*model.NormalizedEvent) error) (*model.CollectStats, error) {
	stats := &model.CollectStats{}

	now := time.Now().UTC()
	horizon := now.Add(time.Duration(opts.MonthsAhead) * 30 * 24 * time.Hour)
	windows := BuildWindows(now, horizon, opts.StepDays)
	stats.Windows = len(windows)

	size := opts.PageSize
	if size <= 0 {
		size = 195
	}
	hardCap := a.cfg.HardPageCap
	if hardCap <= 0 {
		hardCap = defaultHardPageCap
	}

	seen := make(map[string]struct{})

	for _, w := range windows {
		if err := a.collectWindow(ctx, w, size, hardCap, opts, seen, stats, yield); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.WindowErrors++
			a.logger.WithError(err).WithFields(logrus.Fields{
				"window_start": isoZ(w.Start),
				"window_end":   isoZ(w.End),
			}).Warn("窗口采集失败，跳过该窗口")
			continue
		}
		if opts.Limit > 0 && stats.Yielded >= opts.Limit {
			break
		}
	}

	return stats, nil
}

func (a *Adapter) collectWindow(
	ctx context.Context,
	w Window,
	size, hardCap int,
	opts model.CollectOptions,
	seen map[string]struct{},
	stats *model.CollectStats,
	yield func(*model.NormalizedEvent) error,
) error {
	page := 0
	totalPages := -1

	for totalPages < 0 || page < totalPages {
		if page >= hardCap {
			break
		}

		data, err := a.fetchEventsPage(ctx, w, page, size, opts.Country)
		if err != nil {
			return err
		}
		stats.Pages++

		for _, raw := range data.Embedded.Events {
			var e model.TMEvent
			if err := json.Unmarshal(raw, &e); err != nil || e.ID == "" {
				stats.Malformed++
				continue
			}
			if _, ok := seen[e.ID]; ok {
				stats.DedupedAcross++
				continue
			}
			seen[e.ID] = struct{}{}

			ne, err := a.normalize(raw, &e, opts.Country)
			if err != nil {
				stats.Malformed++
				a.logger.WithError(err).WithField("tm_id", e.ID).Warn("记录归一化失败，跳过")
				continue
			}

			if err := yield(ne); err != nil {
				return fmt.Errorf("消费采集结果失败: %w", err)
			}
			stats.Yielded++
			if opts.Limit > 0 && stats.Yielded >= opts.Limit {
				return nil
			}
		}

		if data.Page.TotalPages > 0 {
			totalPages = data.Page.TotalPages
		} else if len(data.Embedded.Events) == 0 {
			// 兜底：没有分页信息且本页为空时退出
			break
		}
		page++
	}

	return nil
}

// normalize Discovery活动 -> 通用归一结构。
// 只有localDate没有dateTime的活动不丢弃，打TimeTBD标记交给入库侧处理。
func (a *Adapter) normalize(raw json.RawMessage, e *model.TMEvent, fallbackCountry string) (*model.NormalizedEvent, error) {
	var rawMap map[string]interface{}
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		return nil, fmt.Errorf("解析原始payload失败: %w", err)
	}

	ne := &model.NormalizedEvent{
		ExternalID: e.ID,
		Title:      e.Name,
		URL:        e.URL,
		LocalDate:  e.Dates.Start.LocalDate,
		Raw:        rawMap,
	}

	if e.Dates.Start.DateTime != "" {
		t, err := time.Parse(time.RFC3339, e.Dates.Start.DateTime)
		if err == nil {
			utc := t.UTC()
			ne.StartsAtUTC = &utc
		}
	}
	if ne.StartsAtUTC == nil && ne.LocalDate != "" {
		ne.TimeTBD = true
	}

	if len(e.Embedded.Venues) > 0 {
		v := e.Embedded.Venues[0]
		ne.VenueName = v.Name
		ne.VenueAddr = v.Address.Line1
		ne.City = v.City.Name
		ne.CountryCode = v.Country.CountryCode
	}
	if ne.VenueName == "" {
		ne.VenueName = "Sconosciuto"
	}
	if ne.CountryCode == "" {
		ne.CountryCode = fallbackCountry
	}

	return ne, nil
}
