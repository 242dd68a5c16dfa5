package eventbrite

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
	"TicketWatch/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// Adapter Eventbrite v3 目录采集适配器。
// 组织维度拉取活动，continuation翻页，场馆按ID缓存解析。
type Adapter struct {
	cfg        *config.PlatformConfig
	httpClient *http.Client
	logger     *logrus.Logger
	venueCache map[string]*model.EBVenue
}

func NewAdapter(cfg *config.PlatformConfig, logger *logrus.Logger) interfaces.CatalogAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
		venueCache: make(map[string]*model.EBVenue),
	}
}

func (a *Adapter) GetName() string {
	return "eventbrite"
}

func (a *Adapter) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := a.cfg.BaseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构造Eventbrite请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.AuthToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求Eventbrite失败: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Errorf("关闭Eventbrite响应体失败: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Eventbrite返回HTTP %d on %s", resp.StatusCode, path)
	}

	var buf []byte
	dec := json.NewDecoder(resp.Body)
	var rawBody json.RawMessage
	if err := dec.Decode(&rawBody); err != nil {
		return nil, fmt.Errorf("读取Eventbrite响应失败: %w", err)
	}
	buf = rawBody
	return buf, nil
}

// getVenue 按ID解析场馆，进程内缓存避免重复请求
func (a *Adapter) getVenue(ctx context.Context, venueID string) *model.EBVenue {
	if venueID == "" {
		return nil
	}
	if v, ok := a.venueCache[venueID]; ok {
		return v
	}
	body, err := a.get(ctx, fmt.Sprintf("/venues/%s/", venueID), nil)
	if err != nil {
		a.logger.WithError(err).WithField("venue_id", venueID).Warn("场馆解析失败")
		return nil
	}
	var v model.EBVenue
	if err := json.Unmarshal(body, &v); err != nil {
		a.logger.WithError(err).WithField("venue_id", venueID).Warn("场馆payload解析失败")
		return nil
	}
	a.venueCache[venueID] = &v
	return &v
}

// CollectEvents continuation分页拉取组织下的全部活动并逐条归一
func (a *Adapter) CollectEvents(ctx context.Context, opts model.CollectOptions, yield func(*model.NormalizedEvent) error) (*model.CollectStats, error) {
	stats := &model.CollectStats{}

	if a.cfg.OrgID == "" {
		return stats, fmt.Errorf("Eventbrite缺少org_id配置")
	}

	size := opts.PageSize
	if size <= 0 {
		size = 50
	}

	path := fmt.Sprintf("/organizations/%s/events/", a.cfg.OrgID)
	continuation := ""

	for {
		params := url.Values{}
		params.Set("status", "all")
		params.Set("page_size", fmt.Sprintf("%d", size))
		if continuation != "" {
			params.Set("continuation", continuation)
		}

		body, err := a.get(ctx, path, params)
		if err != nil {
			return stats, err
		}
		stats.Pages++

		var page model.EBEventsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return stats, fmt.Errorf("解析Eventbrite活动页失败: %w", err)
		}

		for _, raw := range page.Events {
			var e model.EBEvent
			if err := json.Unmarshal(raw, &e); err != nil || e.ID == "" {
				stats.Malformed++
				continue
			}

			ne, err := a.normalize(ctx, raw, &e, opts.Country)
			if err != nil {
				stats.Malformed++
				a.logger.WithError(err).WithField("eb_id", e.ID).Warn("记录归一化失败，跳过")
				continue
			}

			if err := yield(ne); err != nil {
				return stats, fmt.Errorf("消费采集结果失败: %w", err)
			}
			stats.Yielded++
			if opts.Limit > 0 && stats.Yielded >= opts.Limit {
				return stats, nil
			}
		}

		if !page.Pagination.HasMoreItems || page.Pagination.Continuation == "" {
			break
		}
		continuation = page.Pagination.Continuation
	}

	return stats, nil
}

func (a *Adapter) normalize(ctx context.Context, raw json.RawMessage, e *model.EBEvent, fallbackCountry string) (*model.NormalizedEvent, error) {
	var rawMap map[string]interface{}
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		return nil, fmt.Errorf("解析原始payload失败: %w", err)
	}

	ne := &model.NormalizedEvent{
		ExternalID: e.ID,
		Title:      e.Name.Text,
		URL:        e.URL,
		Raw:        rawMap,
	}

	if e.Start.UTC != "" {
		t, err := time.Parse(time.RFC3339, e.Start.UTC)
		if err == nil {
			utc := t.UTC()
			ne.StartsAtUTC = &utc
			ne.LocalDate = utc.Format("2006-01-02")
		}
	}

	if v := a.getVenue(ctx, e.VenueID); v != nil {
		ne.VenueName = v.Name
		ne.VenueAddr = v.Address.Address1
		ne.City = v.Address.City
		ne.CountryCode = v.Address.Country
	}
	if ne.VenueName == "" {
		ne.VenueName = "Sconosciuto"
	}
	if ne.CountryCode == "" {
		ne.CountryCode = fallbackCountry
	}

	return ne, nil
}
