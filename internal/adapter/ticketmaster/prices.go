package ticketmaster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"TicketWatch/internal/config"
	"TicketWatch/internal/model"
	"TicketWatch/internal/utils/backoff"
	"TicketWatch/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// PriceClient EU mfxapi 价格探测。payload结构因活动而异，按键名动态遍历提取。
type PriceClient struct {
	cfg        *config.PlatformConfig
	httpClient *http.Client
	logger     *logrus.Logger
	policy     backoff.Policy
}

func NewPriceClient(cfg *config.PlatformConfig, logger *logrus.Logger) *PriceClient {
	return &PriceClient{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
		policy:     backoff.Policy{Base: time.Second, Cap: 60 * time.Second},
	}
}

func failedObservation(status int, reason string) *model.PriceObservation {
	return &model.PriceObservation{
		OK:           false,
		StatusCode:   status,
		Availability: model.AvailabilityUnknown,
		Reason:       reason,
	}
}

// FetchPrices 拉取 /events/{id}/prices。429重试，其余错误降级为失败观测，不报错。
func (c *PriceClient) FetchPrices(ctx context.Context, externalEventID string) *model.PriceObservation {
	base := c.cfg.PricesURL
	if base == "" {
		base = "https://app.ticketmaster.eu/mfxapi/v2"
	}
	domain := c.cfg.Domain
	if domain == "" {
		domain = "it"
	}
	lang := c.cfg.Lang
	if lang == "" {
		lang = "it"
	}

	q := url.Values{}
	q.Set("apikey", c.cfg.APIKey)
	q.Set("domain", domain)
	q.Set("lang", lang)
	reqURL := fmt.Sprintf("%s/events/%s/prices?%s", base, url.PathEscape(externalEventID), q.Encode())

	maxRetries := c.cfg.RetryCount
	if maxRetries <= 0 {
		maxRetries = 6
	}

	var lastStatus int
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return failedObservation(0, fmt.Sprintf("mfxapi exception: %v", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return failedObservation(lastStatus, fmt.Sprintf("mfxapi exception: %v", err))
		}
		lastStatus = resp.StatusCode

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			retryAfter := resp.Header.Get("Retry-After")
			_ = resp.Body.Close()
			if d, ok := backoff.FromRetryAfter(retryAfter); ok {
				time.Sleep(d)
			} else {
				c.policy.Sleep(attempt)
			}
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return failedObservation(404, "mfxapi: event_id不存在（可能是不兼容的ID）")
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			_ = resp.Body.Close()
			return failedObservation(resp.StatusCode, fmt.Sprintf("mfxapi: 未授权（%d），请检查apikey权限", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			_ = resp.Body.Close()
			return failedObservation(resp.StatusCode, fmt.Sprintf("mfxapi HTTP %d", resp.StatusCode))
		}

		var data map[string]interface{}
		err = json.NewDecoder(resp.Body).Decode(&data)
		_ = resp.Body.Close()
		if err != nil {
			return failedObservation(resp.StatusCode, fmt.Sprintf("mfxapi JSON解析失败: %v", err))
		}

		minP, maxP, curr := extractMinMaxCurrency(data)
		return &model.PriceObservation{
			OK:           true,
			StatusCode:   resp.StatusCode,
			Availability: guessAvailability(data, minP, maxP),
			MinPrice:     minP,
			MaxPrice:     maxP,
			Currency:     curr,
			Raw:          data,
		}
	}

	return failedObservation(lastStatus, "mfxapi限流重试耗尽（429）")
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// walkDicts 深度遍历payload里的所有dict
func walkDicts(obj interface{}, visit func(map[string]interface{})) {
	switch x := obj.(type) {
	case map[string]interface{}:
		visit(x)
		for _, v := range x {
			walkDicts(v, visit)
		}
	case []interface{}:
		for _, v := range x {
			walkDicts(v, visit)
		}
	}
}

// extractMinMaxCurrency 在已知数组键与全量遍历里收集候选价格对象，取全局min/max
func extractMinMaxCurrency(data map[string]interface{}) (*float64, *float64, *string) {
	var candidates []map[string]interface{}

	for _, key := range []string{"prices", "priceRanges", "price_range", "offers", "levels"} {
		if arr, ok := data[key].([]interface{}); ok {
			for _, it := range arr {
				if m, ok := it.(map[string]interface{}); ok {
					candidates = append(candidates, m)
				}
			}
		}
	}

	walkDicts(data, func(m map[string]interface{}) {
		_, hasMin := m["min"]
		_, hasMax := m["max"]
		_, hasMinP := m["minPrice"]
		_, hasMaxP := m["maxPrice"]
		_, hasMinV := m["min_value"]
		_, hasMaxV := m["max_value"]
		_, hasVal := m["value"]
		if (hasMin && hasMax) || (hasMinP && hasMaxP) || (hasMinV && hasMaxV) || hasVal {
			candidates = append(candidates, m)
		}
	})

	var minV, maxV *float64
	var curr *string

	for _, it := range candidates {
		for _, ckey := range []string{"currency", "currencyCode", "cur"} {
			if v, ok := it[ckey]; ok && v != nil {
				s := fmt.Sprintf("%v", v)
				if s != "" {
					curr = &s
					break
				}
			}
		}

		for _, pair := range [][2]string{{"min", "max"}, {"minPrice", "maxPrice"}, {"min_value", "max_value"}} {
			if a, ok := asFloat(it[pair[0]]); ok {
				if minV == nil || a < *minV {
					v := a
					minV = &v
				}
			}
			if b, ok := asFloat(it[pair[1]]); ok {
				if maxV == nil || b > *maxV {
					v := b
					maxV = &v
				}
			}
		}

		if v, ok := asFloat(it["value"]); ok {
			if minV == nil || v < *minV {
				x := v
				minV = &x
			}
			if maxV == nil || v > *maxV {
				x := v
				maxV = &x
			}
		}
	}

	return minV, maxV, curr
}

// guessAvailability 从顶层状态键推断可用性；只有价格没有状态时按limited处理
func guessAvailability(data map[string]interface{}, minP, maxP *float64) string {
	for _, key := range []string{"availability", "status", "onSale", "onsale", "available"} {
		if v, ok := data[key]; ok {
			s := strings.ToLower(fmt.Sprintf("%v", v))
			if strings.Contains(s, "sold") || strings.Contains(s, "unavail") || s == "false" || s == "0" || s == "no" {
				return model.AvailabilityUnavailable
			}
			if strings.Contains(s, "limit") {
				return model.AvailabilityLimited
			}
			if strings.Contains(s, "avail") || s == "true" || s == "1" || s == "yes" {
				return model.AvailabilityAvailable
			}
		}
	}

	if minP != nil || maxP != nil {
		return model.AvailabilityLimited
	}
	return model.AvailabilityUnknown
}
