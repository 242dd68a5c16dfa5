package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"TicketWatch/internal/utils/backoff"

	"github.com/sirupsen/logrus"
)

// uaPool 轮换的浏览器身份，降低单一UA被整体封禁的概率
var uaPool = []string{
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
}

// Result 单次抓取的归一结果。
// 404 也算 OK=true：资源失效是语义结论（unknown），不是抓取失败。
type Result struct {
	OK         bool
	StatusCode int
	FinalURL   string
	Body       string
	Reason     string
}

// Fetcher 带重试的HTTP抓取层。只做网络，不碰持久化。
type Fetcher struct {
	client     *http.Client
	logger     *logrus.Logger
	maxRetries int
	acceptLang string
	referer    string
	// Policy 403/429/5xx的重试等待策略，默认 min(2^attempt, cap)+jitter
	Policy backoff.Policy
}

func NewFetcher(client *http.Client, logger *logrus.Logger, maxRetries int, acceptLang, referer string) *Fetcher {
	if maxRetries <= 0 {
		maxRetries = 4
	}
	if acceptLang == "" {
		acceptLang = "it-IT,it;q=0.9,en-US;q=0.8,en;q=0.7"
	}
	return &Fetcher{
		client:     client,
		logger:     logger,
		maxRetries: maxRetries,
		acceptLang: acceptLang,
		referer:    referer,
		Policy:     backoff.HTTPDefault(),
	}
}

func (f *Fetcher) buildHeaders(attempt int) map[string]string {
	h := map[string]string{
		"User-Agent":                uaPool[attempt%len(uaPool)],
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           f.acceptLang,
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
	}
	if f.referer != "" {
		h["Referer"] = f.referer
	}
	return h
}

// Fetch 执行GET并分类结果：
//   - 404：终态，OK=true，语义为资源失效
//   - 403/429/5xx：按策略重试，Retry-After数字头覆盖计算等待
//   - 其余4xx：终态失败
//   - 网络异常：按同一策略重试
func (f *Fetcher) Fetch(ctx context.Context, url string) *Result {
	var lastStatus int
	var lastFinalURL string

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &Result{OK: false, Reason: fmt.Sprintf("exception: %v", err)}
		}
		for k, v := range f.buildHeaders(attempt) {
			req.Header.Set(k, v)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			if attempt < f.maxRetries {
				f.Policy.Sleep(attempt)
				continue
			}
			return &Result{
				OK:         false,
				StatusCode: lastStatus,
				FinalURL:   lastFinalURL,
				Reason:     fmt.Sprintf("exception: %v", err),
			}
		}

		lastStatus = resp.StatusCode
		lastFinalURL = resp.Request.URL.String()

		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return &Result{
				OK:         true,
				StatusCode: http.StatusNotFound,
				FinalURL:   lastFinalURL,
				Reason:     "page_404_invalid_url",
			}
		}

		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			retryAfter := resp.Header.Get("Retry-After")
			_ = resp.Body.Close()
			if attempt < f.maxRetries {
				if d, ok := backoff.FromRetryAfter(retryAfter); ok {
					time.Sleep(d)
				} else {
					f.Policy.Sleep(attempt)
				}
				continue
			}
			return &Result{
				OK:         false,
				StatusCode: resp.StatusCode,
				FinalURL:   lastFinalURL,
				Reason:     fmt.Sprintf("HTTP %d (blocked/rate/5xx)", resp.StatusCode),
			}
		}

		if resp.StatusCode >= 400 {
			_ = resp.Body.Close()
			return &Result{
				OK:         false,
				StatusCode: resp.StatusCode,
				FinalURL:   lastFinalURL,
				Reason:     fmt.Sprintf("HTTP %d", resp.StatusCode),
			}
		}

		body, err := io.ReadAll(resp.Body)
		closeErr := resp.Body.Close()
		if err != nil {
			if attempt < f.maxRetries {
				f.Policy.Sleep(attempt)
				continue
			}
			return &Result{
				OK:         false,
				StatusCode: resp.StatusCode,
				FinalURL:   lastFinalURL,
				Reason:     fmt.Sprintf("exception: %v", err),
			}
		}
		if closeErr != nil {
			f.logger.WithError(closeErr).Warn("关闭响应体失败")
		}

		return &Result{
			OK:         true,
			StatusCode: resp.StatusCode,
			FinalURL:   lastFinalURL,
			Body:       string(body),
		}
	}

	return &Result{
		OK:         false,
		StatusCode: lastStatus,
		FinalURL:   lastFinalURL,
		Reason:     "unexpected_fallthrough",
	}
}
