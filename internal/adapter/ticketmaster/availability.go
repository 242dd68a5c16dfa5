package ticketmaster

import (
	"context"
	"regexp"
	"strings"

	"TicketWatch/internal/config"
	"TicketWatch/internal/fetcher"
	"TicketWatch/internal/model"
	"TicketWatch/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// 页面关键字启发式：否定词优先于肯定词
var negativeKeywords = []string{
	"sold out",
	"esaurito",
	"non disponibile",
	"tickets not available",
	"no tickets available",
}

var positiveKeywords = []string{
	"acquista",
	"buy tickets",
	"aggiungi al carrello",
	"on sale",
	"in vendita",
	"rivendita",
	"resale",
}

// 页面内嵌JSON里的转售标记
var (
	resaleJSONRe = regexp.MustCompile(`(?i)"isresale"\s*:\s*true`)
	resaleBareRe = regexp.MustCompile(`(?i)\bisresale\b\s*:\s*true`)
)

const sampleLen = 220

// Prober 活动页可用性探测器。一次扫描内复用同一实例（保留cookie与连接）。
type Prober struct {
	fetch  *fetcher.Fetcher
	logger *logrus.Logger
}

func NewProber(cfg *config.PlatformConfig, logger *logrus.Logger) *Prober {
	referer := cfg.PageBaseURL
	if referer == "" {
		referer = "https://www.ticketmaster.it/"
	}
	client := httpclient.NewBrowserClient(cfg, logger)
	return &Prober{
		fetch:  fetcher.NewFetcher(client, logger, cfg.RetryCount, cfg.AcceptLang, referer),
		logger: logger,
	}
}

func detectResale(textLower string) bool {
	if strings.Contains(textLower, "rivendita") || strings.Contains(textLower, "resale") {
		return true
	}
	if resaleJSONRe.MatchString(textLower) {
		return true
	}
	if resaleBareRe.MatchString(textLower) {
		return true
	}
	return false
}

// classifyPage 关键字判定：否定词→unavailable，肯定词→available，否则unknown
func classifyPage(body string) (availability, reason string, isResale bool, sample string) {
	textLower := strings.ToLower(body)
	isResale = detectResale(textLower)
	if len(textLower) > sampleLen {
		sample = textLower[:sampleLen]
	} else {
		sample = textLower
	}

	for _, k := range negativeKeywords {
		if strings.Contains(textLower, k) {
			return model.AvailabilityUnavailable, "negative_keyword", isResale, sample
		}
	}
	for _, k := range positiveKeywords {
		if strings.Contains(textLower, k) {
			return model.AvailabilityAvailable, "positive_keyword", isResale, sample
		}
	}
	return model.AvailabilityUnknown, "no_strong_signals", isResale, sample
}

// CheckPage 抓取活动页并归一为观测结果。本方法不报错：失败降级为OK=false的观测。
func (p *Prober) CheckPage(ctx context.Context, url string) *model.PageObservation {
	res := p.fetch.Fetch(ctx, url)

	if !res.OK {
		return &model.PageObservation{
			OK:           false,
			Availability: model.AvailabilityUnknown,
			StatusCode:   res.StatusCode,
			FinalURL:     res.FinalURL,
			Reason:       res.Reason,
		}
	}

	// 404：URL失效是语义结论，不再重试
	if res.StatusCode == 404 {
		return &model.PageObservation{
			OK:           true,
			Availability: model.AvailabilityUnknown,
			StatusCode:   404,
			FinalURL:     res.FinalURL,
			Reason:       res.Reason,
		}
	}

	availability, reason, isResale, sample := classifyPage(res.Body)
	return &model.PageObservation{
		OK:           true,
		Availability: availability,
		IsResale:     isResale,
		StatusCode:   res.StatusCode,
		FinalURL:     res.FinalURL,
		Reason:       reason,
		Sample:       sample,
	}
}
