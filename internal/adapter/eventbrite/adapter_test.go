package eventbrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"TicketWatch/internal/config"
	"TicketWatch/internal/model"

	"github.com/sirupsen/logrus"
)

func TestCollectEventsContinuationAndVenueCache(t *testing.T) {
	var venueHits int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/venues/") {
			atomic.AddInt32(&venueHits, 1)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"name": "Teatro Test",
				"address": map[string]interface{}{
					"address_1": "Via Roma 1",
					"city":      "Milano",
					"country":   "IT",
				},
			})
			return
		}

		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		mkEvent := func(id string) map[string]interface{} {
			return map[string]interface{}{
				"id":       id,
				"name":     map[string]interface{}{"text": "Evento " + id},
				"start":    map[string]interface{}{"utc": "2026-09-10T20:00:00Z"},
				"url":      "https://www.eventbrite.it/e/" + id,
				"venue_id": "v-1",
				"status":   "live",
			}
		}

		if r.URL.Query().Get("continuation") == "" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"events": []interface{}{mkEvent("100"), mkEvent("101")},
				"pagination": map[string]interface{}{
					"continuation":   "cont-2",
					"has_more_items": true,
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"events": []interface{}{mkEvent("102")},
			"pagination": map[string]interface{}{
				"has_more_items": false,
			},
		})
	}))
	defer srv.Close()

	cfg := &config.PlatformConfig{
		BaseURL:   srv.URL,
		AuthToken: "tok-123",
		OrgID:     "org-9",
		Timeout:   5,
	}
	adapter := NewAdapter(cfg, logrus.New())

	var got []*model.NormalizedEvent
	stats, err := adapter.CollectEvents(context.Background(), model.CollectOptions{Country: "IT", PageSize: 2}, func(ne *model.NormalizedEvent) error {
		got = append(got, ne)
		return nil
	})
	if err != nil {
		t.Fatalf("CollectEvents: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("应跨continuation产出3条，实际%d", len(got))
	}
	if stats.Pages != 2 {
		t.Errorf("Pages=%d, want 2", stats.Pages)
	}
	if got[0].VenueName != "Teatro Test" || got[0].City != "Milano" || got[0].CountryCode != "IT" {
		t.Errorf("场馆归一错误: %+v", got[0])
	}
	if got[0].StartsAtUTC == nil || got[0].TimeTBD {
		t.Error("有UTC时间的活动不应标记TBD")
	}
	// 三条活动同一场馆，场馆接口只应命中一次
	if atomic.LoadInt32(&venueHits) != 1 {
		t.Errorf("场馆缓存未生效，命中%d次", venueHits)
	}
}
