package ticketmaster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"TicketWatch/internal/config"
	"TicketWatch/internal/model"

	"github.com/sirupsen/logrus"
)

func TestBuildWindows(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("整除切分", func(t *testing.T) {
		ws := BuildWindows(start, start.AddDate(0, 0, 60), 30)
		if len(ws) != 2 {
			t.Fatalf("窗口数=%d, want 2", len(ws))
		}
		if !ws[0].End.Equal(ws[1].Start) {
			t.Error("相邻窗口应首尾相接")
		}
		if !ws[1].End.Equal(start.AddDate(0, 0, 60)) {
			t.Error("末窗口应对齐终点")
		}
	})

	t.Run("尾窗截断", func(t *testing.T) {
		ws := BuildWindows(start, start.AddDate(0, 0, 45), 30)
		if len(ws) != 2 {
			t.Fatalf("窗口数=%d, want 2", len(ws))
		}
		if got := ws[1].End.Sub(ws[1].Start); got != 15*24*time.Hour {
			t.Errorf("尾窗长度=%v, want 15天", got)
		}
	})

	t.Run("空区间", func(t *testing.T) {
		if ws := BuildWindows(start, start, 30); ws != nil {
			t.Errorf("空区间应返回nil，得到%d个窗口", len(ws))
		}
	})
}

func TestIsoZ(t *testing.T) {
	ts := time.Date(2026, 6, 23, 19, 0, 0, 123456789, time.UTC)
	if got := isoZ(ts); got != "2026-06-23T19:00:00Z" {
		t.Errorf("isoZ: got %q", got)
	}
}

// catalogServer 按窗口参数返回落在区间内的活动，boundary活动在每个窗口都返回，
// 模拟相邻窗口重复返回边界条目的真实行为。
func catalogServer(t *testing.T, base time.Time) *httptest.Server {
	t.Helper()

	type datedEvent struct {
		id string
		at time.Time
	}
	dated := []datedEvent{
		{"ev-day10", base.AddDate(0, 0, 10)},
		{"ev-day45", base.AddDate(0, 0, 45)},
	}

	mkEvent := func(id string, at time.Time) map[string]interface{} {
		return map[string]interface{}{
			"id":   id,
			"name": "Concerto " + id,
			"url":  "https://www.ticketmaster.it/event/" + id,
			"dates": map[string]interface{}{
				"start": map[string]interface{}{
					"dateTime":  at.Format("2006-01-02T15:04:05Z"),
					"localDate": at.Format("2006-01-02"),
				},
			},
			"_embedded": map[string]interface{}{
				"venues": []interface{}{
					map[string]interface{}{
						"name":    "Arena Test",
						"city":    map[string]interface{}{"name": "Verona"},
						"country": map[string]interface{}{"countryCode": "IT"},
					},
				},
			},
		}
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, err := time.Parse("2006-01-02T15:04:05Z", r.URL.Query().Get("startDateTime"))
		if err != nil {
			t.Errorf("startDateTime解析失败: %v", err)
		}
		end, _ := time.Parse("2006-01-02T15:04:05Z", r.URL.Query().Get("endDateTime"))

		var events []interface{}
		for _, d := range dated {
			if !d.at.Before(start) && !d.at.After(end) {
				events = append(events, mkEvent(d.id, d.at))
			}
		}
		events = append(events, mkEvent("ev-boundary", base.AddDate(0, 0, 30)))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"_embedded": map[string]interface{}{"events": events},
			"page":      map[string]interface{}{"totalPages": 1, "number": 0},
		})
	}))
}

func collectIDs(t *testing.T, srvURL string, stepDays int) []string {
	t.Helper()
	cfg := &config.PlatformConfig{
		BaseURL:    srvURL,
		APIKey:     "test-key",
		Timeout:    5,
		RetryCount: 1,
		IncludeTBA: true,
		IncludeTBD: true,
	}
	adapter := NewAdapter(cfg, logrus.New())

	var ids []string
	stats, err := adapter.CollectEvents(context.Background(), model.CollectOptions{
		Country:     "IT",
		MonthsAhead: 2,
		StepDays:    stepDays,
		PageSize:    195,
	}, func(ne *model.NormalizedEvent) error {
		ids = append(ids, ne.ExternalID)
		return nil
	})
	if err != nil {
		t.Fatalf("CollectEvents: %v", err)
	}
	if stats.Yielded != len(ids) {
		t.Errorf("stats.Yielded=%d, 实际产出%d", stats.Yielded, len(ids))
	}
	sort.Strings(ids)
	return ids
}

func TestCollectDeduplicatesAcrossWindowBoundary(t *testing.T) {
	srv := catalogServer(t, time.Now().UTC())
	defer srv.Close()

	ids := collectIDs(t, srv.URL, 30)

	count := 0
	for _, id := range ids {
		if id == "ev-boundary" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("边界活动应只产出一次，实际%d次（全部=%v）", count, ids)
	}
}

func TestCollectSteppedEqualsSingleWindow(t *testing.T) {
	base := time.Now().UTC()
	srv := catalogServer(t, base)
	defer srv.Close()

	stepped := collectIDs(t, srv.URL, 30) // 两个30天窗口
	single := collectIDs(t, srv.URL, 60)  // 一个60天窗口

	if len(stepped) != len(single) {
		t.Fatalf("分窗结果应等于整窗结果: %v vs %v", stepped, single)
	}
	for i := range stepped {
		if stepped[i] != single[i] {
			t.Fatalf("分窗结果应等于整窗结果: %v vs %v", stepped, single)
		}
	}
}

func TestCollectSkipsMalformedRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"_embedded": map[string]interface{}{"events": []interface{}{
				map[string]interface{}{"name": "senza id"},
				map[string]interface{}{"id": "ok-1", "name": "Valido", "url": "https://x",
					"dates": map[string]interface{}{"start": map[string]interface{}{"localDate": "2026-09-01"}}},
			}},
			"page": map[string]interface{}{"totalPages": 1},
		})
	}))
	defer srv.Close()

	cfg := &config.PlatformConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 5, RetryCount: 1}
	adapter := NewAdapter(cfg, logrus.New())

	var got []*model.NormalizedEvent
	stats, err := adapter.CollectEvents(context.Background(), model.CollectOptions{
		Country: "IT", MonthsAhead: 1, StepDays: 30, PageSize: 10,
	}, func(ne *model.NormalizedEvent) error {
		got = append(got, ne)
		return nil
	})
	if err != nil {
		t.Fatalf("CollectEvents: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "ok-1" {
		t.Fatalf("应只产出合法记录: %+v", got)
	}
	if stats.Malformed != 1 {
		t.Errorf("Malformed=%d, want 1", stats.Malformed)
	}
	// 只有localDate的活动不丢弃，打TBD标记
	if !got[0].TimeTBD {
		t.Error("缺少dateTime时应标记TimeTBD")
	}
}
