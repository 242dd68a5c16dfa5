package ticketmaster

import (
	"encoding/json"
	"testing"

	"TicketWatch/internal/model"
)

func mustDecode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("测试payload非法: %v", err)
	}
	return m
}

func TestExtractMinMaxCurrency(t *testing.T) {
	t.Run("prices数组", func(t *testing.T) {
		data := mustDecode(t, `{"prices":[{"min":35.5,"max":80,"currency":"EUR"},{"min":20,"max":120,"currency":"EUR"}]}`)
		minP, maxP, curr := extractMinMaxCurrency(data)
		if minP == nil || *minP != 20 {
			t.Errorf("min: got %v, want 20", minP)
		}
		if maxP == nil || *maxP != 120 {
			t.Errorf("max: got %v, want 120", maxP)
		}
		if curr == nil || *curr != "EUR" {
			t.Errorf("currency: got %v", curr)
		}
	})

	t.Run("嵌套minPrice", func(t *testing.T) {
		data := mustDecode(t, `{"event":{"ticketing":{"minPrice":"45.00","maxPrice":"99.90","currencyCode":"EUR"}}}`)
		minP, maxP, curr := extractMinMaxCurrency(data)
		if minP == nil || *minP != 45 {
			t.Errorf("min: got %v, want 45", minP)
		}
		if maxP == nil || *maxP != 99.9 {
			t.Errorf("max: got %v, want 99.9", maxP)
		}
		if curr == nil || *curr != "EUR" {
			t.Errorf("currency: got %v", curr)
		}
	})

	t.Run("单value键", func(t *testing.T) {
		data := mustDecode(t, `{"levels":[{"value":50,"cur":"EUR"},{"value":30,"cur":"EUR"}]}`)
		minP, maxP, _ := extractMinMaxCurrency(data)
		if minP == nil || *minP != 30 {
			t.Errorf("min: got %v, want 30", minP)
		}
		if maxP == nil || *maxP != 50 {
			t.Errorf("max: got %v, want 50", maxP)
		}
	})

	t.Run("无价格信息", func(t *testing.T) {
		data := mustDecode(t, `{"event":{"name":"x"}}`)
		minP, maxP, curr := extractMinMaxCurrency(data)
		if minP != nil || maxP != nil || curr != nil {
			t.Errorf("不应提取出价格: %v %v %v", minP, maxP, curr)
		}
	})
}

func TestGuessAvailability(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	cases := []struct {
		name string
		data string
		minP *float64
		maxP *float64
		want string
	}{
		{"sold状态", `{"status":"SoldOut"}`, nil, nil, model.AvailabilityUnavailable},
		{"onSale false", `{"onSale":false}`, nil, nil, model.AvailabilityUnavailable},
		{"limited状态", `{"availability":"limited stock"}`, nil, nil, model.AvailabilityLimited},
		{"available状态", `{"available":true}`, nil, nil, model.AvailabilityAvailable},
		{"avail子串", `{"status":"Available"}`, nil, nil, model.AvailabilityAvailable},
		{"仅价格无状态", `{"foo":1}`, f(10), f(20), model.AvailabilityLimited},
		{"空payload", `{}`, nil, nil, model.AvailabilityUnknown},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := guessAvailability(mustDecode(t, c.data), c.minP, c.maxP); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}
