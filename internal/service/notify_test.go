package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TicketWatch/internal/interfaces"
	"TicketWatch/internal/model"

	"github.com/sirupsen/logrus"
)

// 内存版通知记录表，Transaction直接串行执行
type memNotificationStore struct {
	mu      sync.Mutex
	records []*model.NotificationRecord
}

func (m *memNotificationStore) ExistsSent(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.DedupeKey == key && r.Status == "SENT" {
			return true, nil
		}
	}
	return false, nil
}

func (m *memNotificationStore) Create(_ context.Context, rec *model.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memNotificationStore) Transaction(_ context.Context, fn func(tx interfaces.NotificationStore) error) error {
	return fn(m)
}

type fakeSender struct {
	mu       sync.Mutex
	calls    int
	failures int // 前N次调用返回错误
}

func (s *fakeSender) Send(to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("smtp: connection refused")
	}
	return nil
}

func newTestDispatcher(store *memNotificationStore, sender *fakeSender) *Dispatcher {
	d := NewDispatcher(store, sender, 3, 2, logrus.New())
	d.baseWait = 0 // 测试不等待
	return d
}

func TestNotifyIfNewDedupe(t *testing.T) {
	store := &memNotificationStore{}
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	n := &Notification{SubscriptionID: 7, DedupeKey: "k1", To: "a@b.it", Subject: "Biglietti disponibili"}

	outcome, err := d.NotifyIfNew(context.Background(), n)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DispatchSent {
		t.Fatalf("首发应为sent，实际%s", outcome)
	}

	outcome, err = d.NotifyIfNew(context.Background(), n)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DispatchAlreadySent {
		t.Fatalf("同键重发应为already_sent，实际%s", outcome)
	}
	if sender.calls != 1 {
		t.Errorf("已去重仍触发了发送: calls=%d", sender.calls)
	}
	if len(store.records) != 1 {
		t.Errorf("SENT记录应只有1条，实际%d", len(store.records))
	}
}

func TestNotifyIfNewRetryThenSucceed(t *testing.T) {
	store := &memNotificationStore{}
	sender := &fakeSender{failures: 2}
	d := newTestDispatcher(store, sender)

	outcome, err := d.NotifyIfNew(context.Background(), &Notification{SubscriptionID: 1, DedupeKey: "k2", To: "a@b.it"})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DispatchSent {
		t.Fatalf("第三次重试成功应为sent，实际%s", outcome)
	}
	if sender.calls != 3 {
		t.Errorf("calls=%d, want 3", sender.calls)
	}
}

func TestNotifyIfNewExhaustedWritesFailed(t *testing.T) {
	store := &memNotificationStore{}
	sender := &fakeSender{failures: 99}
	d := newTestDispatcher(store, sender)

	outcome, err := d.NotifyIfNew(context.Background(), &Notification{SubscriptionID: 1, DedupeKey: "k3", To: "a@b.it"})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DispatchFailed {
		t.Fatalf("耗尽重试应为failed，实际%s", outcome)
	}
	if len(store.records) != 1 || store.records[0].Status != "FAILED" {
		t.Fatalf("应写入FAILED记录: %+v", store.records)
	}

	// FAILED不参与去重，下一轮修好后可以发出
	sender2 := &fakeSender{}
	d2 := newTestDispatcher(store, sender2)
	outcome, err = d2.NotifyIfNew(context.Background(), &Notification{SubscriptionID: 1, DedupeKey: "k3", To: "a@b.it"})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DispatchSent {
		t.Fatalf("FAILED后的重试应可发送，实际%s", outcome)
	}
}

func TestDedupeKeyFormats(t *testing.T) {
	day := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	if got := BackInStockKey("ticketmaster", 42, 7, day); got != "ticketmaster:BACK_IN_STOCK:perf:42:user:7:2026-08-25" {
		t.Errorf("BackInStockKey=%q", got)
	}

	// 同一桶内两个时刻同键，跨桶不同键
	t1 := time.Unix(6000, 0)
	t2 := time.Unix(6000+59, 0)
	t3 := time.Unix(6000+601, 0)
	if FreeKey(1, 2, 10, t1) != FreeKey(1, 2, 10, t2) {
		t.Error("同一10分钟桶应同键")
	}
	if FreeKey(1, 2, 10, t1) == FreeKey(1, 2, 10, t3) {
		t.Error("跨桶应换键")
	}

	if got := ResaleKey(9, "abc123"); got != "tm_resale:9:abc123" {
		t.Errorf("ResaleKey=%q", got)
	}
}
