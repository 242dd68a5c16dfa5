package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"TicketWatch/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

type fakePriceFetcher struct {
	obs   map[string]*model.PriceObservation
	calls int
}

func (f *fakePriceFetcher) FetchPrices(_ context.Context, externalEventID string) *model.PriceObservation {
	f.calls++
	if o, ok := f.obs[externalEventID]; ok {
		return o
	}
	return &model.PriceObservation{OK: false, Availability: model.AvailabilityUnknown, Reason: "价格接口无数据"}
}

type resaleFixture struct {
	svc    *ResaleScanService
	store  *memNotificationStore
	maps   *fakeMappingStore
	prices *fakePriceFetcher
}

func newResaleFixture(maps *fakeMappingStore, subs *memSubscriptionStore, prober *fakeProber, prices *fakePriceFetcher, enablePrices bool) *resaleFixture {
	cfg := scanTestConfig()
	cfg.Scan.ResaleEnablePrices = enablePrices
	fx := &resaleFixture{store: &memNotificationStore{}, maps: maps, prices: prices}
	d := newTestDispatcher(fx.store, &fakeSender{})
	fx.svc = NewResaleScanService(maps, subs, prober, prices, d, cfg, logrus.New())
	fx.svc.sleep = func(time.Duration) {}
	return fx
}

func resaleMapping(id, eventID uint64, url string, snapshot map[string]interface{}) *model.PlatformMapping {
	m := &model.PlatformMapping{ID: id, EventID: eventID, URL: url, ExternalEventID: "ext-1"}
	if snapshot != nil {
		b, _ := json.Marshal(snapshot)
		m.Snapshot = datatypes.JSON(b)
	}
	return m
}

func TestResaleScanNotifiesSubscribers(t *testing.T) {
	maps := &fakeMappingStore{recent: []*model.PlatformMapping{
		resaleMapping(1, 500, "https://t/resale", nil),
	}}
	subs := &memSubscriptionStore{byEvent: map[uint64][]*model.Subscription{
		500: {freeSub(7, 10, 500), freeSub(8, 11, 500)},
	}}
	prober := &fakeProber{obs: map[string]*model.PageObservation{
		"https://t/resale": {OK: true, Availability: model.AvailabilityAvailable, IsResale: true, FinalURL: "https://t/resale", Reason: "positive_keyword"},
	}}
	fx := newResaleFixture(maps, subs, prober, &fakePriceFetcher{}, false)

	stats, err := fx.svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Resale != 1 || stats.Notified != 2 {
		t.Fatalf("两个订阅者都应收到通知: %+v", stats)
	}
	if fx.maps.snapshot[1] == nil {
		t.Fatal("结论变化应保存快照")
	}
	var snap map[string]interface{}
	_ = json.Unmarshal(fx.maps.snapshot[1], &snap)
	if snap["resale_checksum"] == "" || snap["resale_probe"] == nil {
		t.Errorf("快照应包含探测结论: %v", snap)
	}
	// 价格探测未启用
	if fx.prices.calls != 0 {
		t.Error("未启用价格探测时不应调用价格接口")
	}
}

func TestResaleScanNotifiesPerformanceLevelSubscriber(t *testing.T) {
	maps := &fakeMappingStore{recent: []*model.PlatformMapping{
		resaleMapping(1, 500, "https://t/resale", nil),
	}}
	perfSub := &model.Subscription{
		ID:        9,
		AccountID: 12,
		Account:   &model.Account{ID: 12, Email: "seguace@example.it", NotifyEmail: true},
		Performance: &model.Performance{
			ID:      100,
			EventID: 500,
			Event:   &model.Event{ID: 500, Name: "Concerto Uno"},
		},
	}
	subs := &memSubscriptionStore{byEvent: map[uint64][]*model.Subscription{
		500: {perfSub},
	}}
	prober := &fakeProber{obs: map[string]*model.PageObservation{
		"https://t/resale": {OK: true, Availability: model.AvailabilityAvailable, IsResale: true, FinalURL: "https://t/resale", Reason: "positive_keyword"},
	}}
	fx := newResaleFixture(maps, subs, prober, &fakePriceFetcher{}, false)

	stats, err := fx.svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Notified != 1 {
		t.Fatalf("场次级订阅者也应收到通知: %+v", stats)
	}
	if len(fx.store.records) != 1 {
		t.Fatalf("应有一条通知记录: %+v", fx.store.records)
	}
	if !strings.Contains(fx.store.records[0].Message, "Concerto Uno") {
		t.Errorf("通知内容应包含场次归属的活动名: %s", fx.store.records[0].Message)
	}
}

func TestResaleScanSkipsOptedOutSubscriber(t *testing.T) {
	maps := &fakeMappingStore{recent: []*model.PlatformMapping{
		resaleMapping(1, 500, "https://t/resale", nil),
	}}
	optedOut := freeSub(7, 10, 500)
	optedOut.Account.NotifyEmail = false
	subs := &memSubscriptionStore{byEvent: map[uint64][]*model.Subscription{
		500: {optedOut, freeSub(8, 11, 500)},
	}}
	prober := &fakeProber{obs: map[string]*model.PageObservation{
		"https://t/resale": {OK: true, Availability: model.AvailabilityAvailable, IsResale: true, FinalURL: "https://t/resale", Reason: "positive_keyword"},
	}}
	fx := newResaleFixture(maps, subs, prober, &fakePriceFetcher{}, false)

	stats, err := fx.svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.OptedOut != 1 || stats.Notified != 1 {
		t.Fatalf("退订用户应跳过、其余正常通知: %+v", stats)
	}
	if len(fx.store.records) != 1 {
		t.Errorf("只应有一条通知记录: %d", len(fx.store.records))
	}
}

func TestResaleScanUnchangedOnlyTouches(t *testing.T) {
	checksum := ProbeChecksum(model.AvailabilityAvailable, true, "https://t/resale")
	maps := &fakeMappingStore{recent: []*model.PlatformMapping{
		resaleMapping(1, 500, "https://t/resale", map[string]interface{}{"resale_checksum": checksum}),
	}}
	prober := &fakeProber{obs: map[string]*model.PageObservation{
		"https://t/resale": {OK: true, Availability: model.AvailabilityAvailable, IsResale: true, FinalURL: "https://t/resale"},
	}}
	fx := newResaleFixture(maps, &memSubscriptionStore{}, prober, &fakePriceFetcher{}, false)

	stats, err := fx.svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Unchanged != 1 || stats.Changed != 0 {
		t.Fatalf("结论未变应只计未变: %+v", stats)
	}
	if len(fx.maps.touched) != 1 || fx.maps.touched[0] != 1 {
		t.Errorf("未变化应只更新扫描时间: %v", fx.maps.touched)
	}
	if fx.maps.snapshot != nil {
		t.Error("未变化不应重写快照")
	}
}

func TestResaleScanNoResaleNoNotify(t *testing.T) {
	maps := &fakeMappingStore{recent: []*model.PlatformMapping{
		resaleMapping(1, 500, "https://t/plain", nil),
	}}
	subs := &memSubscriptionStore{byEvent: map[uint64][]*model.Subscription{
		500: {freeSub(7, 10, 500)},
	}}
	prober := &fakeProber{obs: map[string]*model.PageObservation{
		"https://t/plain": {OK: true, Availability: model.AvailabilityAvailable, IsResale: false, FinalURL: "https://t/plain"},
	}}
	fx := newResaleFixture(maps, subs, prober, &fakePriceFetcher{}, false)

	stats, err := fx.svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Changed != 1 {
		t.Errorf("结论变化应落快照: %+v", stats)
	}
	if stats.Notified != 0 || len(fx.store.records) != 0 {
		t.Error("非转售不应通知")
	}
}

func TestResaleScanMergesPriceSignal(t *testing.T) {
	maps := &fakeMappingStore{recent: []*model.PlatformMapping{
		resaleMapping(1, 500, "https://t/unknown", nil),
	}}
	prober := &fakeProber{obs: map[string]*model.PageObservation{
		"https://t/unknown": {OK: true, Availability: model.AvailabilityUnknown, IsResale: true, FinalURL: "https://t/unknown", Reason: "no_strong_signals"},
	}}
	prices := &fakePriceFetcher{obs: map[string]*model.PriceObservation{
		"ext-1": {OK: true, Availability: model.AvailabilityLimited},
	}}
	subs := &memSubscriptionStore{byEvent: map[uint64][]*model.Subscription{
		500: {freeSub(7, 10, 500)},
	}}
	fx := newResaleFixture(maps, subs, prober, prices, true)

	stats, err := fx.svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if prices.calls != 1 {
		t.Fatalf("启用价格探测时应调用价格接口: %d", prices.calls)
	}
	// 页面unknown由价格limited补齐，转售+limited仍触发通知
	if stats.Resale != 1 || stats.Notified != 1 {
		t.Fatalf("价格信号应参与合并判定: %+v", stats)
	}
}
