package service

import (
	"context"
	"testing"

	"TicketWatch/internal/model"
)

func freeSub(id, accountID, eventID uint64) *model.Subscription {
	eid := eventID
	return &model.Subscription{
		ID:        id,
		AccountID: accountID,
		EventID:   &eid,
		Price:     0,
		Account:   &model.Account{ID: accountID, Email: "gratis@example.it", NotifyEmail: true},
		Event:     &model.Event{ID: eventID, Name: "Concerto Gratis"},
	}
}

func TestRunFreeNotifiesOnInternalSupply(t *testing.T) {
	subs := &memSubscriptionStore{free: []*model.Subscription{freeSub(1, 10, 500)}}
	inv := &fakeInventoryStore{listings: map[uint64]int64{500: 3}}
	fx := newScanFixture(subs, &fakeMappingStore{}, inv, &fakeProber{}, scanTestConfig())

	results, err := fx.svc.RunFree(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeNotified {
		t.Fatalf("有挂牌应通知: %+v", results)
	}
	// 免费档不触碰外部平台
	if fx.prober.calls != 0 {
		t.Error("免费扫描不应发起页面探测")
	}

	// 同一时间桶内重跑：去重
	results, err = fx.svc.RunFree(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeDeduped {
		t.Fatalf("同桶重跑应去重: %+v", results)
	}
}

func TestRunFreeSkipsWithoutSupply(t *testing.T) {
	subs := &memSubscriptionStore{free: []*model.Subscription{freeSub(1, 10, 500)}}
	fx := newScanFixture(subs, &fakeMappingStore{}, &fakeInventoryStore{}, &fakeProber{}, scanTestConfig())

	results, err := fx.svc.RunFree(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeSkipNoAvail {
		t.Fatalf("无供给应跳过: %+v", results)
	}
	if len(fx.store.records) != 0 {
		t.Error("跳过时不应落记录")
	}
}

func TestRunFreeSkipsOptedOutAccount(t *testing.T) {
	sub := freeSub(1, 10, 500)
	sub.Account.NotifyEmail = false
	subs := &memSubscriptionStore{free: []*model.Subscription{sub}}
	inv := &fakeInventoryStore{listings: map[uint64]int64{500: 3}}
	fx := newScanFixture(subs, &fakeMappingStore{}, inv, &fakeProber{}, scanTestConfig())

	results, err := fx.svc.RunFree(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeSkipOptOut {
		t.Fatalf("退订用户应跳过: %+v", results)
	}
	if len(fx.store.records) != 0 {
		t.Error("退订用户不应落通知记录")
	}
}

func TestRunFreeResaleCountsAsSupply(t *testing.T) {
	subs := &memSubscriptionStore{free: []*model.Subscription{freeSub(1, 10, 500)}}
	inv := &fakeInventoryStore{resales: map[uint64]int64{500: 1}}
	fx := newScanFixture(subs, &fakeMappingStore{}, inv, &fakeProber{}, scanTestConfig())

	results, err := fx.svc.RunFree(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeNotified {
		t.Fatalf("转售供给也应触发通知: %+v", results)
	}
}
