package service

import "TicketWatch/internal/model"

// 合并判定的来源标识
const (
	SourcePage  = "page"
	SourcePrice = "price"
	SourceMixed = "mixed"
)

// MergeSignals 页面启发式与价格API观测的合并，优先级固定：
//  1. 页面观测成功且给出明确 available/unavailable -> 用页面结论
//  2. 否则价格观测成功且非unknown -> 用价格结论
//  3. 否则页面观测成功（即使unknown）-> 用页面结论
//  4. 否则 unknown，source=mixed
//
// 转售标记独立于优先级链，始终取页面侧结果。
// 本函数从不失败：不可达/失败的输入降级为unknown。
func MergeSignals(page *model.PageObservation, prices *model.PriceObservation) *model.CombinedObservation {
	if page == nil {
		page = &model.PageObservation{Availability: model.AvailabilityUnknown, Reason: "page probe missing"}
	}
	if prices == nil {
		prices = &model.PriceObservation{Availability: model.AvailabilityUnknown, Reason: "price probe missing"}
	}

	out := &model.CombinedObservation{
		OK:           page.OK || prices.OK,
		Availability: model.AvailabilityUnknown,
		IsResale:     page.IsResale,
		Source:       SourceMixed,
		Page:         page,
		Prices:       prices,
	}
	if prices.OK {
		out.MinPrice = prices.MinPrice
		out.MaxPrice = prices.MaxPrice
		out.Currency = prices.Currency
	}
	if page.Reason != "" {
		out.Reason = page.Reason
	} else {
		out.Reason = prices.Reason
	}

	switch {
	case page.OK && (page.Availability == model.AvailabilityAvailable || page.Availability == model.AvailabilityUnavailable):
		out.Availability = page.Availability
		out.Source = SourcePage
	case prices.OK && prices.Availability != model.AvailabilityUnknown:
		out.Availability = prices.Availability
		out.Source = SourcePrice
	case page.OK:
		out.Availability = page.Availability
		out.Source = SourcePage
	default:
		out.Availability = model.AvailabilityUnknown
		out.Source = SourceMixed
	}

	return out
}
