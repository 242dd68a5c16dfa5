package model

import "encoding/json"

// EBEventsPage Eventbrite v3 organizations/{id}/events 响应
type EBEventsPage struct {
	Events     []json.RawMessage `json:"events"`
	Pagination struct {
		Continuation string `json:"continuation"`
		HasMoreItems bool   `json:"has_more_items"`
	} `json:"pagination"`
}

// EBEvent Eventbrite 单个活动
type EBEvent struct {
	ID   string `json:"id"`
	Name struct {
		Text string `json:"text"`
	} `json:"name"`
	Start struct {
		UTC string `json:"utc"`
	} `json:"start"`
	End struct {
		UTC string `json:"utc"`
	} `json:"end"`
	URL      string `json:"url"`
	VenueID  string `json:"venue_id"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// EBVenue Eventbrite 场馆
type EBVenue struct {
	Name    string `json:"name"`
	Address struct {
		Address1 string `json:"address_1"`
		City     string `json:"city"`
		Country  string `json:"country"`
	} `json:"address"`
}
