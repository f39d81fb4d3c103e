package entities

import "time"

// UsageEvent is written once per resolved request.
type UsageEvent struct {
	At      time.Time
	Channel string
	Source  Source
	Latency time.Duration
}

// DailyUsage is one aggregated row of the answer_usage table.
type DailyUsage struct {
	Date         time.Time `json:"date"`
	Channel      string    `json:"channel"`
	Source       Source    `json:"source"`
	Count        int64     `json:"count"`
	AvgLatencyMs int64     `json:"avg_latency_ms"`
}
