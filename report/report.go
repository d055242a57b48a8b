package report

import (
	"time"

	"github.com/europasms/sender/history"
	"github.com/europasms/sender/model"
)

//UnknownChannel groups records without a channel identifier, e.g. synthetic
//records written for recipients skipped by the circuit breaker.
const UnknownChannel = "(none)"

type ChannelStats struct {
	Total  int       `json:"total"`
	Ok     int       `json:"ok"`
	Failed int       `json:"failed"`
	LastAt time.Time `json:"last_at"`
}

//Aggregate builds per-channel counters from history records. Pure function
//of its input; records with an empty device identifier are grouped under
//UnknownChannel rather than dropped.
func Aggregate(records []history.Record) map[string]ChannelStats {
	stats := make(map[string]ChannelStats)
	for _, r := range records {
		key := r.Device
		if key == "" {
			key = UnknownChannel
		}
		s := stats[key]
		s.Total++
		if r.Status == model.OK {
			s.Ok++
		} else {
			s.Failed++
		}
		if r.Ts.After(s.LastAt) {
			s.LastAt = r.Ts
		}
		stats[key] = s
	}
	return stats
}
