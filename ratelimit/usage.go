package ratelimit

import (
	"encoding/json"
	"time"
)

const (
	headerAppUsage             = "x-app-usage"
	headerBusinessUseCaseUsage = "x-business-use-case-usage"
	headerPageUsage            = "x-page-usage"
)

type usageCounters struct {
	CallCount    int `json:"call_count"`
	TotalCPUTime int `json:"total_cputime"`
	TotalTime    int `json:"total_time"`
	// EstimatedTimeToRegainAccess is reported in minutes.
	EstimatedTimeToRegainAccess int `json:"estimated_time_to_regain_access"`
}

func (c usageCounters) maxPercent() int {
	return max(c.CallCount, c.TotalCPUTime, c.TotalTime)
}

// Usage summarizes the Graph usage headers of one response.
type Usage struct {
	MaxPercent   int
	RegainAccess time.Duration
}

// parseUsage reads the app, page and business use case headers. Malformed
// headers are ignored.
func parseUsage(headers map[string]string) Usage {
	var usage Usage
	observe := func(counters usageCounters) {
		usage.MaxPercent = max(usage.MaxPercent, counters.maxPercent())
		if minutes := counters.EstimatedTimeToRegainAccess; minutes > 0 {
			usage.RegainAccess = max(usage.RegainAccess, time.Duration(minutes)*time.Minute)
		}
	}

	for _, header := range []string{headerAppUsage, headerPageUsage} {
		raw := headerValue(headers, header)
		if raw == "" {
			continue
		}
		var counters usageCounters
		if err := json.Unmarshal([]byte(raw), &counters); err == nil {
			observe(counters)
		}
	}

	if raw := headerValue(headers, headerBusinessUseCaseUsage); raw != "" {
		var byBusiness map[string][]usageCounters
		if err := json.Unmarshal([]byte(raw), &byBusiness); err == nil {
			for _, entries := range byBusiness {
				for _, counters := range entries {
					observe(counters)
				}
			}
		}
	}
	return usage
}
