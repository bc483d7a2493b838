package llmcall

import "sort"

// Stats summarizes recorded calls: counts, latency percentiles and token
// totals.
type Stats struct {
	Count        int `json:"count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`

	// Latency percentiles (milliseconds)
	LatencyP50 float64 `json:"latency_p50_ms"`
	LatencyP95 float64 `json:"latency_p95_ms"`
	LatencyP99 float64 `json:"latency_p99_ms"`
	LatencyAvg float64 `json:"latency_avg_ms"`
	LatencyMin float64 `json:"latency_min_ms"`
	LatencyMax float64 `json:"latency_max_ms"`

	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	AvgInputTokens    float64 `json:"avg_input_tokens"`
	AvgOutputTokens   float64 `json:"avg_output_tokens"`
}

// Stats computes statistics over the calls matching filter. Limit and
// Offset are ignored.
func (r *Recorder) Stats(filter QueryFilter) Stats {
	filter.Limit, filter.Offset = 0, 0
	return computeStats(r.List(filter))
}

// StatsByOperation groups Stats by call operation.
func (r *Recorder) StatsByOperation() map[string]Stats {
	groups := make(map[string][]Call)
	for _, c := range r.List(QueryFilter{}) {
		groups[c.Operation] = append(groups[c.Operation], c)
	}
	out := make(map[string]Stats, len(groups))
	for op, calls := range groups {
		out[op] = computeStats(calls)
	}
	return out
}

func computeStats(calls []Call) Stats {
	stats := Stats{Count: len(calls)}
	if len(calls) == 0 {
		return stats
	}

	latencies := make([]float64, 0, len(calls))
	for _, c := range calls {
		if c.Success {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
		}
		stats.TotalInputTokens += c.InputTokens
		stats.TotalOutputTokens += c.OutputTokens
		latencies = append(latencies, float64(c.LatencyMs))
	}

	count := float64(stats.Count)
	stats.AvgInputTokens = float64(stats.TotalInputTokens) / count
	stats.AvgOutputTokens = float64(stats.TotalOutputTokens) / count

	sort.Float64s(latencies)
	stats.LatencyMin = latencies[0]
	stats.LatencyMax = latencies[len(latencies)-1]
	var sum float64
	for _, l := range latencies {
		sum += l
	}
	stats.LatencyAvg = sum / float64(len(latencies))
	stats.LatencyP50 = percentile(latencies, 50)
	stats.LatencyP95 = percentile(latencies, 95)
	stats.LatencyP99 = percentile(latencies, 99)
	return stats
}

// percentile calculates the p-th percentile from a sorted slice of values,
// interpolating linearly between neighbours.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := (p / 100.0) * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
