package usage

import "sort"

// Summarize partitions records into calendar periods and reduces each
// partition to request, token and cost sums with a per-model breakdown.
// Records are assumed to already match the caller's user and date-range
// filters. The reduction is pure: calling it twice over the same records
// yields identical output.
func Summarize(records []Record, groupBy GroupBy) Summary {
	summary := Summary{PeriodSummaries: []PeriodSummary{}}
	periods := make(map[string]*PeriodSummary)

	for _, rec := range records {
		summary.TotalRequests++
		summary.TotalTokens += rec.TotalTokens
		summary.TotalCost += rec.EstimatedCost

		key := periodKey(rec, groupBy)
		p, ok := periods[key]
		if !ok {
			p = &PeriodSummary{Period: key, Models: make(map[string]ModelUsage)}
			periods[key] = p
		}

		p.Requests++
		p.Tokens += rec.TotalTokens
		p.Cost += rec.EstimatedCost

		mu := p.Models[rec.Model]
		mu.Tokens += rec.TotalTokens
		mu.Cost += rec.EstimatedCost
		p.Models[rec.Model] = mu
	}

	for _, p := range periods {
		summary.PeriodSummaries = append(summary.PeriodSummaries, *p)
	}

	// Lexicographic order is chronological for the YYYY-MM-DD and YYYY-MM
	// key formats used here.
	sort.Slice(summary.PeriodSummaries, func(i, j int) bool {
		return summary.PeriodSummaries[i].Period < summary.PeriodSummaries[j].Period
	})

	return summary
}

// periodKey returns the canonical period label for a record. Weeks start on
// Sunday: the key is the date reached by subtracting the weekday number from
// the record's date. This boundary is part of the read contract and is
// deliberately not the ISO-8601 Monday week.
func periodKey(rec Record, groupBy GroupBy) string {
	ts := rec.CreatedAt
	switch groupBy {
	case GroupByWeek:
		return ts.AddDate(0, 0, -int(ts.Weekday())).Format("2006-01-02")
	case GroupByMonth:
		return ts.Format("2006-01")
	default:
		return ts.Format("2006-01-02")
	}
}
