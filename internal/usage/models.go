package usage

import "time"

// Record represents one logged outcome of a single upstream API call. Records
// are append-only: once written they are never updated or deleted, and every
// summary is re-derived from the matching rows.
type Record struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	AssistantID      string         `json:"assistant_id,omitempty"`
	ThreadID         string         `json:"thread_id,omitempty"`
	Model            string         `json:"model"`
	PromptTokens     int64          `json:"prompt_tokens"`
	CompletionTokens int64          `json:"completion_tokens"`
	TotalTokens      int64          `json:"total_tokens"`
	EstimatedCost    float64        `json:"estimated_cost"`
	RequestType      string         `json:"request_type"`
	Success          bool           `json:"success"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// RecordInput holds the caller-supplied fields for one usage record. The
// recorder derives total tokens, cost, id and timestamp.
type RecordInput struct {
	UserID           string
	RequestType      string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	AssistantID      string
	ThreadID         string
	Success          bool
	ErrorMessage     string
	Metadata         map[string]any
}

// Query defines the filters and pagination for listing a user's records.
// A zero From or To leaves that side of the window open. A Limit of zero
// returns all matching rows.
type Query struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// GroupBy selects the calendar bucket used to partition records in a summary.
type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

// ParseGroupBy normalizes a caller-supplied group-by value. Anything other
// than the three valid values falls back to day grouping.
func ParseGroupBy(s string) GroupBy {
	switch GroupBy(s) {
	case GroupByDay, GroupByWeek, GroupByMonth:
		return GroupBy(s)
	default:
		return GroupByDay
	}
}

// ModelUsage holds the token and cost contribution of one model within a period.
type ModelUsage struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// PeriodSummary aggregates the records of one calendar period.
type PeriodSummary struct {
	Period   string                `json:"period"`
	Requests int64                 `json:"requests"`
	Tokens   int64                 `json:"tokens"`
	Cost     float64               `json:"cost"`
	Models   map[string]ModelUsage `json:"models"`
}

// Summary is the periodized aggregate of a user's records over a date range.
// PeriodSummaries is sparse: periods with no matching records are omitted.
type Summary struct {
	TotalRequests   int64           `json:"totalRequests"`
	TotalTokens     int64           `json:"totalTokens"`
	TotalCost       float64         `json:"totalCost"`
	PeriodSummaries []PeriodSummary `json:"periodSummaries"`
}
