package pricing

import "math"

// Tier holds the price per 1000 input and output tokens for a model.
type Tier struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// DefaultTier is applied when a model is not present in the price table.
// Model identifiers are free text on usage records, so an unknown model is
// expected, not an error.
var DefaultTier = Tier{Input: 0.01, Output: 0.03}

// tiers maps model identifier to its price tier (USD per 1K tokens).
var tiers = map[string]Tier{
	"gpt-4o":                 {Input: 0.005, Output: 0.015},
	"gpt-4o-mini":            {Input: 0.00015, Output: 0.0006},
	"gpt-4-turbo":            {Input: 0.01, Output: 0.03},
	"gpt-4":                  {Input: 0.03, Output: 0.06},
	"gpt-4-32k":              {Input: 0.06, Output: 0.12},
	"gpt-3.5-turbo":          {Input: 0.0005, Output: 0.0015},
	"gpt-3.5-turbo-16k":      {Input: 0.003, Output: 0.004},
	"gpt-3.5-turbo-instruct": {Input: 0.0015, Output: 0.002},
	"o1":                     {Input: 0.015, Output: 0.06},
	"o1-mini":                {Input: 0.0011, Output: 0.0044},
	"o3-mini":                {Input: 0.0011, Output: 0.0044},
	"text-embedding-3-small": {Input: 0.00002, Output: 0},
	"text-embedding-3-large": {Input: 0.00013, Output: 0},
	"text-embedding-ada-002": {Input: 0.0001, Output: 0},
	"davinci-002":            {Input: 0.002, Output: 0.002},
	"babbage-002":            {Input: 0.0004, Output: 0.0004},
}

// TierFor returns the price tier for the given model, falling back to
// DefaultTier when the model is unknown.
func TierFor(model string) Tier {
	if t, ok := tiers[model]; ok {
		return t
	}
	return DefaultTier
}

// Cost computes the estimated cost in USD for a token count pair, rounded to
// six decimal places. Callers must not pass negative token counts.
func Cost(model string, promptTokens, completionTokens int64) float64 {
	t := TierFor(model)
	cost := float64(promptTokens)/1000*t.Input + float64(completionTokens)/1000*t.Output
	return math.Round(cost*1e6) / 1e6
}
