package pricing

import (
	"math"
	"testing"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name             string
		model            string
		promptTokens     int64
		completionTokens int64
		want             float64
	}{
		{
			name:             "gpt-4o standard call",
			model:            "gpt-4o",
			promptTokens:     1000,
			completionTokens: 500,
			want:             0.0125, // 1*0.005 + 0.5*0.015
		},
		{
			name:             "unknown model uses default tier",
			model:            "foo-bar",
			promptTokens:     1000,
			completionTokens: 1000,
			want:             0.04, // 1*0.01 + 1*0.03
		},
		{
			name:             "zero tokens cost nothing",
			model:            "gpt-4o",
			promptTokens:     0,
			completionTokens: 0,
			want:             0,
		},
		{
			name:             "embedding model has no output price",
			model:            "text-embedding-3-small",
			promptTokens:     10000,
			completionTokens: 0,
			want:             0.0002,
		},
		{
			name:             "small counts round to six decimal places",
			model:            "gpt-4o",
			promptTokens:     1,
			completionTokens: 1,
			want:             0.00002, // 0.000005 + 0.000015
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cost(tt.model, tt.promptTokens, tt.completionTokens)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cost(%q, %d, %d) = %v, want %v",
					tt.model, tt.promptTokens, tt.completionTokens, got, tt.want)
			}
		})
	}
}

func TestCost_Deterministic(t *testing.T) {
	first := Cost("gpt-4o", 1234, 567)
	for i := 0; i < 10; i++ {
		if got := Cost("gpt-4o", 1234, 567); got != first {
			t.Fatalf("Cost not deterministic: got %v, want %v", got, first)
		}
	}
}

func TestCost_Rounding(t *testing.T) {
	// 7 prompt tokens at $0.005/1K = 0.000035 exactly; verify no floating
	// point residue survives the rounding step.
	got := Cost("gpt-4o", 7, 0)
	if got != 0.000035 {
		t.Errorf("expected 0.000035, got %v", got)
	}

	// A value needing truncation: 1 token of gpt-4o-mini input is
	// 0.00000015, which rounds to 0 at six decimal places.
	got = Cost("gpt-4o-mini", 1, 0)
	if got != 0 {
		t.Errorf("expected 0 after rounding, got %v", got)
	}
}

func TestTierFor(t *testing.T) {
	if got := TierFor("gpt-4o"); got.Input != 0.005 || got.Output != 0.015 {
		t.Errorf("unexpected tier for gpt-4o: %+v", got)
	}
	if got := TierFor("no-such-model"); got != DefaultTier {
		t.Errorf("expected default tier for unknown model, got %+v", got)
	}
}
