package matchmaking

import "testing"

func TestEstimateWait(t *testing.T) {
	cfg := DefaultEstimatorConfig()

	tests := []struct {
		name          string
		oppositeDepth int64
		sameDepth     int64
		want          int
	}{
		{"opposite waiter available", 1, 5, 0},
		{"many opposite waiters", 12, 0, 0},
		{"empty queues floor", 0, 0, 30},
		{"single same-cohort waiter floor", 0, 1, 30},
		{"backlog scales", 0, 4, 120},
		{"backlog capped", 0, 50, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimateWait(tt.oppositeDepth, tt.sameDepth, cfg)
			if got != tt.want {
				t.Errorf("estimateWait(%d, %d) = %d, want %d",
					tt.oppositeDepth, tt.sameDepth, got, tt.want)
			}
		})
	}
}

func TestEstimateWait_RespectsCustomBounds(t *testing.T) {
	cfg := EstimatorConfig{AverageMatchSeconds: 10, MinWaitSeconds: 5, MaxWaitSeconds: 60}

	if got := estimateWait(0, 0, cfg); got != 5 {
		t.Errorf("expected floor 5, got %d", got)
	}
	if got := estimateWait(0, 3, cfg); got != 30 {
		t.Errorf("expected 30, got %d", got)
	}
	if got := estimateWait(0, 100, cfg); got != 60 {
		t.Errorf("expected cap 60, got %d", got)
	}
}
