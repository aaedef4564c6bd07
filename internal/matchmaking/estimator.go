package matchmaking

// EstimatorConfig holds the wait-time heuristic tuning. The numbers are
// product tuning rather than measured data, so they are configurable.
type EstimatorConfig struct {
	AverageMatchSeconds int // assumed time for one pairing to happen
	MinWaitSeconds      int // floor shown to a waiting user
	MaxWaitSeconds      int // cap shown to a waiting user
}

// DefaultEstimatorConfig returns the production tuning: 30s average
// pairing time, estimates clamped to [30s, 5m].
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		AverageMatchSeconds: 30,
		MinWaitSeconds:      30,
		MaxWaitSeconds:      300,
	}
}

// estimateWait computes the advisory wait time in seconds. Someone waiting
// in the opposite cohort means an immediate match is believed available;
// otherwise the estimate grows with the same-cohort backlog, clamped to
// the configured bounds. This is a heuristic, not a scheduling promise:
// depths can change between the estimate and the next match attempt.
func estimateWait(oppositeDepth, sameDepth int64, cfg EstimatorConfig) int {
	if oppositeDepth > 0 {
		return 0
	}

	est := int(sameDepth) * cfg.AverageMatchSeconds
	if est < cfg.MinWaitSeconds {
		est = cfg.MinWaitSeconds
	}
	if est > cfg.MaxWaitSeconds {
		est = cfg.MaxWaitSeconds
	}
	return est
}
