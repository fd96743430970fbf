package quote

import (
	"time"
)

type EstimatorOption func(*Estimator)

// WithRetryWindow bounds the total time spent retrying a failing quote fetch.
func WithRetryWindow(window time.Duration) EstimatorOption {
	return func(e *Estimator) {
		if window > 0 {
			e.retryWindow = window
		}
	}
}
