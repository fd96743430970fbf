package paymaster

import (
	"time"
)

type ExecutorOption func(*Executor)

func WithCallGasLimit(limit uint64) ExecutorOption {
	return func(e *Executor) {
		if limit > 0 {
			e.callGasLimit = limit
		}
	}
}

func WithBatchGasLimit(limit uint64) ExecutorOption {
	return func(e *Executor) {
		if limit > 0 {
			e.batchGasLimit = limit
		}
	}
}

func WithMaxBatchSize(size int) ExecutorOption {
	return func(e *Executor) {
		if size > 0 {
			e.maxBatchSize = size
		}
	}
}

func WithSubmitTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.submitTimeout = timeout
		}
	}
}
