package restbridge

import (
	"time"
)

type Option func(*restClient)

func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *restClient) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

func WithRetryCount(count int) Option {
	return func(c *restClient) {
		if count > 0 {
			c.http.SetRetryCount(count)
		}
	}
}
