package yieldsdk

import (
	"time"

	filestore "github.com/bitcoinyieldbridge/go-sdk/store/file"
	"github.com/bitcoinyieldbridge/go-sdk/push"
	"github.com/bitcoinyieldbridge/go-sdk/types"
)

type ClientOption func(*yieldClient)

// WithPushService enables real-time balance, transaction and bridge updates.
// Without it every consumer falls back to polling.
func WithPushService(svc push.Service) ClientOption {
	return func(c *yieldClient) {
		c.push = svc
	}
}

// WithSessionStore persists the active session to disk so a restarted client
// can restore it.
func WithSessionStore(sessions filestore.SessionStore) ClientOption {
	return func(c *yieldClient) {
		c.sessions = sessions
	}
}

func WithStrategies(strategies []types.Strategy) ClientOption {
	return func(c *yieldClient) {
		if len(strategies) == 0 {
			return
		}
		byID := make(map[int]types.Strategy, len(strategies))
		for _, strategy := range strategies {
			byID[strategy.ID] = strategy
		}
		c.strategies = byID
	}
}

func WithPollInterval(interval time.Duration) ClientOption {
	return func(c *yieldClient) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithBridgeTimeout caps how long a bridge transfer may stay in flight.
func WithBridgeTimeout(timeout time.Duration) ClientOption {
	return func(c *yieldClient) {
		if timeout > 0 {
			c.bridgeTimeout = timeout
		}
	}
}

// WithSettleDelay sets the pause between a settled operation and the
// portfolio refresh picking up its effects.
func WithSettleDelay(delay time.Duration) ClientOption {
	return func(c *yieldClient) {
		if delay > 0 {
			c.settleDelay = delay
		}
	}
}
