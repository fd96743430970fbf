package tracker

import (
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/push"
)

type Option func(*Tracker)

// WithPushService wires real-time updates in; the tracker still polls as a
// fallback while the push channel is quiet.
func WithPushService(svc push.Service) Option {
	return func(t *Tracker) {
		t.push = svc
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(t *Tracker) {
		if interval > 0 {
			t.pollInterval = interval
		}
	}
}

// WithBridgeTimeout caps how long a transfer may stay non-terminal before it
// is marked failed.
func WithBridgeTimeout(timeout time.Duration) Option {
	return func(t *Tracker) {
		if timeout > 0 {
			t.bridgeTimeout = timeout
		}
	}
}

func WithTerminalHandler(handler TerminalHandler) Option {
	return func(t *Tracker) {
		t.onTerminal = handler
	}
}
