package wspush

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/internal/utils"
	"github.com/bitcoinyieldbridge/go-sdk/push"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
)

const (
	handshakeTimeout     = 10 * time.Second
	heartbeatInterval    = 30 * time.Second
	writeTimeout         = 5 * time.Second
	maxReconnectAttempts = 5
	reconnectBaseDelay   = time.Second
)

type service struct {
	baseURL string

	mu        *sync.Mutex
	conn      *websocket.Conn
	account   string
	bridgeIds map[string]struct{}
	connected bool

	balanceListeners *utils.Broadcaster[push.BalanceUpdate]
	txListeners      *utils.Broadcaster[push.TransactionUpdate]
	yieldListeners   *utils.Broadcaster[push.YieldUpdate]
	bridgeListeners  *utils.Broadcaster[push.BridgeUpdate]

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService returns a push.Service backed by a websocket connection to the
// given endpoint. Connect must be called before any update is delivered.
func NewService(baseURL string) (push.Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("missing push endpoint url")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &service{
		baseURL:          baseURL,
		mu:               &sync.Mutex{},
		bridgeIds:        make(map[string]struct{}),
		balanceListeners: utils.NewBroadcaster[push.BalanceUpdate](),
		txListeners:      utils.NewBroadcaster[push.TransactionUpdate](),
		yieldListeners:   utils.NewBroadcaster[push.YieldUpdate](),
		bridgeListeners:  utils.NewBroadcaster[push.BridgeUpdate](),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

func (s *service) Connect(ctx context.Context, accountAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	s.account = accountAddress
	if err := s.dialAndSubscribe(ctx); err != nil {
		return err
	}
	s.connected = true

	go s.readLoop()
	go s.heartbeatLoop()
	return nil
}

// dialAndSubscribe must be called with the lock held.
func (s *service) dialAndSubscribe(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	url := fmt.Sprintf("%s/ws/%s", s.baseURL, s.account)
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect push channel: %w", err)
	}
	s.conn = conn

	channels := []string{
		"balance:" + s.account,
		"transactions:" + s.account,
		"yield:" + s.account,
	}
	for id := range s.bridgeIds {
		channels = append(channels, "bridge:"+id)
	}
	return s.writeJSON(map[string]any{
		"type":     "subscribe",
		"channels": channels,
	})
}

func (s *service) SubscribeBalance() (<-chan push.BalanceUpdate, func()) {
	return s.balanceListeners.Subscribe(10)
}

func (s *service) SubscribeTransactions() (<-chan push.TransactionUpdate, func()) {
	return s.txListeners.Subscribe(10)
}

func (s *service) SubscribeYield() (<-chan push.YieldUpdate, func()) {
	return s.yieldListeners.Subscribe(10)
}

func (s *service) SubscribeBridge(id string) (<-chan push.BridgeUpdate, func()) {
	s.mu.Lock()
	if _, ok := s.bridgeIds[id]; !ok {
		s.bridgeIds[id] = struct{}{}
		if s.connected {
			if err := s.writeJSON(map[string]any{
				"type":     "subscribe",
				"channels": []string{"bridge:" + id},
			}); err != nil {
				log.Debugf("push: failed to subscribe bridge %s: %s", id, err)
			}
		}
	}
	s.mu.Unlock()

	ch, cancel := s.bridgeListeners.Subscribe(10)
	return ch, func() {
		cancel()
		s.mu.Lock()
		delete(s.bridgeIds, id)
		s.mu.Unlock()
	}
}

func (s *service) Close() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		// nolint
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
	s.mu.Unlock()

	s.balanceListeners.Close()
	s.txListeners.Close()
	s.yieldListeners.Close()
	s.bridgeListeners.Close()
}

func (s *service) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if !s.reconnect() {
				return
			}
			continue
		}

		s.dispatch(payload)
	}
}

func (s *service) dispatch(payload []byte) {
	var envelope push.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Debugf("push: dropping malformed message: %s", err)
		return
	}

	switch envelope.Type {
	case push.TypeBalanceUpdate:
		var update push.BalanceUpdate
		if err := mapstructure.Decode(envelope.Data, &update); err != nil {
			log.Debugf("push: bad balance update: %s", err)
			return
		}
		update.Timestamp = envelope.Timestamp
		s.balanceListeners.Publish(update)
	case push.TypeTransactionUpdate:
		var update push.TransactionUpdate
		if err := mapstructure.Decode(envelope.Data, &update); err != nil {
			log.Debugf("push: bad transaction update: %s", err)
			return
		}
		s.txListeners.Publish(update)
	case push.TypeYieldUpdate:
		var update push.YieldUpdate
		if err := mapstructure.Decode(envelope.Data, &update); err != nil {
			log.Debugf("push: bad yield update: %s", err)
			return
		}
		s.yieldListeners.Publish(update)
	case push.TypeBridgeUpdate:
		var update push.BridgeUpdate
		if err := mapstructure.Decode(envelope.Data, &update); err != nil {
			log.Debugf("push: bad bridge update: %s", err)
			return
		}
		s.bridgeListeners.Publish(update)
	case "pong":
	default:
		log.Debugf("push: unknown message type %q", envelope.Type)
	}
}

func (s *service) reconnect() bool {
	delay := reconnectBaseDelay
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(delay):
		}

		s.mu.Lock()
		if s.conn != nil {
			// nolint
			s.conn.Close()
		}
		err := s.dialAndSubscribe(s.ctx)
		s.mu.Unlock()
		if err == nil {
			log.Debugf("push: reconnected after %d attempt(s)", attempt)
			return true
		}

		log.Debugf("push: reconnect attempt %d failed: %s", attempt, err)
		delay *= 2
	}

	log.Warn("push: max reconnect attempts reached, channel closed")
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return false
}

func (s *service) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.connected {
				if err := s.writeJSON(map[string]any{
					"type":      "ping",
					"timestamp": time.Now().UnixMilli(),
				}); err != nil {
					log.Debugf("push: heartbeat failed: %s", err)
				}
			}
			s.mu.Unlock()
		}
	}
}

// writeJSON must be called with the lock held.
func (s *service) writeJSON(v any) error {
	if s.conn == nil {
		return fmt.Errorf("push channel not connected")
	}
	// nolint
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}
