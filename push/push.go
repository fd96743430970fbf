package push

import (
	"context"
)

const (
	TypeBalanceUpdate     = "balance_update"
	TypeTransactionUpdate = "transaction_update"
	TypeYieldUpdate       = "yield_update"
	TypeBridgeUpdate      = "bridge_update"
)

// Envelope is the wire shape of every push message: a type tag plus an
// untyped payload decoded into one of the update structs below.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

type BalanceUpdate struct {
	Address    string             `mapstructure:"address"`
	Balances   map[string]float64 `mapstructure:"balances"`
	TotalValue float64            `mapstructure:"total_value"`
	Timestamp  int64              `mapstructure:"-"`
}

type TransactionUpdate struct {
	ID          string `mapstructure:"id"`
	Status      string `mapstructure:"status"`
	BlockNumber int64  `mapstructure:"block_number"`
	GasUsed     uint64 `mapstructure:"gas_used"`
}

type YieldUpdate struct {
	StrategyID int     `mapstructure:"strategy_id"`
	NewYield   float64 `mapstructure:"new_yield"`
	APY        float64 `mapstructure:"apy"`
	TotalValue float64 `mapstructure:"total_value"`
}

type BridgeUpdate struct {
	ID           string  `mapstructure:"id"`
	Status       string  `mapstructure:"status"`
	Stage        string  `mapstructure:"stage"`
	Percentage   int     `mapstructure:"percentage"`
	Message      string  `mapstructure:"message"`
	ActualOutput float64 `mapstructure:"actual_output"`
}

// Service is the real-time channel boundary. A nil/absent Service is a valid
// configuration: consumers fall back to polling.
type Service interface {
	Connect(ctx context.Context, accountAddress string) error
	SubscribeBalance() (<-chan BalanceUpdate, func())
	SubscribeTransactions() (<-chan TransactionUpdate, func())
	SubscribeYield() (<-chan YieldUpdate, func())
	SubscribeBridge(id string) (<-chan BridgeUpdate, func())
	Close()
}
