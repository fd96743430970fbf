package types

import (
	"context"
)

type Store interface {
	BridgeStore() BridgeStore
	TransactionStore() TransactionStore
	Clean(ctx context.Context)
	Close()
}

type BridgeStore interface {
	AddBridgeTxs(ctx context.Context, txs []BridgeTransaction) (int, error)
	UpdateBridgeTxs(ctx context.Context, txs []BridgeTransaction) (int, error)
	GetBridgeTx(ctx context.Context, id string) (*BridgeTransaction, error)
	GetAllBridgeTxs(ctx context.Context) ([]BridgeTransaction, error)
	Clean(ctx context.Context) error
	GetEventChannel() <-chan BridgeEvent
	Close()
}

type TransactionStore interface {
	AddTransactions(ctx context.Context, txs []Transaction) (int, error)
	UpdateTransactions(ctx context.Context, txs []Transaction) (int, error)
	GetTransactions(ctx context.Context, ids []string) ([]Transaction, error)
	GetAllTransactions(ctx context.Context) ([]Transaction, error)
	Clean(ctx context.Context) error
	GetEventChannel() <-chan TransactionEvent
	Close()
}
