package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

type Balance struct {
	BTC decimal.Decimal
	USD decimal.Decimal
}

type WalletInfo struct {
	Address   string
	PublicKey string
	Network   string
	Balance   Balance
}

// WalletService is the Bitcoin wallet provider boundary. Signing and key
// management are owned by the provider; the SDK only consumes addresses,
// balances and signatures.
type WalletService interface {
	Connect(ctx context.Context) (*WalletInfo, error)
	Disconnect(ctx context.Context) error
	GetBalance(ctx context.Context, address string) (Balance, error)
	SignTransaction(ctx context.Context, tx string) (signedTx string, err error)
	SignMessage(ctx context.Context, message []byte) (signature string, err error)
}
