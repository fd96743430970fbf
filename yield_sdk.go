package yieldsdk

import (
	"context"

	"github.com/bitcoinyieldbridge/go-sdk/paymaster"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/shopspring/decimal"
)

var Version string

// DepositResult is returned as soon as the bridge leg of a deposit is
// initiated. The yield leg runs asynchronously once the bridge completes;
// its outcome is reported through the transaction feed.
type DepositResult struct {
	BridgeTx *types.BridgeTransaction
	Quote    *types.Quote
}

// WithdrawResult reports both legs of a withdrawal. BridgeTx is nil when the
// bridge leg could not be initiated; the funds are then already withdrawn
// from the strategy and sit on the destination chain.
type WithdrawResult struct {
	ContractResult *types.ContractCallResult
	BridgeTx       *types.BridgeTransaction
}

type YieldBridgeClient interface {
	GetVersion() string
	Connect(ctx context.Context) (*types.Session, error)
	Disconnect(ctx context.Context) error
	IsConnected() bool
	GetSession() *types.Session
	GetQuote(
		ctx context.Context,
		fromToken, toToken types.Token, amount decimal.Decimal, slippageBps int,
	) (*types.Quote, error)
	EstimateOptimalSlippage(
		ctx context.Context, fromToken, toToken types.Token, amount decimal.Decimal,
	) (int, error)
	Deposit(
		ctx context.Context, amount decimal.Decimal, strategyID int,
	) (*DepositResult, error)
	RetryYieldDeposit(ctx context.Context, bridgeID string) (*types.ContractCallResult, error)
	Withdraw(
		ctx context.Context, amount decimal.Decimal, strategyID int, btcAddress string,
	) (*WithdrawResult, error)
	GetBridgeStatus(ctx context.Context, id string) (*types.BridgeTransaction, error)
	RetryBridge(ctx context.Context, id string) (*types.BridgeTransaction, error)
	CancelBridge(ctx context.Context, id string) (bool, error)
	GetPortfolio(ctx context.Context) (*types.Portfolio, error)
	GetStrategies() []types.Strategy
	ExecuteBatch(ctx context.Context, calls []paymaster.Call) ([]types.ContractCallResult, error)
	GetTransactionHistory(ctx context.Context, limit int) ([]types.Transaction, error)
	GetTransactionEventChannel() <-chan types.TransactionEvent
	GetBridgeEventChannel() <-chan types.BridgeEvent
	Stop()
}
