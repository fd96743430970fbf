package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/bitcoinyieldbridge/go-sdk/paymaster"
	"github.com/shopspring/decimal"
)

// All amounts cross the contract boundary as fixed-point integers with this
// many decimals.
const FixedPointDecimals = 18

const (
	EntrypointDeposit  = "deposit_and_yield"
	EntrypointWithdraw = "withdraw_yield"
)

// RawPosition is a user position as returned by the contract, before
// fixed-point conversion.
type RawPosition struct {
	StrategyID       uint8
	DepositAmount    *big.Int
	Shares           *big.Int
	AccumulatedYield *big.Int
	CurrentValue     *big.Int
	LastInteraction  int64
}

// QueryService is the read surface of the yield contract.
type QueryService interface {
	GetUserBalance(ctx context.Context, address string) (*big.Int, error)
	GetUserPositions(ctx context.Context, address string) ([]RawPosition, error)
	GetTotalYield(ctx context.Context, address string) (*big.Int, error)
}

func FromFixedPoint(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -FixedPointDecimals)
}

func ToFixedPoint(d decimal.Decimal) *big.Int {
	return d.Shift(FixedPointDecimals).Truncate(0).BigInt()
}

// DepositCall builds the sponsored call invoking the contract's deposit
// entrypoint.
func DepositCall(contractAddress string, amount decimal.Decimal, strategyID int) paymaster.Call {
	return paymaster.Call{
		ContractAddress: contractAddress,
		Entrypoint:      EntrypointDeposit,
		Calldata: []string{
			encodeAmount(amount),
			fmt.Sprintf("%d", strategyID),
		},
	}
}

// WithdrawCall builds the sponsored call invoking the contract's withdraw
// entrypoint. destinationRef is the Bitcoin address the bridged funds are
// routed to.
func WithdrawCall(contractAddress string, amount decimal.Decimal, destinationRef string) paymaster.Call {
	return paymaster.Call{
		ContractAddress: contractAddress,
		Entrypoint:      EntrypointWithdraw,
		Calldata: []string{
			encodeAmount(amount),
			destinationRef,
		},
	}
}

func encodeAmount(amount decimal.Decimal) string {
	return fmt.Sprintf("0x%x", ToFixedPoint(amount))
}
