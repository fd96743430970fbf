package yieldsdk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotConnected              = errors.New("no active session, connect a wallet first")
	ErrWalletConnectionFailed    = errors.New("wallet connection failed")
	ErrAccountDerivationFailed   = errors.New("failed to derive account address")
	ErrUnknownStrategy           = errors.New("unknown strategy")
	ErrStrategyInactive          = errors.New("strategy is not active")
	ErrInvalidDestinationAddress = errors.New("invalid destination bitcoin address")
	ErrNoPersistedSession        = errors.New("no persisted session to restore")
)

// YieldDepositFailedPostBridgeError reports a deposit whose bridge leg
// completed but whose yield leg failed. The bridged funds sit on the account;
// RetryYieldDeposit resumes the deposit without bridging again.
type YieldDepositFailedPostBridgeError struct {
	BridgeID   string
	Amount     decimal.Decimal
	StrategyID int
	Err        error
}

func (e YieldDepositFailedPostBridgeError) Error() string {
	return fmt.Sprintf(
		"bridge %s completed but yield deposit of %s into strategy %d failed: %s",
		e.BridgeID, e.Amount, e.StrategyID, e.Err,
	)
}

func (e YieldDepositFailedPostBridgeError) Unwrap() error {
	return e.Err
}

// BridgeInitiationFailedPostWithdrawError reports a withdrawal whose funds
// left the strategy but whose bridge leg back to Bitcoin could not be
// started. The funds stay on the account until a bridge is initiated
// manually.
type BridgeInitiationFailedPostWithdrawError struct {
	WithdrawTxHash string
	Amount         decimal.Decimal
	Err            error
}

func (e BridgeInitiationFailedPostWithdrawError) Error() string {
	return fmt.Sprintf(
		"withdrawal %s of %s succeeded but bridging back failed: %s",
		e.WithdrawTxHash, e.Amount, e.Err,
	)
}

func (e BridgeInitiationFailedPostWithdrawError) Unwrap() error {
	return e.Err
}
