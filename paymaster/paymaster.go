package paymaster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/ccoveille/go-safecast"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrGasLimitExceeded  = errors.New("gas estimate exceeds sponsored limit")
	ErrBatchTooLarge     = errors.New("too many calls in batch")
	ErrEmptyBatch        = errors.New("no calls provided")
	ErrSubmissionTimeout = errors.New("sponsored submission timed out")
)

const (
	DefaultCallGasLimit  = 1_000_000
	DefaultBatchGasLimit = 1_500_000
	DefaultMaxBatchSize  = 10
	DefaultSubmitTimeout = 30 * time.Second

	// extra gas consumed by the multicall dispatch itself
	batchOverheadGas = 50_000
)

type Call struct {
	ContractAddress string
	Entrypoint      string
	Calldata        []string
}

type SponsorBalances struct {
	ETH  decimal.Decimal
	STRK decimal.Decimal
	USDC decimal.Decimal
}

// RelayService is the gasless relay boundary. Submit wraps one or more calls
// into a single sponsored transaction and returns its hash.
type RelayService interface {
	EstimateGas(ctx context.Context, call Call) (uint64, error)
	Submit(ctx context.Context, calls []Call) (txHash string, err error)
	GetSponsorBalances(ctx context.Context) (*SponsorBalances, error)
}

// DeriveAccount maps a source wallet identity to its chain account address.
// It is a pure derivation: the same identity always yields the same address,
// so reconnecting a wallet reuses its account across sessions.
func DeriveAccount(sourceIdentity string) string {
	sum := sha256.Sum256([]byte(sourceIdentity))
	return "0x" + hex.EncodeToString(sum[:])
}

// Executor submits contract calls through the relay with the user paying no
// gas. Calls exceeding the sponsored gas ceilings are rejected before
// submission.
type Executor struct {
	relay         RelayService
	callGasLimit  uint64
	batchGasLimit uint64
	maxBatchSize  int
	submitTimeout time.Duration
}

func NewExecutor(relay RelayService, opts ...ExecutorOption) (*Executor, error) {
	if relay == nil {
		return nil, fmt.Errorf("missing relay service")
	}
	executor := &Executor{
		relay:         relay,
		callGasLimit:  DefaultCallGasLimit,
		batchGasLimit: DefaultBatchGasLimit,
		maxBatchSize:  DefaultMaxBatchSize,
		submitTimeout: DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor, nil
}

func (e *Executor) ExecuteCall(ctx context.Context, call Call) (*types.ContractCallResult, error) {
	estimate, err := e.relay.EstimateGas(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("gas estimation failed: %w", err)
	}
	if estimate > e.callGasLimit {
		return nil, fmt.Errorf(
			"%w: estimate %d, limit %d", ErrGasLimitExceeded, estimate, e.callGasLimit,
		)
	}

	txHash, err := e.submit(ctx, []Call{call})
	if err != nil {
		return nil, err
	}

	return &types.ContractCallResult{
		Success:         true,
		TransactionHash: txHash,
		GasUsed:         0,
	}, nil
}

func (e *Executor) ExecuteBatch(ctx context.Context, calls []Call) ([]types.ContractCallResult, error) {
	if len(calls) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(calls) > e.maxBatchSize {
		return nil, fmt.Errorf(
			"%w: %d calls, max %d", ErrBatchTooLarge, len(calls), e.maxBatchSize,
		)
	}

	var totalGas uint64 = batchOverheadGas
	for _, call := range calls {
		estimate, err := e.relay.EstimateGas(ctx, call)
		if err != nil {
			return nil, fmt.Errorf("gas estimation failed: %w", err)
		}
		totalGas += estimate
	}
	if totalGas > e.batchGasLimit {
		return nil, fmt.Errorf(
			"%w: batch estimate %d, limit %d", ErrGasLimitExceeded, totalGas, e.batchGasLimit,
		)
	}

	txHash, err := e.submit(ctx, calls)
	if err != nil {
		return nil, err
	}

	// all calls share the same sponsored transaction
	results := make([]types.ContractCallResult, 0, len(calls))
	for range calls {
		results = append(results, types.ContractCallResult{
			Success:         true,
			TransactionHash: txHash,
			GasUsed:         0,
		})
	}
	return results, nil
}

// IsCovered reports whether the sponsor's balance covers the estimated cost
// of the call. It is a UI pre-flight check; ExecuteCall does not require it.
func (e *Executor) IsCovered(ctx context.Context, call Call) (bool, error) {
	estimate, err := e.relay.EstimateGas(ctx, call)
	if err != nil {
		return false, fmt.Errorf("gas estimation failed: %w", err)
	}
	balances, err := e.relay.GetSponsorBalances(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get sponsor balances: %w", err)
	}

	gas, err := safecast.ToInt64(estimate)
	if err != nil {
		return false, err
	}
	requiredETH := decimal.NewFromInt(gas).Shift(-9)
	return balances.ETH.GreaterThan(requiredETH), nil
}

func (e *Executor) submit(ctx context.Context, calls []Call) (string, error) {
	submitCtx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	defer cancel()

	txHash, err := e.relay.Submit(submitCtx, calls)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || submitCtx.Err() == context.DeadlineExceeded {
			return "", ErrSubmissionTimeout
		}
		return "", fmt.Errorf("sponsored submission failed: %w", err)
	}

	log.Debugf("paymaster: submitted %d call(s) as %s", len(calls), txHash)
	return txHash, nil
}
