package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/bridge"
	"github.com/bitcoinyieldbridge/go-sdk/internal/utils"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrQuoteUnavailable = errors.New("quote unavailable")

const (
	DefaultSlippageBps = 50
	defaultRetryWindow = 10 * time.Second
)

// Candidate tolerances probed by EstimateOptimalSlippage, in basis points.
var slippageCandidates = []int{10, 50, 100, 200}

// Estimator fetches quotes from the bridge provider with bounded retries and
// picks slippage tolerances balancing output against failure risk.
type Estimator struct {
	bridge      bridge.BridgeService
	retryWindow time.Duration
}

func NewEstimator(svc bridge.BridgeService, opts ...EstimatorOption) (*Estimator, error) {
	if svc == nil {
		return nil, fmt.Errorf("missing bridge service")
	}
	estimator := &Estimator{
		bridge:      svc,
		retryWindow: defaultRetryWindow,
	}
	for _, opt := range opts {
		opt(estimator)
	}
	return estimator, nil
}

// GetQuote returns a fresh quote for converting amount of fromToken into
// toToken. A non-positive slippageBps selects the default tolerance.
func (e *Estimator) GetQuote(
	ctx context.Context,
	fromToken, toToken types.Token, amount decimal.Decimal, slippageBps int,
) (*types.Quote, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", amount)
	}
	if slippageBps <= 0 {
		slippageBps = DefaultSlippageBps
	}

	var quote *types.Quote
	err := utils.RetryTransient(ctx, e.retryWindow, func() error {
		q, err := e.bridge.GetQuote(ctx, bridge.QuoteRequest{
			FromToken:   fromToken,
			ToToken:     toToken,
			Amount:      amount,
			SlippageBps: slippageBps,
		})
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrQuoteUnavailable, err)
	}
	return quote, nil
}

// EstimateOptimalSlippage probes the candidate tolerances and scores each
// successful quote by weighting the relative output against the tolerance
// cost. Candidates failing to quote are skipped; if none succeeds the default
// tolerance is returned.
func (e *Estimator) EstimateOptimalSlippage(
	ctx context.Context, fromToken, toToken types.Token, amount decimal.Decimal,
) (int, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}

	type candidateQuote struct {
		bps    int
		output decimal.Decimal
	}
	quotes := make([]candidateQuote, 0, len(slippageCandidates))
	maxOutput := decimal.Zero
	for _, bps := range slippageCandidates {
		q, err := e.bridge.GetQuote(ctx, bridge.QuoteRequest{
			FromToken:   fromToken,
			ToToken:     toToken,
			Amount:      amount,
			SlippageBps: bps,
		})
		if err != nil {
			log.Debugf("quote: slippage candidate %d bps failed: %s", bps, err)
			continue
		}
		quotes = append(quotes, candidateQuote{bps: bps, output: q.ToAmount})
		if q.ToAmount.GreaterThan(maxOutput) {
			maxOutput = q.ToAmount
		}
	}
	if len(quotes) == 0 || !maxOutput.IsPositive() {
		log.Warnf(
			"quote: no usable slippage candidate for %s->%s, falling back to %d bps",
			fromToken, toToken, DefaultSlippageBps,
		)
		return DefaultSlippageBps, nil
	}

	bestBps := DefaultSlippageBps
	bestScore := -1.0
	for _, q := range quotes {
		outputScore, _ := q.output.Div(maxOutput).Float64()
		score := 0.7*outputScore + 0.3*(1.0-float64(q.bps)/1000.0)
		if score > bestScore {
			bestScore = score
			bestBps = q.bps
		}
	}
	return bestBps, nil
}
