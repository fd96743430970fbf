package bridge

import (
	"context"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/shopspring/decimal"
)

type QuoteRequest struct {
	FromToken   types.Token
	ToToken     types.Token
	Amount      decimal.Decimal
	SlippageBps int
}

type InitiateRequest struct {
	FromToken   types.Token
	ToToken     types.Token
	Amount      decimal.Decimal
	FromAddress string
	ToAddress   string
}

type InitiateResponse struct {
	ID               string
	ExpectedOutput   decimal.Decimal
	ExchangeRate     decimal.Decimal
	Fees             types.FeeBreakdown
	EstimatedTime    time.Duration
	LightningInvoice string
	BitcoinAddress   string
}

type StatusResponse struct {
	ID            string
	Status        types.BridgeStatus
	Progress      types.BridgeProgress
	ActualOutput  decimal.Decimal
	SourceTxID    string
	DestTxHash    string
	FailureReason string
}

// BridgeService is the liquidity/bridge provider boundary. Implementations
// talk to the upstream bridge API; the tracker drives the transfer lifecycle
// on top of it.
type BridgeService interface {
	GetQuote(ctx context.Context, req QuoteRequest) (*types.Quote, error)
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	GetStatus(ctx context.Context, id string) (*StatusResponse, error)
	Retry(ctx context.Context, id string) (*InitiateResponse, error)
	Cancel(ctx context.Context, id string) (bool, error)
}
