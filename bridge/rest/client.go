package restbridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/bridge"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/go-resty/resty/v2"
	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 15 * time.Second

type quotePayload struct {
	FromToken string  `json:"from_token"`
	ToToken   string  `json:"to_token"`
	Amount    string  `json:"amount"`
	Slippage  float64 `json:"slippage"`
}

type quoteResponse struct {
	FromToken    string       `json:"from_token"`
	ToToken      string       `json:"to_token"`
	FromAmount   string       `json:"from_amount"`
	ToAmount     string       `json:"to_amount"`
	ExchangeRate string       `json:"exchange_rate"`
	Fees         feesResponse `json:"fees"`
	PriceImpact  string       `json:"price_impact"`
	ValidUntil   int64        `json:"valid_until"`
}

type feesResponse struct {
	Network string `json:"network"`
	Service string `json:"service"`
	Bridge  string `json:"bridge"`
	Total   string `json:"total"`
}

type initiateResponse struct {
	BridgeID         string       `json:"bridge_id"`
	ExpectedOutput   string       `json:"expected_output"`
	ExchangeRate     string       `json:"exchange_rate"`
	Fees             feesResponse `json:"fees"`
	EstimatedTime    int64        `json:"estimated_time"`
	LightningInvoice string       `json:"lightning_invoice"`
	BitcoinAddress   string       `json:"bitcoin_address"`
}

type statusResponse struct {
	BridgeID      string `json:"bridge_id"`
	Status        string `json:"status"`
	ActualOutput  string `json:"actual_output"`
	SourceTxID    string `json:"source_tx_id"`
	DestTxHash    string `json:"dest_tx_hash"`
	FailureReason string `json:"failure_reason"`
	Progress      struct {
		Stage      string `json:"stage"`
		Percentage int    `json:"percentage"`
		Message    string `json:"message"`
	} `json:"progress"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type restClient struct {
	http *resty.Client
}

// NewClient returns a BridgeService talking to the bridge provider's REST
// API. The API key is sent as a bearer token on every request.
func NewClient(baseURL, apiKey string, opts ...Option) (bridge.BridgeService, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("missing bridge base url")
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(defaultRequestTimeout).
		SetHeader("Content-Type", "application/json")

	svc := &restClient{http: httpClient}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (c *restClient) GetQuote(
	ctx context.Context, req bridge.QuoteRequest,
) (*types.Quote, error) {
	payload := quotePayload{
		FromToken: string(req.FromToken),
		ToToken:   string(req.ToToken),
		Amount:    req.Amount.String(),
		Slippage:  float64(req.SlippageBps) / 100,
	}

	var out quoteResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/quote")
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("quote", resp.StatusCode(), apiErr)
	}

	quote := &types.Quote{
		FromToken:    types.Token(out.FromToken),
		ToToken:      types.Token(out.ToToken),
		FromAmount:   parseAmount(out.FromAmount),
		ToAmount:     parseAmount(out.ToAmount),
		ExchangeRate: parseAmount(out.ExchangeRate),
		Fees:         parseFees(out.Fees),
		PriceImpact:  parseAmount(out.PriceImpact),
		ValidUntil:   time.UnixMilli(out.ValidUntil),
	}
	return quote, nil
}

func (c *restClient) Initiate(
	ctx context.Context, req bridge.InitiateRequest,
) (*bridge.InitiateResponse, error) {
	payload := map[string]string{
		"from_token":   string(req.FromToken),
		"to_token":     string(req.ToToken),
		"amount":       req.Amount.String(),
		"from_address": req.FromAddress,
		"to_address":   req.ToAddress,
	}

	var out initiateResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/bridge/initiate")
	if err != nil {
		return nil, fmt.Errorf("bridge initiation failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, apiError("initiate", resp.StatusCode(), apiErr)
	}

	result := decodeInitiate(out)

	// Deposits into the bridge are paid over Lightning. Sanity-check the
	// invoice amount against the requested amount before handing it out.
	if out.LightningInvoice != "" && req.FromToken == types.TokenBTC {
		if err := checkInvoiceAmount(out.LightningInvoice, req.Amount); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (c *restClient) GetStatus(ctx context.Context, id string) (*bridge.StatusResponse, error) {
	var out statusResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/bridge/status/" + id)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("status", resp.StatusCode(), apiErr)
	}

	return &bridge.StatusResponse{
		ID:           out.BridgeID,
		Status:       types.BridgeStatus(out.Status),
		ActualOutput: parseAmount(out.ActualOutput),
		Progress: types.BridgeProgress{
			Stage:      parseStage(out.Progress.Stage),
			Percentage: out.Progress.Percentage,
			Message:    out.Progress.Message,
		},
		SourceTxID:    out.SourceTxID,
		DestTxHash:    out.DestTxHash,
		FailureReason: out.FailureReason,
	}, nil
}

func (c *restClient) Retry(ctx context.Context, id string) (*bridge.InitiateResponse, error) {
	var out initiateResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/bridge/retry/" + id)
	if err != nil {
		return nil, fmt.Errorf("retry request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("retry", resp.StatusCode(), apiErr)
	}
	return decodeInitiate(out), nil
}

func (c *restClient) Cancel(ctx context.Context, id string) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).Post("/v1/bridge/cancel/" + id)
	if err != nil {
		return false, nil
	}
	return resp.StatusCode() == http.StatusOK, nil
}

func decodeInitiate(out initiateResponse) *bridge.InitiateResponse {
	estimated := out.EstimatedTime
	if estimated == 0 {
		estimated = 300
	}
	return &bridge.InitiateResponse{
		ID:               out.BridgeID,
		ExpectedOutput:   parseAmount(out.ExpectedOutput),
		ExchangeRate:     parseAmount(out.ExchangeRate),
		Fees:             parseFees(out.Fees),
		EstimatedTime:    time.Duration(estimated) * time.Second,
		LightningInvoice: out.LightningInvoice,
		BitcoinAddress:   out.BitcoinAddress,
	}
}

func checkInvoiceAmount(invoice string, btcAmount decimal.Decimal) error {
	decoded, err := decodepay.Decodepay(invoice)
	if err != nil {
		return fmt.Errorf("invalid lightning invoice from bridge: %s", err)
	}
	// Invoice amounts are in millisatoshi.
	invoiceBTC := decimal.NewFromInt(decoded.MSatoshi).Div(decimal.NewFromInt(100_000_000_000))
	if invoiceBTC.GreaterThan(btcAmount) {
		return fmt.Errorf(
			"lightning invoice amount %s exceeds bridged amount %s",
			invoiceBTC, btcAmount,
		)
	}
	return nil
}

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Debugf("unparsable amount %q from bridge api", s)
		return decimal.Zero
	}
	return d
}

func parseFees(f feesResponse) types.FeeBreakdown {
	return types.FeeBreakdown{
		Network: parseAmount(f.Network),
		Service: parseAmount(f.Service),
		Bridge:  parseAmount(f.Bridge),
		Total:   parseAmount(f.Total),
	}
}

func parseStage(s string) types.BridgeStage {
	switch s {
	case "initiated":
		return types.StageInitiated
	// older API versions name the stages after the underlying networks
	case "source_confirmed", "bitcoin_confirmed":
		return types.StageSourceConfirmed
	case "routing", "lightning_routing":
		return types.StageRouting
	case "destination_processing", "starknet_processing":
		return types.StageDestinationProcessing
	case "completed":
		return types.StageCompleted
	default:
		return types.StageInitiated
	}
}

func apiError(op string, code int, e errorResponse) error {
	if e.Message != "" {
		return fmt.Errorf("bridge %s error (status %d): %s", op, code, e.Message)
	}
	return fmt.Errorf("bridge %s error: unexpected status %d", op, code)
}
