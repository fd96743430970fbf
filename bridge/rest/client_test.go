package restbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/bridge"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestGetQuote(t *testing.T) {
	validUntil := time.Now().Add(30 * time.Second).UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/quote", r.URL.Path)
			require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var payload quotePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Equal(t, "BTC", payload.FromToken)
			require.Equal(t, "0.001", payload.Amount)
			// 50 bps travel as 0.5 percent
			require.InDelta(t, 0.5, payload.Slippage, 0.0001)

			w.Header().Set("Content-Type", "application/json")
			// nolint
			json.NewEncoder(w).Encode(quoteResponse{
				FromToken:    "BTC",
				ToToken:      "USDC",
				FromAmount:   "0.001",
				ToAmount:     "64.87",
				ExchangeRate: "65000",
				Fees:         feesResponse{Total: "0.13"},
				ValidUntil:   validUntil,
			})
		},
	))
	defer server.Close()

	svc, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	quote, err := svc.GetQuote(context.Background(), bridge.QuoteRequest{
		FromToken:   types.TokenBTC,
		ToToken:     types.TokenUSDC,
		Amount:      decimal.NewFromFloat(0.001),
		SlippageBps: 50,
	})
	require.NoError(t, err)
	require.True(t, quote.ToAmount.Equal(decimal.NewFromFloat(64.87)))
	require.True(t, quote.Fees.Total.Equal(decimal.NewFromFloat(0.13)))
	require.Equal(t, validUntil, quote.ValidUntil.UnixMilli())
}

func TestGetQuoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			// nolint
			json.NewEncoder(w).Encode(errorResponse{Message: "unsupported pair"})
		},
	))
	defer server.Close()

	svc, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	_, err = svc.GetQuote(context.Background(), bridge.QuoteRequest{
		FromToken: types.TokenBTC,
		ToToken:   types.TokenETH,
		Amount:    decimal.NewFromInt(1),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported pair")
}

func TestGetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/bridge/status/bridge-1", r.URL.Path)
			var out statusResponse
			out.BridgeID = "bridge-1"
			out.Status = "processing"
			out.Progress.Stage = "lightning_routing"
			out.Progress.Percentage = 55
			w.Header().Set("Content-Type", "application/json")
			// nolint
			json.NewEncoder(w).Encode(out)
		},
	))
	defer server.Close()

	svc, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background(), "bridge-1")
	require.NoError(t, err)
	require.Equal(t, types.BridgeProcessing, status.Status)
	require.Equal(t, types.StageRouting, status.Progress.Stage)
	require.Equal(t, 55, status.Progress.Percentage)
}

func TestCancel(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		))
		defer server.Close()

		svc, err := NewClient(server.URL, "test-key")
		require.NoError(t, err)

		ok, err := svc.Cancel(context.Background(), "bridge-1")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("past the point of no return", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
			},
		))
		defer server.Close()

		svc, err := NewClient(server.URL, "test-key")
		require.NoError(t, err)

		ok, err := svc.Cancel(context.Background(), "bridge-1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("transport error is not fatal", func(t *testing.T) {
		svc, err := NewClient("http://127.0.0.1:1", "test-key")
		require.NoError(t, err)

		ok, err := svc.Cancel(context.Background(), "bridge-1")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestParseStage(t *testing.T) {
	cases := map[string]types.BridgeStage{
		"initiated":              types.StageInitiated,
		"source_confirmed":       types.StageSourceConfirmed,
		"bitcoin_confirmed":      types.StageSourceConfirmed,
		"routing":                types.StageRouting,
		"lightning_routing":      types.StageRouting,
		"destination_processing": types.StageDestinationProcessing,
		"starknet_processing":    types.StageDestinationProcessing,
		"completed":              types.StageCompleted,
		"something_else":         types.StageInitiated,
	}
	for input, expected := range cases {
		require.Equal(t, expected, parseStage(input), input)
	}
}
