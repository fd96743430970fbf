package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/store"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	configs := []store.Config{
		{StoreType: types.InMemoryStore},
		{StoreType: types.KVStore},
		{StoreType: types.SQLStore, BaseDir: t.TempDir()},
	}

	for _, cfg := range configs {
		cfg := cfg
		name := cfg.StoreType
		t.Run(name, func(t *testing.T) {
			svc, err := store.NewStore(cfg)
			require.NoError(t, err)
			defer svc.Close()

			testBridgeStore(t, ctx, svc.BridgeStore())
			testTransactionStore(t, ctx, svc.TransactionStore())
		})
	}

	t.Run("unknown type", func(t *testing.T) {
		_, err := store.NewStore(store.Config{StoreType: "bogus"})
		require.Error(t, err)
	})
}

func testBridgeStore(t *testing.T, ctx context.Context, bridgeStore types.BridgeStore) {
	now := time.Now()
	tx := types.BridgeTransaction{
		ID:             "bridge-1",
		FromToken:      types.TokenBTC,
		ToToken:        types.TokenUSDC,
		Amount:         decimal.NewFromFloat(0.001),
		ExpectedOutput: decimal.NewFromFloat(64.87),
		ExchangeRate:   decimal.NewFromInt(65000),
		Status:         types.BridgePending,
		FromAddress:    "bc1qfrom",
		ToAddress:      "0xto",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	eventCh := bridgeStore.GetEventChannel()

	count, err := bridgeStore.AddBridgeTxs(ctx, []types.BridgeTransaction{tx})
	require.NoError(t, err)
	require.Equal(t, 1, count)
	requireBridgeEvent(t, eventCh, types.BridgeTxsAdded)

	// duplicate ids are skipped
	count, err = bridgeStore.AddBridgeTxs(ctx, []types.BridgeTransaction{tx})
	require.NoError(t, err)
	require.Zero(t, count)

	got, err := bridgeStore.GetBridgeTx(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, tx.ID, got.ID)
	require.True(t, got.Amount.Equal(tx.Amount))
	require.True(t, got.ExchangeRate.Equal(tx.ExchangeRate))
	require.Equal(t, types.BridgePending, got.Status)

	_, err = bridgeStore.GetBridgeTx(ctx, "missing")
	require.Error(t, err)

	tx.Status = types.BridgeCompleted
	tx.ActualOutput = decimal.NewFromFloat(64.85)
	tx.UpdatedAt = time.Now()
	_, err = bridgeStore.UpdateBridgeTxs(ctx, []types.BridgeTransaction{tx})
	require.NoError(t, err)
	requireBridgeEvent(t, eventCh, types.BridgeTxsSettled)

	got, err = bridgeStore.GetBridgeTx(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, types.BridgeCompleted, got.Status)
	require.True(t, got.ActualOutput.Equal(decimal.NewFromFloat(64.85)))

	all, err := bridgeStore.GetAllBridgeTxs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, bridgeStore.Clean(ctx))
	all, err = bridgeStore.GetAllBridgeTxs(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func testTransactionStore(
	t *testing.T, ctx context.Context, txStore types.TransactionStore,
) {
	now := time.Now()
	txs := []types.Transaction{
		{
			ID:        "tx-1",
			Type:      types.TxDeposit,
			Amount:    decimal.NewFromFloat(0.001),
			Token:     types.TokenBTC,
			Status:    "pending",
			BridgeID:  "bridge-1",
			CreatedAt: now,
		},
		{
			ID:        "tx-2",
			Type:      types.TxYield,
			Amount:    decimal.NewFromFloat(64.85),
			Token:     types.TokenUSDC,
			Status:    "confirmed",
			TxHash:    "0xhash",
			CreatedAt: now,
		},
	}

	eventCh := txStore.GetEventChannel()

	count, err := txStore.AddTransactions(ctx, txs)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	requireTxEvent(t, eventCh, types.TxsAdded)

	got, err := txStore.GetTransactions(ctx, []string{"tx-2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, types.TxYield, got[0].Type)
	require.True(t, got[0].Amount.Equal(decimal.NewFromFloat(64.85)))

	txs[0].Status = "confirmed"
	txs[0].TxHash = "0xdeposit"
	_, err = txStore.UpdateTransactions(ctx, txs[:1])
	require.NoError(t, err)
	requireTxEvent(t, eventCh, types.TxsUpdated)

	all, err := txStore.GetAllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, txStore.Clean(ctx))
	all, err = txStore.GetAllTransactions(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func requireBridgeEvent(
	t *testing.T, ch <-chan types.BridgeEvent, eventType types.BridgeEventType,
) {
	select {
	case event := <-ch:
		require.Equal(t, eventType, event.Type)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s event", eventType)
	}
}

func requireTxEvent(
	t *testing.T, ch <-chan types.TransactionEvent, eventType types.TxEventType,
) {
	select {
	case event := <-ch:
		require.Equal(t, eventType, event.Type)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s event", eventType)
	}
}
