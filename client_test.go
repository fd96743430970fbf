package yieldsdk

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/bridge"
	"github.com/bitcoinyieldbridge/go-sdk/contract"
	"github.com/bitcoinyieldbridge/go-sdk/paymaster"
	"github.com/bitcoinyieldbridge/go-sdk/store"
	filestore "github.com/bitcoinyieldbridge/go-sdk/store/file"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/bitcoinyieldbridge/go-sdk/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const genesisAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

type stubWallet struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	failConnect bool
}

func (w *stubWallet) Connect(_ context.Context) (*wallet.WalletInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failConnect {
		return nil, fmt.Errorf("user rejected")
	}
	w.connects++
	return &wallet.WalletInfo{
		Address:   genesisAddress,
		PublicKey: "02a1633cafcc01ebfb6d78e39f687a1f0995c62fc95f51ead10a02ee0be551b5dc",
	}, nil
}

func (w *stubWallet) Disconnect(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disconnects++
	return nil
}

func (w *stubWallet) GetBalance(_ context.Context, _ string) (wallet.Balance, error) {
	return wallet.Balance{}, nil
}

func (w *stubWallet) SignTransaction(_ context.Context, tx string) (string, error) {
	return tx, nil
}

func (w *stubWallet) SignMessage(_ context.Context, _ []byte) (string, error) {
	return "signature", nil
}

type stubBridge struct {
	mu           sync.Mutex
	nextID       int
	failInitiate bool
	stayPending  bool
	polls        int
	statuses     map[string]*bridge.StatusResponse
}

func newStubBridge() *stubBridge {
	return &stubBridge{statuses: make(map[string]*bridge.StatusResponse)}
}

func (b *stubBridge) rate(from types.Token) decimal.Decimal {
	if from == types.TokenBTC {
		return decimal.NewFromInt(65000)
	}
	return decimal.NewFromInt(1).Div(decimal.NewFromInt(65000))
}

func (b *stubBridge) GetQuote(
	_ context.Context, req bridge.QuoteRequest,
) (*types.Quote, error) {
	rate := b.rate(req.FromToken)
	return &types.Quote{
		FromToken:    req.FromToken,
		ToToken:      req.ToToken,
		FromAmount:   req.Amount,
		ToAmount:     req.Amount.Mul(rate),
		ExchangeRate: rate,
		ValidUntil:   time.Now().Add(30 * time.Second),
	}, nil
}

func (b *stubBridge) Initiate(
	_ context.Context, req bridge.InitiateRequest,
) (*bridge.InitiateResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failInitiate {
		return nil, fmt.Errorf("bridge unavailable")
	}
	b.nextID++
	id := fmt.Sprintf("bridge-%d", b.nextID)
	expected := req.Amount.Mul(b.rate(req.FromToken))
	if b.stayPending {
		b.statuses[id] = &bridge.StatusResponse{
			ID:     id,
			Status: types.BridgeProcessing,
			Progress: types.BridgeProgress{
				Stage:      types.StageRouting,
				Percentage: 50,
			},
		}
	} else {
		b.statuses[id] = &bridge.StatusResponse{
			ID:           id,
			Status:       types.BridgeCompleted,
			ActualOutput: expected,
			DestTxHash:   "0xdest-" + id,
		}
	}
	return &bridge.InitiateResponse{ID: id, ExpectedOutput: expected}, nil
}

func (b *stubBridge) GetStatus(
	_ context.Context, id string,
) (*bridge.StatusResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	status, ok := b.statuses[id]
	if !ok {
		return nil, fmt.Errorf("unknown transfer %s", id)
	}
	return status, nil
}

func (b *stubBridge) pollCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.polls
}

func (b *stubBridge) Retry(
	_ context.Context, _ string,
) (*bridge.InitiateResponse, error) {
	return nil, fmt.Errorf("not supported")
}

func (b *stubBridge) Cancel(_ context.Context, _ string) (bool, error) {
	return false, nil
}

type stubRelay struct {
	mu        sync.Mutex
	failing   map[string]bool
	submitted []paymaster.Call
}

func newStubRelay() *stubRelay {
	return &stubRelay{failing: make(map[string]bool)}
}

func (r *stubRelay) EstimateGas(_ context.Context, call paymaster.Call) (uint64, error) {
	switch call.Entrypoint {
	case "deposit_and_yield":
		return 150_000, nil
	case "withdraw_yield":
		return 120_000, nil
	case "transfer":
		return 50_000, nil
	default:
		return 100_000, nil
	}
}

func (r *stubRelay) Submit(_ context.Context, calls []paymaster.Call) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, call := range calls {
		if r.failing[call.Entrypoint] {
			return "", fmt.Errorf("execution reverted")
		}
	}
	r.submitted = append(r.submitted, calls...)
	return fmt.Sprintf("0xtx%d", len(r.submitted)), nil
}

func (r *stubRelay) GetSponsorBalances(_ context.Context) (*paymaster.SponsorBalances, error) {
	return &paymaster.SponsorBalances{ETH: decimal.NewFromInt(1)}, nil
}

func (r *stubRelay) setFailing(entrypoint string, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing[entrypoint] = fail
}

func (r *stubRelay) calls() []paymaster.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]paymaster.Call{}, r.submitted...)
}

type stubQueries struct{}

func (stubQueries) GetUserBalance(_ context.Context, _ string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (stubQueries) GetUserPositions(
	_ context.Context, _ string,
) ([]contract.RawPosition, error) {
	return nil, nil
}

func (stubQueries) GetTotalYield(_ context.Context, _ string) (*big.Int, error) {
	return big.NewInt(0), nil
}

type clientFixture struct {
	client YieldBridgeClient
	wallet *stubWallet
	bridge *stubBridge
	relay  *stubRelay
}

func newClientFixture(t *testing.T, opts ...ClientOption) *clientFixture {
	t.Helper()

	walletSvc := &stubWallet{}
	bridgeSvc := newStubBridge()
	relaySvc := newStubRelay()

	sdkStore, err := store.NewStore(store.Config{StoreType: types.InMemoryStore})
	require.NoError(t, err)

	opts = append([]ClientOption{
		WithPollInterval(10 * time.Millisecond),
		WithBridgeTimeout(5 * time.Second),
		WithSettleDelay(10 * time.Millisecond),
	}, opts...)
	client, err := NewClient(
		Config{ContractAddress: "0xyieldcontract"},
		walletSvc, bridgeSvc, relaySvc, stubQueries{}, sdkStore, opts...,
	)
	require.NoError(t, err)
	t.Cleanup(client.Stop)

	return &clientFixture{
		client: client,
		wallet: walletSvc,
		bridge: bridgeSvc,
		relay:  relaySvc,
	}
}

func (f *clientFixture) connect(t *testing.T) *types.Session {
	t.Helper()
	session, err := f.client.Connect(context.Background())
	require.NoError(t, err)
	return session
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("derives a deterministic account", func(t *testing.T) {
		fixture := newClientFixture(t)
		session := fixture.connect(t)
		require.Equal(t, genesisAddress, session.WalletAddress)
		require.Equal(
			t, paymaster.DeriveAccount(session.WalletPubKey), session.AccountAddress,
		)
		require.True(t, fixture.client.IsConnected())
	})

	t.Run("is idempotent", func(t *testing.T) {
		fixture := newClientFixture(t)
		first := fixture.connect(t)
		second := fixture.connect(t)
		require.Equal(t, first.AccountAddress, second.AccountAddress)
		require.Equal(t, 1, fixture.wallet.connects)
	})

	t.Run("wraps wallet failures", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.wallet.failConnect = true
		_, err := fixture.client.Connect(ctx)
		require.ErrorIs(t, err, ErrWalletConnectionFailed)
		require.False(t, fixture.client.IsConnected())
	})

	t.Run("concurrent calls dial the wallet once", func(t *testing.T) {
		fixture := newClientFixture(t)

		var wg sync.WaitGroup
		sessions := make([]*types.Session, 2)
		errs := make([]error, 2)
		for i := range sessions {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sessions[i], errs[i] = fixture.client.Connect(ctx)
			}(i)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		require.Equal(t, 1, fixture.wallet.connects)
		require.Equal(t, sessions[0].AccountAddress, sessions[1].AccountAddress)
	})
}

func TestSessionGuard(t *testing.T) {
	ctx := context.Background()
	fixture := newClientFixture(t)

	_, err := fixture.client.GetQuote(
		ctx, types.TokenBTC, types.TokenUSDC, decimal.NewFromInt(1), 0,
	)
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = fixture.client.EstimateOptimalSlippage(
		ctx, types.TokenBTC, types.TokenUSDC, decimal.NewFromInt(1),
	)
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = fixture.client.GetTransactionHistory(ctx, 0)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("is idempotent", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)
		require.NoError(t, fixture.client.Disconnect(ctx))
		require.NoError(t, fixture.client.Disconnect(ctx))
		require.Equal(t, 1, fixture.wallet.disconnects)
		require.False(t, fixture.client.IsConnected())
	})

	t.Run("operations require a session afterwards", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)
		require.NoError(t, fixture.client.Disconnect(ctx))

		_, err := fixture.client.Deposit(ctx, decimal.NewFromFloat(0.001), 1)
		require.ErrorIs(t, err, ErrNotConnected)
		_, err = fixture.client.GetPortfolio(ctx)
		require.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("stops bridge monitoring until reconnect", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.bridge.stayPending = true
		fixture.connect(t)

		_, err := fixture.client.Deposit(ctx, decimal.NewFromFloat(0.001), 1)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return fixture.bridge.pollCount() >= 2
		}, 2*time.Second, 10*time.Millisecond)

		require.NoError(t, fixture.client.Disconnect(ctx))
		quiesced := fixture.bridge.pollCount()
		time.Sleep(100 * time.Millisecond)
		require.Equal(t, quiesced, fixture.bridge.pollCount())

		// reconnecting resumes the watch of the in-flight transfer
		fixture.connect(t)
		require.Eventually(t, func() bool {
			return fixture.bridge.pollCount() > quiesced
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestLoadClient(t *testing.T) {
	ctx := context.Background()
	cfg := Config{ContractAddress: "0xyieldcontract"}

	newStore := func(t *testing.T) types.Store {
		t.Helper()
		sdkStore, err := store.NewStore(store.Config{StoreType: types.InMemoryStore})
		require.NoError(t, err)
		return sdkStore
	}

	t.Run("restores a persisted session without the wallet", func(t *testing.T) {
		sessions, err := filestore.NewSessionStore(t.TempDir())
		require.NoError(t, err)
		walletSvc := &stubWallet{}

		first, err := NewClient(
			cfg, walletSvc, newStubBridge(), newStubRelay(), stubQueries{},
			newStore(t), WithSessionStore(sessions),
		)
		require.NoError(t, err)
		session, err := first.Connect(ctx)
		require.NoError(t, err)

		// a fresh client on the same session store picks the session up
		// without prompting the wallet again
		restored, err := LoadClient(
			ctx, cfg, walletSvc, newStubBridge(), newStubRelay(), stubQueries{},
			newStore(t), WithSessionStore(sessions),
		)
		require.NoError(t, err)
		t.Cleanup(restored.Stop)

		require.True(t, restored.IsConnected())
		got := restored.GetSession()
		require.NotNil(t, got)
		require.Equal(t, session.AccountAddress, got.AccountAddress)
		require.Equal(t, session.WalletAddress, got.WalletAddress)
		require.Equal(t, 1, walletSvc.connects)
	})

	t.Run("fails without a persisted session", func(t *testing.T) {
		sessions, err := filestore.NewSessionStore(t.TempDir())
		require.NoError(t, err)

		_, err = LoadClient(
			ctx, cfg, &stubWallet{}, newStubBridge(), newStubRelay(), stubQueries{},
			newStore(t), WithSessionStore(sessions),
		)
		require.ErrorIs(t, err, ErrNoPersistedSession)
	})

	t.Run("rejects a session that does not match its account", func(t *testing.T) {
		sessions, err := filestore.NewSessionStore(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, sessions.SaveSession(types.Session{
			WalletAddress:  genesisAddress,
			WalletPubKey:   "02a1633cafcc01ebfb6d78e39f687a1f",
			AccountAddress: "0xnotderivedfromthatkey",
			ConnectedAt:    time.Now(),
		}))

		_, err = LoadClient(
			ctx, cfg, &stubWallet{}, newStubBridge(), newStubRelay(), stubQueries{},
			newStore(t), WithSessionStore(sessions),
		)
		require.ErrorIs(t, err, ErrAccountDerivationFailed)
	})
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a session", func(t *testing.T) {
		fixture := newClientFixture(t)
		_, err := fixture.client.Deposit(ctx, decimal.NewFromFloat(0.001), 1)
		require.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("rejects unknown or inactive strategies", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)

		_, err := fixture.client.Deposit(ctx, decimal.NewFromFloat(0.001), 99)
		require.ErrorIs(t, err, ErrUnknownStrategy)

		inactive := types.DefaultStrategies()
		inactive[0].Active = false
		fixture = newClientFixture(t, WithStrategies(inactive))
		fixture.connect(t)
		_, err = fixture.client.Deposit(ctx, decimal.NewFromFloat(0.001), 1)
		require.ErrorIs(t, err, ErrStrategyInactive)
	})

	t.Run("rejects amounts outside strategy bounds", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)

		// 0.0000001 BTC converts to far below the 10 USDC minimum
		_, err := fixture.client.Deposit(ctx, decimal.NewFromFloat(0.0000001), 1)
		require.Error(t, err)
	})

	t.Run("bridges then deposits into the strategy", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)

		result, err := fixture.client.Deposit(ctx, decimal.NewFromFloat(0.001), 1)
		require.NoError(t, err)
		require.NotNil(t, result.BridgeTx)
		require.True(t, result.Quote.ToAmount.Equal(decimal.NewFromInt(65)))

		require.Eventually(t, func() bool {
			for _, call := range fixture.relay.calls() {
				if call.Entrypoint == "deposit_and_yield" {
					return true
				}
			}
			return false
		}, 2*time.Second, 10*time.Millisecond)

		history, err := fixture.client.GetTransactionHistory(ctx, 0)
		require.NoError(t, err)
		var sawYield bool
		for _, tx := range history {
			if tx.Type == types.TxYield && tx.Status == "confirmed" {
				sawYield = true
				require.Equal(t, result.BridgeTx.ID, tx.BridgeID)
			}
		}
		require.True(t, sawYield)
	})

	t.Run("failed yield leg is resumable without re-bridging", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)
		fixture.relay.setFailing("deposit_and_yield", true)

		result, err := fixture.client.Deposit(ctx, decimal.NewFromFloat(0.001), 1)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			history, err := fixture.client.GetTransactionHistory(ctx, 0)
			if err != nil {
				return false
			}
			for _, tx := range history {
				if tx.Type == types.TxYield && tx.Status == "failed" {
					return true
				}
			}
			return false
		}, 2*time.Second, 10*time.Millisecond)

		bridgeCount := fixture.bridge.nextID
		fixture.relay.setFailing("deposit_and_yield", false)
		callResult, err := fixture.client.RetryYieldDeposit(ctx, result.BridgeTx.ID)
		require.NoError(t, err)
		require.True(t, callResult.Success)
		require.Equal(t, bridgeCount, fixture.bridge.nextID)

		// continuation consumed, a second retry has nothing to resume
		_, err = fixture.client.RetryYieldDeposit(ctx, result.BridgeTx.ID)
		require.Error(t, err)
	})
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	amount := decimal.NewFromInt(100)

	t.Run("rejects invalid destination address", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)

		_, err := fixture.client.Withdraw(ctx, amount, 1, "not-an-address")
		require.ErrorIs(t, err, ErrInvalidDestinationAddress)
		require.Empty(t, fixture.relay.calls())
	})

	t.Run("withdraws then bridges back", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)

		result, err := fixture.client.Withdraw(ctx, amount, 1, genesisAddress)
		require.NoError(t, err)
		require.NotNil(t, result.ContractResult)
		require.NotNil(t, result.BridgeTx)
		require.Equal(t, types.TokenUSDC, result.BridgeTx.FromToken)

		calls := fixture.relay.calls()
		require.Len(t, calls, 1)
		require.Equal(t, "withdraw_yield", calls[0].Entrypoint)
	})

	t.Run("contract failure aborts before bridging", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)
		fixture.relay.setFailing("withdraw_yield", true)

		_, err := fixture.client.Withdraw(ctx, amount, 1, genesisAddress)
		require.Error(t, err)
		require.Zero(t, fixture.bridge.nextID)
	})

	t.Run("bridge init failure keeps the withdrawal", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)
		fixture.bridge.failInitiate = true

		result, err := fixture.client.Withdraw(ctx, amount, 1, genesisAddress)
		require.Error(t, err)
		var bridgeErr BridgeInitiationFailedPostWithdrawError
		require.ErrorAs(t, err, &bridgeErr)
		require.NotEmpty(t, bridgeErr.WithdrawTxHash)
		require.NotNil(t, result)
		require.NotNil(t, result.ContractResult)
		require.Nil(t, result.BridgeTx)
	})
}

func TestExecuteBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a session", func(t *testing.T) {
		fixture := newClientFixture(t)
		_, err := fixture.client.ExecuteBatch(ctx, []paymaster.Call{
			{ContractAddress: "0xc", Entrypoint: "transfer"},
		})
		require.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("all calls share one sponsored transaction", func(t *testing.T) {
		fixture := newClientFixture(t)
		fixture.connect(t)

		calls := []paymaster.Call{
			{ContractAddress: "0xc", Entrypoint: "transfer"},
			{ContractAddress: "0xc", Entrypoint: "transfer"},
		}
		results, err := fixture.client.ExecuteBatch(ctx, calls)
		require.NoError(t, err)
		require.Len(t, results, 2)
		require.Equal(t, results[0].TransactionHash, results[1].TransactionHash)
	})
}

func TestGetStrategies(t *testing.T) {
	fixture := newClientFixture(t)
	strategies := fixture.client.GetStrategies()
	require.Len(t, strategies, 2)
	require.Equal(t, 1, strategies[0].ID)
	require.Equal(t, "Vesu", strategies[0].Protocol)
	require.Equal(t, 2, strategies[1].ID)
	require.Equal(t, "Troves", strategies[1].Protocol)
}
