package yieldsdk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/bridge"
	"github.com/bitcoinyieldbridge/go-sdk/contract"
	"github.com/bitcoinyieldbridge/go-sdk/paymaster"
	"github.com/bitcoinyieldbridge/go-sdk/portfolio"
	"github.com/bitcoinyieldbridge/go-sdk/push"
	"github.com/bitcoinyieldbridge/go-sdk/quote"
	filestore "github.com/bitcoinyieldbridge/go-sdk/store/file"
	"github.com/bitcoinyieldbridge/go-sdk/tracker"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/bitcoinyieldbridge/go-sdk/wallet"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSettleDelay  = 2 * time.Second
	defaultHistoryLimit = 50
)

type Config struct {
	ContractAddress string
	Network         string
}

type pendingYieldDeposit struct {
	strategyID int
	amount     decimal.Decimal
}

type yieldClient struct {
	cfg      Config
	wallet   wallet.WalletService
	queries  contract.QueryService
	store    types.Store
	push     push.Service
	sessions filestore.SessionStore

	estimator  *quote.Estimator
	executor   *paymaster.Executor
	tracker    *tracker.Tracker
	aggregator *portfolio.Aggregator

	strategies    map[int]types.Strategy
	pollInterval  time.Duration
	bridgeTimeout time.Duration
	settleDelay   time.Duration

	// connectMu serializes Connect/Disconnect so concurrent callers cannot
	// dial the wallet twice or leak a listener goroutine.
	connectMu *sync.Mutex

	mu              *sync.Mutex
	session         *types.Session
	pendingDeposits map[string]pendingYieldDeposit
	listenCancel    context.CancelFunc
	refreshTimers   map[*time.Timer]struct{}
}

func NewClient(
	cfg Config,
	walletSvc wallet.WalletService,
	bridgeSvc bridge.BridgeService,
	relaySvc paymaster.RelayService,
	queries contract.QueryService,
	sdkStore types.Store,
	opts ...ClientOption,
) (YieldBridgeClient, error) {
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("missing yield contract address")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("missing wallet service")
	}
	if bridgeSvc == nil {
		return nil, fmt.Errorf("missing bridge service")
	}
	if relaySvc == nil {
		return nil, fmt.Errorf("missing relay service")
	}
	if queries == nil {
		return nil, fmt.Errorf("missing contract query service")
	}
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk repository")
	}

	strategies := make(map[int]types.Strategy)
	for _, strategy := range types.DefaultStrategies() {
		strategies[strategy.ID] = strategy
	}

	client := &yieldClient{
		cfg:             cfg,
		wallet:          walletSvc,
		queries:         queries,
		store:           sdkStore,
		strategies:      strategies,
		pollInterval:    tracker.DefaultPollInterval,
		bridgeTimeout:   tracker.DefaultBridgeTimeout,
		settleDelay:     defaultSettleDelay,
		connectMu:       &sync.Mutex{},
		mu:              &sync.Mutex{},
		pendingDeposits: make(map[string]pendingYieldDeposit),
		refreshTimers:   make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(client)
	}

	estimator, err := quote.NewEstimator(bridgeSvc)
	if err != nil {
		return nil, fmt.Errorf("failed to setup quote estimator: %s", err)
	}
	client.estimator = estimator

	executor, err := paymaster.NewExecutor(relaySvc)
	if err != nil {
		return nil, fmt.Errorf("failed to setup gasless executor: %s", err)
	}
	client.executor = executor

	strategyList := make([]types.Strategy, 0, len(client.strategies))
	for _, strategy := range client.strategies {
		strategyList = append(strategyList, strategy)
	}
	aggregator, err := portfolio.NewAggregator(queries, strategyList)
	if err != nil {
		return nil, fmt.Errorf("failed to setup portfolio aggregator: %s", err)
	}
	client.aggregator = aggregator

	trackerOpts := []tracker.Option{
		tracker.WithPollInterval(client.pollInterval),
		tracker.WithBridgeTimeout(client.bridgeTimeout),
		tracker.WithTerminalHandler(client.onBridgeTerminal),
	}
	if client.push != nil {
		trackerOpts = append(trackerOpts, tracker.WithPushService(client.push))
	}
	trackerSvc, err := tracker.NewTracker(bridgeSvc, sdkStore.BridgeStore(), trackerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to setup bridge tracker: %s", err)
	}
	client.tracker = trackerSvc

	return client, nil
}

// LoadClient rebuilds a client from a session persisted by a previous run. It
// restores the session without prompting the wallet again, reconnects the
// push channel and resumes monitoring of in-flight bridge transfers. A
// session store must be provided through WithSessionStore.
func LoadClient(
	ctx context.Context,
	cfg Config,
	walletSvc wallet.WalletService,
	bridgeSvc bridge.BridgeService,
	relaySvc paymaster.RelayService,
	queries contract.QueryService,
	sdkStore types.Store,
	opts ...ClientOption,
) (YieldBridgeClient, error) {
	svc, err := NewClient(
		cfg, walletSvc, bridgeSvc, relaySvc, queries, sdkStore, opts...,
	)
	if err != nil {
		return nil, err
	}
	client := svc.(*yieldClient)
	if client.sessions == nil {
		return nil, fmt.Errorf("missing session store")
	}

	session, err := client.sessions.GetSession()
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %s", err)
	}
	if session == nil {
		return nil, ErrNoPersistedSession
	}

	identity := session.WalletPubKey
	if identity == "" {
		identity = session.WalletAddress
	}
	if identity == "" || paymaster.DeriveAccount(identity) != session.AccountAddress {
		return nil, fmt.Errorf(
			"%w: persisted session does not match its account",
			ErrAccountDerivationFailed,
		)
	}

	client.connectMu.Lock()
	defer client.connectMu.Unlock()
	client.openSession(ctx, *session, false)
	return client, nil
}

func (c *yieldClient) GetVersion() string {
	return Version
}

func (c *yieldClient) Connect(ctx context.Context) (*types.Session, error) {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.session != nil {
		session := *c.session
		c.mu.Unlock()
		return &session, nil
	}
	c.mu.Unlock()

	info, err := c.wallet.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWalletConnectionFailed, err)
	}

	identity := info.PublicKey
	if identity == "" {
		identity = info.Address
	}
	if identity == "" {
		return nil, ErrAccountDerivationFailed
	}
	accountAddress := paymaster.DeriveAccount(identity)

	network := info.Network
	if network == "" {
		network = c.cfg.Network
	}
	session := types.Session{
		WalletAddress:  info.Address,
		WalletPubKey:   info.PublicKey,
		Network:        network,
		AccountAddress: accountAddress,
		ConnectedAt:    time.Now(),
	}

	c.openSession(ctx, session, true)
	return &session, nil
}

// openSession commits a session and starts its background work. Must be
// called with connectMu held and no session active.
func (c *yieldClient) openSession(ctx context.Context, session types.Session, persist bool) {
	if c.push != nil {
		if err := c.push.Connect(ctx, session.AccountAddress); err != nil {
			log.Warnf("push channel unavailable, falling back to polling: %s", err)
		}
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.session = &session
	c.listenCancel = cancel
	c.mu.Unlock()

	if c.push != nil {
		go c.listenPush(listenCtx)
	}

	if persist && c.sessions != nil {
		if err := c.sessions.SaveSession(session); err != nil {
			log.Warnf("failed to persist session: %s", err)
		}
	}
	if err := c.tracker.Resume(ctx); err != nil {
		log.Warnf("failed to resume bridge monitoring: %s", err)
	}
}

// Disconnect tears the session down: push listeners, bridge monitors and any
// pending portfolio refresh are all stopped. Calling it without an active
// session is a no-op.
func (c *yieldClient) Disconnect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil
	}
	cancel := c.listenCancel
	c.session = nil
	c.listenCancel = nil
	timers := make([]*time.Timer, 0, len(c.refreshTimers))
	for timer := range c.refreshTimers {
		timers = append(timers, timer)
	}
	c.refreshTimers = make(map[*time.Timer]struct{})
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, timer := range timers {
		timer.Stop()
	}
	c.tracker.Pause()

	if err := c.wallet.Disconnect(ctx); err != nil {
		log.Warnf("wallet disconnect failed: %s", err)
	}
	if c.sessions != nil {
		if err := c.sessions.DeleteSession(); err != nil {
			log.Warnf("failed to delete persisted session: %s", err)
		}
	}
	return nil
}

func (c *yieldClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *yieldClient) GetSession() *types.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	session := *c.session
	return &session
}

func (c *yieldClient) GetQuote(
	ctx context.Context,
	fromToken, toToken types.Token, amount decimal.Decimal, slippageBps int,
) (*types.Quote, error) {
	if _, err := c.safeCheck(); err != nil {
		return nil, err
	}
	return c.estimator.GetQuote(ctx, fromToken, toToken, amount, slippageBps)
}

func (c *yieldClient) EstimateOptimalSlippage(
	ctx context.Context, fromToken, toToken types.Token, amount decimal.Decimal,
) (int, error) {
	if _, err := c.safeCheck(); err != nil {
		return 0, err
	}
	return c.estimator.EstimateOptimalSlippage(ctx, fromToken, toToken, amount)
}

// Deposit bridges amount of BTC to the yield account and, once the bridge
// completes, deposits the bridged funds into the given strategy. It returns
// as soon as the bridge leg is initiated.
func (c *yieldClient) Deposit(
	ctx context.Context, amount decimal.Decimal, strategyID int,
) (*DepositResult, error) {
	session, err := c.safeCheck()
	if err != nil {
		return nil, err
	}
	strategy, err := c.strategyFor(strategyID)
	if err != nil {
		return nil, err
	}

	depositQuote, err := c.estimator.GetQuote(
		ctx, types.TokenBTC, types.TokenUSDC, amount, 0,
	)
	if err != nil {
		return nil, err
	}
	if depositQuote.ToAmount.LessThan(strategy.MinDeposit) {
		return nil, fmt.Errorf(
			"deposit of %s below strategy minimum of %s",
			depositQuote.ToAmount, strategy.MinDeposit,
		)
	}
	if depositQuote.ToAmount.GreaterThan(strategy.MaxDeposit) {
		return nil, fmt.Errorf(
			"deposit of %s above strategy maximum of %s",
			depositQuote.ToAmount, strategy.MaxDeposit,
		)
	}

	tx, err := c.tracker.Initiate(
		ctx, depositQuote, session.WalletAddress, session.AccountAddress,
	)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pendingDeposits[tx.ID] = pendingYieldDeposit{
		strategyID: strategyID,
		amount:     amount,
	}
	c.mu.Unlock()

	c.recordTx(ctx, types.Transaction{
		ID:        uuid.NewString(),
		Type:      types.TxDeposit,
		Amount:    amount,
		Token:     types.TokenBTC,
		Status:    string(tx.Status),
		BridgeID:  tx.ID,
		CreatedAt: time.Now(),
	})

	return &DepositResult{BridgeTx: tx, Quote: depositQuote}, nil
}

// RetryYieldDeposit resumes a deposit whose bridge leg completed but whose
// yield leg failed. The bridged funds are used as is, nothing is bridged
// again.
func (c *yieldClient) RetryYieldDeposit(
	ctx context.Context, bridgeID string,
) (*types.ContractCallResult, error) {
	session, err := c.safeCheck()
	if err != nil {
		return nil, err
	}

	tx, err := c.tracker.GetStatus(ctx, bridgeID)
	if err != nil {
		return nil, err
	}
	if tx.Status != types.BridgeCompleted {
		return nil, fmt.Errorf("bridge %s has not completed (%s)", bridgeID, tx.Status)
	}

	c.mu.Lock()
	pending, ok := c.pendingDeposits[bridgeID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no pending yield deposit for bridge %s", bridgeID)
	}

	result, err := c.executor.ExecuteCall(ctx, contract.DepositCall(
		c.cfg.ContractAddress, tx.ActualOutput, pending.strategyID,
	))
	if err != nil {
		return nil, YieldDepositFailedPostBridgeError{
			BridgeID:   bridgeID,
			Amount:     tx.ActualOutput,
			StrategyID: pending.strategyID,
			Err:        err,
		}
	}

	c.mu.Lock()
	delete(c.pendingDeposits, bridgeID)
	c.mu.Unlock()

	c.recordTx(ctx, types.Transaction{
		ID:        uuid.NewString(),
		Type:      types.TxYield,
		Amount:    tx.ActualOutput,
		Token:     types.TokenUSDC,
		Status:    "confirmed",
		TxHash:    result.TransactionHash,
		BridgeID:  bridgeID,
		CreatedAt: time.Now(),
	})
	c.scheduleRefresh(session.AccountAddress)

	return result, nil
}

// Withdraw pulls amount out of the strategy first, then bridges the freed
// funds back to the given Bitcoin address. A failure of the bridge leg does
// not undo the withdrawal.
func (c *yieldClient) Withdraw(
	ctx context.Context, amount decimal.Decimal, strategyID int, btcAddress string,
) (*WithdrawResult, error) {
	session, err := c.safeCheck()
	if err != nil {
		return nil, err
	}
	if _, ok := c.strategies[strategyID]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, strategyID)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", amount)
	}
	if err := validateBTCAddress(btcAddress, session.Network); err != nil {
		return nil, err
	}

	result, err := c.executor.ExecuteCall(ctx, contract.WithdrawCall(
		c.cfg.ContractAddress, amount, btcAddress,
	))
	if err != nil {
		return nil, fmt.Errorf("withdrawal failed: %w", err)
	}

	c.recordTx(ctx, types.Transaction{
		ID:        uuid.NewString(),
		Type:      types.TxWithdraw,
		Amount:    amount,
		Token:     types.TokenUSDC,
		Status:    "confirmed",
		TxHash:    result.TransactionHash,
		CreatedAt: time.Now(),
	})
	defer c.scheduleRefresh(session.AccountAddress)

	withdrawQuote, err := c.estimator.GetQuote(
		ctx, types.TokenUSDC, types.TokenBTC, amount, 0,
	)
	if err != nil {
		return &WithdrawResult{ContractResult: result},
			BridgeInitiationFailedPostWithdrawError{
				WithdrawTxHash: result.TransactionHash,
				Amount:         amount,
				Err:            err,
			}
	}
	bridgeTx, err := c.tracker.Initiate(
		ctx, withdrawQuote, session.AccountAddress, btcAddress,
	)
	if err != nil {
		return &WithdrawResult{ContractResult: result},
			BridgeInitiationFailedPostWithdrawError{
				WithdrawTxHash: result.TransactionHash,
				Amount:         amount,
				Err:            err,
			}
	}

	return &WithdrawResult{ContractResult: result, BridgeTx: bridgeTx}, nil
}

func (c *yieldClient) GetBridgeStatus(
	ctx context.Context, id string,
) (*types.BridgeTransaction, error) {
	if _, err := c.safeCheck(); err != nil {
		return nil, err
	}
	return c.tracker.GetStatus(ctx, id)
}

func (c *yieldClient) RetryBridge(
	ctx context.Context, id string,
) (*types.BridgeTransaction, error) {
	if _, err := c.safeCheck(); err != nil {
		return nil, err
	}
	tx, err := c.tracker.Retry(ctx, id)
	if err != nil {
		return nil, err
	}

	// carry the yield continuation over to the new attempt
	c.mu.Lock()
	if pending, ok := c.pendingDeposits[id]; ok {
		delete(c.pendingDeposits, id)
		c.pendingDeposits[tx.ID] = pending
	}
	c.mu.Unlock()

	return tx, nil
}

func (c *yieldClient) CancelBridge(ctx context.Context, id string) (bool, error) {
	if _, err := c.safeCheck(); err != nil {
		return false, err
	}
	cancelled, err := c.tracker.Cancel(ctx, id)
	if cancelled {
		c.mu.Lock()
		delete(c.pendingDeposits, id)
		c.mu.Unlock()
	}
	return cancelled, err
}

func (c *yieldClient) GetPortfolio(ctx context.Context) (*types.Portfolio, error) {
	session, err := c.safeCheck()
	if err != nil {
		return nil, err
	}
	return c.aggregator.Refresh(ctx, session.AccountAddress)
}

// GetStrategies returns the static strategy registry. The registry is fixed
// at construction time, so no session is required.
func (c *yieldClient) GetStrategies() []types.Strategy {
	strategies := make([]types.Strategy, 0, len(c.strategies))
	for _, strategy := range c.strategies {
		strategies = append(strategies, strategy)
	}
	sort.Slice(strategies, func(i, j int) bool {
		return strategies[i].ID < strategies[j].ID
	})
	return strategies
}

func (c *yieldClient) ExecuteBatch(
	ctx context.Context, calls []paymaster.Call,
) ([]types.ContractCallResult, error) {
	if _, err := c.safeCheck(); err != nil {
		return nil, err
	}
	return c.executor.ExecuteBatch(ctx, calls)
}

func (c *yieldClient) GetTransactionHistory(
	ctx context.Context, limit int,
) ([]types.Transaction, error) {
	if _, err := c.safeCheck(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	txs, err := c.store.TransactionStore().GetAllTransactions(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// The event channels are exempt from the session guard: consumers subscribe
// to them once, before connecting, and keep them across reconnects.
func (c *yieldClient) GetTransactionEventChannel() <-chan types.TransactionEvent {
	return c.store.TransactionStore().GetEventChannel()
}

func (c *yieldClient) GetBridgeEventChannel() <-chan types.BridgeEvent {
	return c.store.BridgeStore().GetEventChannel()
}

func (c *yieldClient) Stop() {
	// nolint
	c.Disconnect(context.Background())
	c.tracker.Stop()
	if c.push != nil {
		c.push.Close()
	}
	c.store.Close()
}

func (c *yieldClient) safeCheck() (*types.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, ErrNotConnected
	}
	session := *c.session
	return &session, nil
}

func (c *yieldClient) strategyFor(strategyID int) (*types.Strategy, error) {
	strategy, ok := c.strategies[strategyID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, strategyID)
	}
	if !strategy.Active {
		return nil, fmt.Errorf("%w: %s", ErrStrategyInactive, strategy.Name)
	}
	return &strategy, nil
}

func (c *yieldClient) onBridgeTerminal(tx types.BridgeTransaction) {
	ctx := context.Background()
	c.updateHistoryForBridge(ctx, tx)

	c.mu.Lock()
	pending, isDeposit := c.pendingDeposits[tx.ID]
	var account string
	if c.session != nil {
		account = c.session.AccountAddress
	}
	c.mu.Unlock()
	if account == "" {
		return
	}

	if tx.Status == types.BridgeCompleted && isDeposit {
		c.completeYieldDeposit(ctx, tx, pending)
	}
	c.scheduleRefresh(account)
}

func (c *yieldClient) completeYieldDeposit(
	ctx context.Context, tx types.BridgeTransaction, pending pendingYieldDeposit,
) {
	result, err := c.executor.ExecuteCall(ctx, contract.DepositCall(
		c.cfg.ContractAddress, tx.ActualOutput, pending.strategyID,
	))
	if err != nil {
		depositErr := YieldDepositFailedPostBridgeError{
			BridgeID:   tx.ID,
			Amount:     tx.ActualOutput,
			StrategyID: pending.strategyID,
			Err:        err,
		}
		log.Error(depositErr.Error())
		// keep the continuation so RetryYieldDeposit can resume it
		c.recordTx(ctx, types.Transaction{
			ID:        uuid.NewString(),
			Type:      types.TxYield,
			Amount:    tx.ActualOutput,
			Token:     types.TokenUSDC,
			Status:    "failed",
			BridgeID:  tx.ID,
			CreatedAt: time.Now(),
		})
		return
	}

	c.mu.Lock()
	delete(c.pendingDeposits, tx.ID)
	c.mu.Unlock()

	c.recordTx(ctx, types.Transaction{
		ID:        uuid.NewString(),
		Type:      types.TxYield,
		Amount:    tx.ActualOutput,
		Token:     types.TokenUSDC,
		Status:    "confirmed",
		TxHash:    result.TransactionHash,
		BridgeID:  tx.ID,
		CreatedAt: time.Now(),
	})
}

func (c *yieldClient) updateHistoryForBridge(
	ctx context.Context, bridgeTx types.BridgeTransaction,
) {
	txs, err := c.store.TransactionStore().GetAllTransactions(ctx)
	if err != nil {
		log.Warnf("failed to load transaction history: %s", err)
		return
	}

	toUpdate := make([]types.Transaction, 0, 1)
	for _, tx := range txs {
		if tx.BridgeID == bridgeTx.ID && tx.Type != types.TxYield {
			tx.Status = string(bridgeTx.Status)
			if bridgeTx.DestTxHash != "" {
				tx.TxHash = bridgeTx.DestTxHash
			}
			toUpdate = append(toUpdate, tx)
		}
	}
	if len(toUpdate) == 0 {
		return
	}
	if _, err := c.store.TransactionStore().UpdateTransactions(ctx, toUpdate); err != nil {
		log.Warnf("failed to update transaction history: %s", err)
	}
}

func (c *yieldClient) recordTx(ctx context.Context, tx types.Transaction) {
	if _, err := c.store.TransactionStore().AddTransactions(
		ctx, []types.Transaction{tx},
	); err != nil {
		log.Warnf("failed to record transaction: %s", err)
	}
}

// scheduleRefresh queues a one-shot portfolio refresh after the settle delay.
// Pending timers are cancelled on Disconnect; a timer that fires during
// teardown finds no session and does nothing.
func (c *yieldClient) scheduleRefresh(accountAddress string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(c.settleDelay, func() {
		c.mu.Lock()
		delete(c.refreshTimers, timer)
		live := c.session != nil
		c.mu.Unlock()
		if !live {
			return
		}
		if _, err := c.aggregator.Refresh(
			context.Background(), accountAddress,
		); err != nil {
			log.Debugf("portfolio refresh after settlement: %s", err)
		}
	})
	c.refreshTimers[timer] = struct{}{}
}

func (c *yieldClient) listenPush(ctx context.Context) {
	balanceCh, unsubBalance := c.push.SubscribeBalance()
	defer unsubBalance()
	txCh, unsubTx := c.push.SubscribeTransactions()
	defer unsubTx()
	yieldCh, unsubYield := c.push.SubscribeYield()
	defer unsubYield()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-balanceCh:
			if !ok {
				return
			}
			total := decimal.NewFromFloat(update.TotalValue)
			c.aggregator.ApplyUpdate(portfolio.Update{TotalBalance: &total})
		case update, ok := <-yieldCh:
			if !ok {
				return
			}
			total := decimal.NewFromFloat(update.TotalValue)
			c.aggregator.ApplyUpdate(portfolio.Update{TotalYield: &total})
		case update, ok := <-txCh:
			if !ok {
				return
			}
			c.applyTxUpdate(ctx, update)
		}
	}
}

func (c *yieldClient) applyTxUpdate(ctx context.Context, update push.TransactionUpdate) {
	txs, err := c.store.TransactionStore().GetTransactions(ctx, []string{update.ID})
	if err != nil || len(txs) == 0 {
		return
	}
	tx := txs[0]
	tx.Status = update.Status
	if _, err := c.store.TransactionStore().UpdateTransactions(
		ctx, []types.Transaction{tx},
	); err != nil {
		log.Debugf("failed to apply transaction update: %s", err)
	}
}

func validateBTCAddress(addr, network string) error {
	if _, err := btcutil.DecodeAddress(addr, networkParams(network)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDestinationAddress, err)
	}
	return nil
}

func networkParams(network string) *chaincfg.Params {
	switch network {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "signet":
		return &chaincfg.SigNetParams
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}
