package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/bridge"
	"github.com/bitcoinyieldbridge/go-sdk/push"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrQuoteExpired    = errors.New("quote expired, request a new one")
	ErrRetryNotAllowed = errors.New("only failed transfers can be retried")
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultBridgeTimeout = 30 * time.Minute

	timeoutReason   = "Timeout"
	cancelledReason = "Cancelled"
)

// TerminalHandler is invoked exactly once per transfer when it reaches a
// terminal status.
type TerminalHandler func(tx types.BridgeTransaction)

// Tracker drives bridge transfers from initiation to a terminal status. Each
// active transfer is watched by its own goroutine, fed by push updates when a
// push service is configured and by status polling otherwise.
type Tracker struct {
	bridge        bridge.BridgeService
	store         types.BridgeStore
	push          push.Service
	pollInterval  time.Duration
	bridgeTimeout time.Duration
	onTerminal    TerminalHandler

	mu       *sync.Mutex
	monitors map[string]context.CancelFunc
	wg       *sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewTracker(
	bridgeSvc bridge.BridgeService, store types.BridgeStore, opts ...Option,
) (*Tracker, error) {
	if bridgeSvc == nil {
		return nil, fmt.Errorf("missing bridge service")
	}
	if store == nil {
		return nil, fmt.Errorf("missing bridge store")
	}
	ctx, cancel := context.WithCancel(context.Background())
	tracker := &Tracker{
		bridge:        bridgeSvc,
		store:         store,
		pollInterval:  DefaultPollInterval,
		bridgeTimeout: DefaultBridgeTimeout,
		mu:            &sync.Mutex{},
		monitors:      make(map[string]context.CancelFunc),
		wg:            &sync.WaitGroup{},
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker, nil
}

// Initiate starts a transfer for the given quote and begins monitoring it.
// The quote must still be valid at call time.
func (t *Tracker) Initiate(
	ctx context.Context, quote *types.Quote, fromAddress, toAddress string,
) (*types.BridgeTransaction, error) {
	if quote == nil {
		return nil, fmt.Errorf("missing quote")
	}
	if quote.Expired(time.Now()) {
		return nil, ErrQuoteExpired
	}

	resp, err := t.bridge.Initiate(ctx, bridge.InitiateRequest{
		FromToken:   quote.FromToken,
		ToToken:     quote.ToToken,
		Amount:      quote.FromAmount,
		FromAddress: fromAddress,
		ToAddress:   toAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate bridge transfer: %w", err)
	}

	now := time.Now()
	tx := types.BridgeTransaction{
		ID:             transferID(resp.ID),
		FromToken:      quote.FromToken,
		ToToken:        quote.ToToken,
		Amount:         quote.FromAmount,
		ExpectedOutput: resp.ExpectedOutput,
		ExchangeRate:   resp.ExchangeRate,
		Fees:           resp.Fees,
		Status:         types.BridgePending,
		Progress: types.BridgeProgress{
			Stage:   types.StageInitiated,
			Message: "transfer initiated",
		},
		FromAddress: fromAddress,
		ToAddress:   toAddress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := t.store.AddBridgeTxs(ctx, []types.BridgeTransaction{tx}); err != nil {
		return nil, fmt.Errorf("failed to persist bridge transfer: %w", err)
	}

	t.watch(tx)
	return &tx, nil
}

func (t *Tracker) GetStatus(ctx context.Context, id string) (*types.BridgeTransaction, error) {
	return t.store.GetBridgeTx(ctx, id)
}

// Retry re-submits a failed transfer as a brand new one. The failed record is
// kept untouched for history.
func (t *Tracker) Retry(ctx context.Context, id string) (*types.BridgeTransaction, error) {
	failed, err := t.store.GetBridgeTx(ctx, id)
	if err != nil {
		return nil, err
	}
	if failed.Status != types.BridgeFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrRetryNotAllowed, id, failed.Status)
	}

	resp, err := t.bridge.Retry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retry bridge transfer: %w", err)
	}

	now := time.Now()
	tx := *failed
	tx.ID = transferID(resp.ID)
	tx.ExpectedOutput = resp.ExpectedOutput
	tx.ExchangeRate = resp.ExchangeRate
	tx.Fees = resp.Fees
	tx.Status = types.BridgePending
	tx.Progress = types.BridgeProgress{
		Stage:   types.StageInitiated,
		Message: fmt.Sprintf("retry of %s", id),
	}
	tx.ActualOutput = decimal.Zero
	tx.SourceTxID = ""
	tx.DestTxHash = ""
	tx.FailureReason = ""
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if _, err := t.store.AddBridgeTxs(ctx, []types.BridgeTransaction{tx}); err != nil {
		return nil, fmt.Errorf("failed to persist bridge transfer: %w", err)
	}

	t.watch(tx)
	return &tx, nil
}

// Cancel asks the provider to abort a transfer. It is best effort: a transfer
// already past the point of no return keeps going and false is returned.
func (t *Tracker) Cancel(ctx context.Context, id string) (bool, error) {
	tx, err := t.store.GetBridgeTx(ctx, id)
	if err != nil {
		return false, err
	}
	if tx.IsTerminal() {
		return false, nil
	}

	accepted, err := t.bridge.Cancel(ctx, id)
	if err != nil || !accepted {
		return false, err
	}

	t.stopMonitor(id)
	cancelled := *tx
	cancelled.Status = types.BridgeFailed
	cancelled.FailureReason = cancelledReason
	cancelled.UpdatedAt = time.Now()
	if _, err := t.store.UpdateBridgeTxs(ctx, []types.BridgeTransaction{cancelled}); err != nil {
		return true, fmt.Errorf("failed to persist cancellation: %w", err)
	}
	if t.onTerminal != nil {
		t.onTerminal(cancelled)
	}
	return true, nil
}

// Resume restarts monitoring for every non-terminal transfer in the store.
// It is called once after the store is (re)opened.
func (t *Tracker) Resume(ctx context.Context) error {
	txs, err := t.store.GetAllBridgeTxs(ctx)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		if !tx.IsTerminal() {
			t.watch(tx)
		}
	}
	return nil
}

// Pause cancels every running monitor and waits for the goroutines to drain.
// Unlike Stop the tracker stays usable: a later Resume picks the non-terminal
// transfers back up from the store.
func (t *Tracker) Pause() {
	t.mu.Lock()
	for id, cancel := range t.monitors {
		cancel()
		delete(t.monitors, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Stop tears down all monitor goroutines and waits for them to exit.
func (t *Tracker) Stop() {
	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) watch(tx types.BridgeTransaction) {
	monitorCtx, cancel := context.WithCancel(t.ctx)
	t.mu.Lock()
	t.monitors[tx.ID] = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.stopMonitor(tx.ID)
		t.monitor(monitorCtx, tx)
	}()
}

func (t *Tracker) stopMonitor(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.monitors[id]; ok {
		cancel()
		delete(t.monitors, id)
	}
}

func (t *Tracker) monitor(ctx context.Context, tx types.BridgeTransaction) {
	deadline := time.NewTimer(t.bridgeTimeout)
	defer deadline.Stop()

	var pushCh <-chan push.BridgeUpdate
	if t.push != nil {
		ch, unsub := t.push.SubscribeBridge(tx.ID)
		defer unsub()
		pushCh = ch
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	current := tx
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			t.markTimedOut(current)
			return
		case update, ok := <-pushCh:
			if !ok {
				pushCh = nil
				continue
			}
			status := pushStatus(update)
			if done := t.apply(ctx, &current, status); done {
				return
			}
		case <-ticker.C:
			status, err := t.bridge.GetStatus(ctx, tx.ID)
			if err != nil {
				log.Debugf("tracker: status poll for %s failed: %s", tx.ID, err)
				continue
			}
			if done := t.apply(ctx, &current, status); done {
				return
			}
		}
	}
}

// apply folds a status report into the tracked transfer. Reports carrying a
// lower progress percentage than already recorded are out of order and
// dropped. Returns true once the transfer is terminal.
func (t *Tracker) apply(
	ctx context.Context, current *types.BridgeTransaction, status *bridge.StatusResponse,
) bool {
	terminal := status.Status == types.BridgeCompleted || status.Status == types.BridgeFailed
	if !terminal && status.Progress.Percentage < current.Progress.Percentage {
		log.Debugf(
			"tracker: dropping stale update for %s (%d%% < %d%%)",
			current.ID, status.Progress.Percentage, current.Progress.Percentage,
		)
		return false
	}

	current.Status = status.Status
	current.Progress = status.Progress
	if status.SourceTxID != "" {
		current.SourceTxID = status.SourceTxID
	}
	if status.DestTxHash != "" {
		current.DestTxHash = status.DestTxHash
	}
	if status.Status == types.BridgeCompleted {
		current.ActualOutput = status.ActualOutput
		current.Progress = types.BridgeProgress{
			Stage:      types.StageCompleted,
			Percentage: 100,
			Message:    "transfer completed",
		}
	}
	if status.Status == types.BridgeFailed {
		current.FailureReason = status.FailureReason
	}
	current.UpdatedAt = time.Now()

	if _, err := t.store.UpdateBridgeTxs(ctx, []types.BridgeTransaction{*current}); err != nil {
		log.Warnf("tracker: failed to persist update for %s: %s", current.ID, err)
	}

	if terminal && t.onTerminal != nil {
		t.onTerminal(*current)
	}
	return terminal
}

func (t *Tracker) markTimedOut(current types.BridgeTransaction) {
	log.Warnf("tracker: transfer %s timed out after %s", current.ID, t.bridgeTimeout)
	current.Status = types.BridgeFailed
	current.FailureReason = timeoutReason
	current.UpdatedAt = time.Now()
	if _, err := t.store.UpdateBridgeTxs(
		context.Background(), []types.BridgeTransaction{current},
	); err != nil {
		log.Warnf("tracker: failed to persist timeout for %s: %s", current.ID, err)
	}
	if t.onTerminal != nil {
		t.onTerminal(current)
	}
}

func pushStatus(update push.BridgeUpdate) *bridge.StatusResponse {
	return &bridge.StatusResponse{
		ID:     update.ID,
		Status: types.BridgeStatus(update.Status),
		Progress: types.BridgeProgress{
			Stage:      parseStage(update.Stage),
			Percentage: update.Percentage,
			Message:    update.Message,
		},
		ActualOutput: decimal.NewFromFloat(update.ActualOutput),
	}
}

func parseStage(stage string) types.BridgeStage {
	switch stage {
	case "source_confirmed":
		return types.StageSourceConfirmed
	case "routing":
		return types.StageRouting
	case "destination_processing":
		return types.StageDestinationProcessing
	case "completed":
		return types.StageCompleted
	default:
		return types.StageInitiated
	}
}

func transferID(providerID string) string {
	if providerID != "" {
		return providerID
	}
	return uuid.NewString()
}
