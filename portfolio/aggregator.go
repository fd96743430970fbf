package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/contract"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ErrPartialPortfolioData flags a snapshot built while one or more contract
// queries failed. The snapshot is still returned with the affected fields
// zeroed and Partial set.
var ErrPartialPortfolioData = errors.New("portfolio snapshot is incomplete")

const daysPerMonth = 30

// Update is a partial portfolio change pushed from the chain. Nil fields are
// left untouched by the merge.
type Update struct {
	TotalBalance *decimal.Decimal
	TotalYield   *decimal.Decimal
	Position     *types.UserPosition
}

// Aggregator builds portfolio snapshots from the contract query surface and
// merges real-time updates into them. Snapshots carry a monotonic version so
// a refresh started before a push update cannot clobber it.
type Aggregator struct {
	queries    contract.QueryService
	strategies map[int]types.Strategy

	mu       *sync.Mutex
	snapshot types.Portfolio
	version  uint64
}

func NewAggregator(
	queries contract.QueryService, strategies []types.Strategy,
) (*Aggregator, error) {
	if queries == nil {
		return nil, fmt.Errorf("missing contract query service")
	}
	byID := make(map[int]types.Strategy, len(strategies))
	for _, strategy := range strategies {
		byID[strategy.ID] = strategy
	}
	return &Aggregator{
		queries:    queries,
		strategies: byID,
		mu:         &sync.Mutex{},
	}, nil
}

// Refresh queries balance, positions and yield in parallel and commits a new
// snapshot. When some queries fail the snapshot is committed anyway with the
// missing fields zeroed and ErrPartialPortfolioData is returned alongside it.
func (a *Aggregator) Refresh(
	ctx context.Context, accountAddress string,
) (*types.Portfolio, error) {
	a.mu.Lock()
	startVersion := a.version
	a.mu.Unlock()

	var (
		balance   decimal.Decimal
		yield     decimal.Decimal
		positions []types.UserPosition
		partial   bool

		wg sync.WaitGroup
		mu sync.Mutex
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		raw, err := a.queries.GetUserBalance(ctx, accountAddress)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			log.Warnf("portfolio: balance query failed: %s", err)
			partial = true
			return
		}
		balance = contract.FromFixedPoint(raw)
	}()
	go func() {
		defer wg.Done()
		raw, err := a.queries.GetUserPositions(ctx, accountAddress)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			log.Warnf("portfolio: positions query failed: %s", err)
			partial = true
			return
		}
		positions = a.convertPositions(raw)
	}()
	go func() {
		defer wg.Done()
		raw, err := a.queries.GetTotalYield(ctx, accountAddress)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			log.Warnf("portfolio: yield query failed: %s", err)
			partial = true
			return
		}
		yield = contract.FromFixedPoint(raw)
	}()
	wg.Wait()

	snapshot := a.buildSnapshot(balance, yield, positions, partial)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.version != startVersion {
		// a push update landed while we were querying, keep it
		log.Debugf("portfolio: refresh superseded by a newer update, discarding")
		current := a.snapshot
		if partial {
			return &current, ErrPartialPortfolioData
		}
		return &current, nil
	}
	a.version++
	snapshot.Version = a.version
	a.snapshot = snapshot

	if partial {
		return &snapshot, ErrPartialPortfolioData
	}
	return &snapshot, nil
}

// ApplyUpdate merges a push update into the current snapshot. The merge is
// shallow: only the fields present in the update change.
func (a *Aggregator) ApplyUpdate(update Update) types.Portfolio {
	a.mu.Lock()
	defer a.mu.Unlock()

	if update.TotalBalance != nil {
		a.snapshot.TotalBalance = *update.TotalBalance
	}
	if update.TotalYield != nil {
		a.snapshot.TotalYield = *update.TotalYield
	}
	if update.Position != nil {
		replaced := false
		for i, pos := range a.snapshot.Positions {
			if pos.StrategyID == update.Position.StrategyID {
				a.snapshot.Positions[i] = *update.Position
				replaced = true
				break
			}
		}
		if !replaced {
			a.snapshot.Positions = append(a.snapshot.Positions, *update.Position)
		}
	}
	a.recomputeDerived()

	a.version++
	a.snapshot.Version = a.version
	a.snapshot.RefreshedAt = time.Now()
	return a.snapshot
}

// Snapshot returns the latest committed portfolio.
func (a *Aggregator) Snapshot() types.Portfolio {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

func (a *Aggregator) convertPositions(raw []contract.RawPosition) []types.UserPosition {
	positions := make([]types.UserPosition, 0, len(raw))
	for _, r := range raw {
		pos := types.UserPosition{
			StrategyID:       int(r.StrategyID),
			DepositAmount:    contract.FromFixedPoint(r.DepositAmount),
			Shares:           contract.FromFixedPoint(r.Shares),
			AccumulatedYield: contract.FromFixedPoint(r.AccumulatedYield),
			CurrentValue:     contract.FromFixedPoint(r.CurrentValue),
			LastInteraction:  time.Unix(r.LastInteraction, 0),
		}
		pos.ROI = roi(pos.CurrentValue, pos.DepositAmount)
		positions = append(positions, pos)
	}
	return positions
}

func (a *Aggregator) buildSnapshot(
	balance, yield decimal.Decimal, positions []types.UserPosition, partial bool,
) types.Portfolio {
	snapshot := types.Portfolio{
		TotalBalance: balance,
		TotalYield:   yield,
		Positions:    positions,
		Partial:      partial,
		RefreshedAt:  time.Now(),
	}
	for _, pos := range positions {
		snapshot.TotalDeposited = snapshot.TotalDeposited.Add(pos.DepositAmount)
	}
	snapshot.ROI = roi(snapshot.TotalBalance, snapshot.TotalDeposited)
	snapshot.MonthlyYield = a.monthlyYield(positions, yield)
	snapshot.ProjectedYearlyYield = a.projectedYearlyYield(positions)
	return snapshot
}

// recomputeDerived must be called with the lock held.
func (a *Aggregator) recomputeDerived() {
	snapshot := &a.snapshot
	snapshot.TotalDeposited = decimal.Zero
	for _, pos := range snapshot.Positions {
		snapshot.TotalDeposited = snapshot.TotalDeposited.Add(pos.DepositAmount)
	}
	snapshot.ROI = roi(snapshot.TotalBalance, snapshot.TotalDeposited)
	snapshot.MonthlyYield = a.monthlyYield(snapshot.Positions, snapshot.TotalYield)
	snapshot.ProjectedYearlyYield = a.projectedYearlyYield(snapshot.Positions)
}

// monthlyYield extrapolates the accumulated yield over the average holding
// period to a 30 day figure.
func (a *Aggregator) monthlyYield(
	positions []types.UserPosition, totalYield decimal.Decimal,
) decimal.Decimal {
	if len(positions) == 0 {
		return decimal.Zero
	}
	now := time.Now()
	var totalDays float64
	for _, pos := range positions {
		totalDays += now.Sub(pos.LastInteraction).Hours() / 24
	}
	avgDays := totalDays / float64(len(positions))
	if avgDays <= 0 {
		return decimal.Zero
	}
	return totalYield.
		Div(decimal.NewFromFloat(avgDays)).
		Mul(decimal.NewFromInt(daysPerMonth))
}

// projectedYearlyYield sums each position's current value scaled by its
// strategy's advertised APY. Positions of unknown strategies contribute zero.
func (a *Aggregator) projectedYearlyYield(positions []types.UserPosition) decimal.Decimal {
	projected := decimal.Zero
	for _, pos := range positions {
		strategy, ok := a.strategies[pos.StrategyID]
		if !ok {
			log.Debugf("portfolio: unknown strategy %d, skipping projection", pos.StrategyID)
			continue
		}
		projected = projected.Add(
			pos.CurrentValue.
				Mul(decimal.NewFromFloat(strategy.APY)).
				Div(decimal.NewFromInt(100)),
		)
	}
	return projected
}

func roi(currentValue, deposited decimal.Decimal) float64 {
	if deposited.IsZero() {
		return 0
	}
	value, _ := currentValue.
		Sub(deposited).
		Div(deposited).
		Mul(decimal.NewFromInt(100)).
		Float64()
	return value
}
