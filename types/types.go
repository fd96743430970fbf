package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	InMemoryStore = "inmemory"
	KVStore       = "kv"
	SQLStore      = "sql"
)

type Token string

const (
	TokenBTC  Token = "BTC"
	TokenUSDC Token = "USDC"
	TokenETH  Token = "ETH"
)

// FeeBreakdown itemizes the cost of a bridge transfer. Total is the sum of
// the three legs as reported by the bridge provider.
type FeeBreakdown struct {
	Network decimal.Decimal
	Service decimal.Decimal
	Bridge  decimal.Decimal
	Total   decimal.Decimal
}

// Quote is a bridge exchange quote. It is only usable until ValidUntil;
// consumers must re-request a quote past that instant.
type Quote struct {
	FromToken    Token
	ToToken      Token
	FromAmount   decimal.Decimal
	ToAmount     decimal.Decimal
	ExchangeRate decimal.Decimal
	Fees         FeeBreakdown
	PriceImpact  decimal.Decimal
	ValidUntil   time.Time
}

func (q Quote) Expired(now time.Time) bool {
	return now.After(q.ValidUntil)
}

type BridgeStatus string

const (
	BridgePending    BridgeStatus = "pending"
	BridgeProcessing BridgeStatus = "processing"
	BridgeCompleted  BridgeStatus = "completed"
	BridgeFailed     BridgeStatus = "failed"
)

type BridgeStage int

const (
	StageInitiated BridgeStage = iota
	StageSourceConfirmed
	StageRouting
	StageDestinationProcessing
	StageCompleted
)

func (s BridgeStage) String() string {
	return map[BridgeStage]string{
		StageInitiated:             "initiated",
		StageSourceConfirmed:       "source_confirmed",
		StageRouting:               "routing",
		StageDestinationProcessing: "destination_processing",
		StageCompleted:             "completed",
	}[s]
}

type BridgeProgress struct {
	Stage      BridgeStage
	Percentage int
	Message    string
}

// BridgeTransaction is one cross-chain transfer attempt. It is created by the
// orchestrator on initiation and mutated only by the tracker until it reaches
// a terminal status, after which it is immutable.
type BridgeTransaction struct {
	ID             string
	FromToken      Token
	ToToken        Token
	Amount         decimal.Decimal
	ExpectedOutput decimal.Decimal
	ActualOutput   decimal.Decimal
	ExchangeRate   decimal.Decimal
	Fees           FeeBreakdown
	Status         BridgeStatus
	Progress       BridgeProgress
	FromAddress    string
	ToAddress      string
	SourceTxID     string
	DestTxHash     string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t BridgeTransaction) IsTerminal() bool {
	return t.Status == BridgeCompleted || t.Status == BridgeFailed
}

func (t BridgeTransaction) String() string {
	// nolint
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// ContractCallResult reports the outcome of one sponsored contract call.
// GasUsed is always 0 when the call went through the paymaster.
type ContractCallResult struct {
	Success         bool
	TransactionHash string
	GasUsed         uint64
	Error           string
}

// UserPosition is the contract's view of a user's stake in one strategy.
// The portfolio aggregator treats it as a read-only projection.
type UserPosition struct {
	StrategyID       int
	DepositAmount    decimal.Decimal
	Shares           decimal.Decimal
	AccumulatedYield decimal.Decimal
	CurrentValue     decimal.Decimal
	LastInteraction  time.Time
	ROI              float64
}

// Portfolio is the aggregated snapshot derived from the contract query
// surface. Version increases on every refresh or push merge and is used to
// keep stale refreshes from clobbering newer push updates.
type Portfolio struct {
	TotalBalance         decimal.Decimal
	TotalYield           decimal.Decimal
	TotalDeposited       decimal.Decimal
	ROI                  float64
	Positions            []UserPosition
	MonthlyYield         decimal.Decimal
	ProjectedYearlyYield decimal.Decimal
	Partial              bool
	Version              uint64
	RefreshedAt          time.Time
}

// Session is the live wallet + derived account pair. Exactly one per client;
// all bridge, withdraw and portfolio calls require one.
type Session struct {
	WalletAddress  string
	WalletPubKey   string
	Network        string
	AccountAddress string
	ConnectedAt    time.Time
}

const (
	TxDeposit  TxType = "DEPOSIT"
	TxWithdraw TxType = "WITHDRAW"
	TxBridge   TxType = "BRIDGE"
	TxYield    TxType = "YIELD"
)

type TxType string

// Transaction is a history record covering both bridge transfers and
// sponsored contract calls.
type Transaction struct {
	ID        string
	Type      TxType
	Amount    decimal.Decimal
	Token     Token
	Status    string
	TxHash    string
	BridgeID  string
	CreatedAt time.Time
}

func (t Transaction) String() string {
	buf, _ := json.MarshalIndent(t, "", "  ")
	return string(buf)
}

type BridgeEventType int

const (
	BridgeTxsAdded BridgeEventType = iota
	BridgeTxsUpdated
	BridgeTxsSettled
)

func (e BridgeEventType) String() string {
	return map[BridgeEventType]string{
		BridgeTxsAdded:   "BRIDGE_TXS_ADDED",
		BridgeTxsUpdated: "BRIDGE_TXS_UPDATED",
		BridgeTxsSettled: "BRIDGE_TXS_SETTLED",
	}[e]
}

type BridgeEvent struct {
	Type BridgeEventType
	Txs  []BridgeTransaction
}

type TxEventType int

const (
	TxsAdded TxEventType = iota
	TxsUpdated
)

func (e TxEventType) String() string {
	return map[TxEventType]string{
		TxsAdded:   "TXS_ADDED",
		TxsUpdated: "TXS_UPDATED",
	}[e]
}

type TransactionEvent struct {
	Type TxEventType
	Txs  []Transaction
}

// Strategy describes a yield strategy published by the contract operator.
// APY is the advertised yearly rate used for projections.
type Strategy struct {
	ID         int
	Name       string
	Protocol   string
	APY        float64
	RiskLevel  int
	MinDeposit decimal.Decimal
	MaxDeposit decimal.Decimal
	Active     bool
}

func (s Strategy) String() string {
	return fmt.Sprintf("%s (id=%d, apy=%.1f%%)", s.Name, s.ID, s.APY)
}

// DefaultStrategies mirrors the strategies published for the Vesu and Troves
// protocols.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			ID:         1,
			Name:       "Vesu Lending",
			Protocol:   "Vesu",
			APY:        5.0,
			RiskLevel:  2,
			MinDeposit: decimal.NewFromInt(10),
			MaxDeposit: decimal.NewFromInt(1_000_000),
			Active:     true,
		},
		{
			ID:         2,
			Name:       "Troves Yield Farming",
			Protocol:   "Troves",
			APY:        8.0,
			RiskLevel:  3,
			MinDeposit: decimal.NewFromInt(100),
			MaxDeposit: decimal.NewFromInt(500_000),
			Active:     true,
		},
	}
}
