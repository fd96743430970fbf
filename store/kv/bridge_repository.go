package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	bridgeStoreDir = "bridge-txs"
)

type bridgeStore struct {
	db      *badgerhold.Store
	lock    *sync.Mutex
	eventCh chan types.BridgeEvent
}

type bridgeTxRecord struct {
	ID             string
	FromToken      string
	ToToken        string
	Amount         string
	ExpectedOutput string
	ActualOutput   string
	ExchangeRate   string
	FeeNetwork     string
	FeeService     string
	FeeBridge      string
	FeeTotal       string
	Status         string
	Stage          int
	Percentage     int
	Message        string
	FromAddress    string
	ToAddress      string
	SourceTxID     string
	DestTxHash     string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewBridgeStore(dir string, logger badger.Logger) (types.BridgeStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, bridgeStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge store: %s", err)
	}
	return &bridgeStore{
		db:      badgerDb,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.BridgeEvent, 100),
	}, nil
}

func (s *bridgeStore) AddBridgeTxs(
	_ context.Context, txs []types.BridgeTransaction,
) (int, error) {
	addedTxs := make([]types.BridgeTransaction, 0, len(txs))
	for _, tx := range txs {
		record := toBridgeTxRecord(tx)
		if err := s.db.Insert(tx.ID, &record); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				continue
			}
			return -1, err
		}
		addedTxs = append(addedTxs, tx)
	}

	if len(addedTxs) > 0 {
		go s.sendEvent(types.BridgeEvent{Type: types.BridgeTxsAdded, Txs: addedTxs})
	}

	return len(addedTxs), nil
}

func (s *bridgeStore) UpdateBridgeTxs(
	_ context.Context, txs []types.BridgeTransaction,
) (int, error) {
	updatedTxs := make([]types.BridgeTransaction, 0, len(txs))
	settledTxs := make([]types.BridgeTransaction, 0, len(txs))
	for _, tx := range txs {
		record := toBridgeTxRecord(tx)
		if err := s.db.Upsert(tx.ID, &record); err != nil {
			return -1, err
		}
		if tx.Status == types.BridgeCompleted {
			settledTxs = append(settledTxs, tx)
		} else {
			updatedTxs = append(updatedTxs, tx)
		}
	}

	if len(updatedTxs) > 0 {
		go s.sendEvent(types.BridgeEvent{Type: types.BridgeTxsUpdated, Txs: updatedTxs})
	}
	if len(settledTxs) > 0 {
		go s.sendEvent(types.BridgeEvent{Type: types.BridgeTxsSettled, Txs: settledTxs})
	}

	return len(txs), nil
}

func (s *bridgeStore) GetBridgeTx(
	_ context.Context, id string,
) (*types.BridgeTransaction, error) {
	var record bridgeTxRecord
	if err := s.db.Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("bridge transfer %s not found", id)
		}
		return nil, err
	}
	tx := record.toBridgeTx()
	return &tx, nil
}

func (s *bridgeStore) GetAllBridgeTxs(
	_ context.Context,
) ([]types.BridgeTransaction, error) {
	var records []bridgeTxRecord
	if err := s.db.Find(&records, nil); err != nil {
		return nil, err
	}

	txs := make([]types.BridgeTransaction, 0, len(records))
	for _, record := range records {
		txs = append(txs, record.toBridgeTx())
	}
	return txs, nil
}

func (s *bridgeStore) GetEventChannel() <-chan types.BridgeEvent {
	return s.eventCh
}

func (s *bridgeStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the bridge db: %s", err)
	}
	return nil
}

func (s *bridgeStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}

func (s *bridgeStore) sendEvent(event types.BridgeEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}

func toBridgeTxRecord(tx types.BridgeTransaction) bridgeTxRecord {
	return bridgeTxRecord{
		ID:             tx.ID,
		FromToken:      string(tx.FromToken),
		ToToken:        string(tx.ToToken),
		Amount:         tx.Amount.String(),
		ExpectedOutput: tx.ExpectedOutput.String(),
		ActualOutput:   tx.ActualOutput.String(),
		ExchangeRate:   tx.ExchangeRate.String(),
		FeeNetwork:     tx.Fees.Network.String(),
		FeeService:     tx.Fees.Service.String(),
		FeeBridge:      tx.Fees.Bridge.String(),
		FeeTotal:       tx.Fees.Total.String(),
		Status:         string(tx.Status),
		Stage:          int(tx.Progress.Stage),
		Percentage:     tx.Progress.Percentage,
		Message:        tx.Progress.Message,
		FromAddress:    tx.FromAddress,
		ToAddress:      tx.ToAddress,
		SourceTxID:     tx.SourceTxID,
		DestTxHash:     tx.DestTxHash,
		FailureReason:  tx.FailureReason,
		CreatedAt:      tx.CreatedAt,
		UpdatedAt:      tx.UpdatedAt,
	}
}

func (r bridgeTxRecord) toBridgeTx() types.BridgeTransaction {
	return types.BridgeTransaction{
		ID:             r.ID,
		FromToken:      types.Token(r.FromToken),
		ToToken:        types.Token(r.ToToken),
		Amount:         parseDecimal(r.Amount),
		ExpectedOutput: parseDecimal(r.ExpectedOutput),
		ActualOutput:   parseDecimal(r.ActualOutput),
		ExchangeRate:   parseDecimal(r.ExchangeRate),
		Fees: types.FeeBreakdown{
			Network: parseDecimal(r.FeeNetwork),
			Service: parseDecimal(r.FeeService),
			Bridge:  parseDecimal(r.FeeBridge),
			Total:   parseDecimal(r.FeeTotal),
		},
		Status: types.BridgeStatus(r.Status),
		Progress: types.BridgeProgress{
			Stage:      types.BridgeStage(r.Stage),
			Percentage: r.Percentage,
			Message:    r.Message,
		},
		FromAddress:   r.FromAddress,
		ToAddress:     r.ToAddress,
		SourceTxID:    r.SourceTxID,
		DestTxHash:    r.DestTxHash,
		FailureReason: r.FailureReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
