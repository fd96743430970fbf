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
	txStoreDir = "transactions"
)

type txStore struct {
	db      *badgerhold.Store
	lock    *sync.Mutex
	eventCh chan types.TransactionEvent
}

type txRecord struct {
	ID        string
	Type      string
	Amount    string
	Token     string
	Status    string
	TxHash    string
	BridgeID  string
	CreatedAt time.Time
}

func NewTransactionStore(dir string, logger badger.Logger) (types.TransactionStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, txStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction store: %s", err)
	}
	return &txStore{
		db:      badgerDb,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.TransactionEvent, 100),
	}, nil
}

func (s *txStore) AddTransactions(
	_ context.Context, txs []types.Transaction,
) (int, error) {
	addedTxs := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		record := toTxRecord(tx)
		if err := s.db.Insert(tx.ID, &record); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				continue
			}
			return -1, err
		}
		addedTxs = append(addedTxs, tx)
	}

	if len(addedTxs) > 0 {
		go s.sendEvent(types.TransactionEvent{Type: types.TxsAdded, Txs: addedTxs})
	}

	return len(addedTxs), nil
}

func (s *txStore) UpdateTransactions(
	_ context.Context, txs []types.Transaction,
) (int, error) {
	for _, tx := range txs {
		record := toTxRecord(tx)
		if err := s.db.Upsert(tx.ID, &record); err != nil {
			return -1, err
		}
	}

	go s.sendEvent(types.TransactionEvent{Type: types.TxsUpdated, Txs: txs})
	return len(txs), nil
}

func (s *txStore) GetTransactions(
	_ context.Context, ids []string,
) ([]types.Transaction, error) {
	var txs []types.Transaction
	for _, id := range ids {
		var record txRecord
		if err := s.db.Get(id, &record); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return nil, err
		}
		txs = append(txs, record.toTransaction())
	}
	return txs, nil
}

func (s *txStore) GetAllTransactions(_ context.Context) ([]types.Transaction, error) {
	var records []txRecord
	if err := s.db.Find(&records, nil); err != nil {
		return nil, err
	}

	txs := make([]types.Transaction, 0, len(records))
	for _, record := range records {
		txs = append(txs, record.toTransaction())
	}
	return txs, nil
}

func (s *txStore) GetEventChannel() <-chan types.TransactionEvent {
	return s.eventCh
}

func (s *txStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the transaction db: %s", err)
	}
	return nil
}

func (s *txStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}

func (s *txStore) sendEvent(event types.TransactionEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}

func toTxRecord(tx types.Transaction) txRecord {
	return txRecord{
		ID:        tx.ID,
		Type:      string(tx.Type),
		Amount:    tx.Amount.String(),
		Token:     string(tx.Token),
		Status:    tx.Status,
		TxHash:    tx.TxHash,
		BridgeID:  tx.BridgeID,
		CreatedAt: tx.CreatedAt,
	}
}

func (r txRecord) toTransaction() types.Transaction {
	return types.Transaction{
		ID:        r.ID,
		Type:      types.TxType(r.Type),
		Amount:    parseDecimal(r.Amount),
		Token:     types.Token(r.Token),
		Status:    r.Status,
		TxHash:    r.TxHash,
		BridgeID:  r.BridgeID,
		CreatedAt: r.CreatedAt,
	}
}
