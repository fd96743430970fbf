package inmemorystore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/types"
)

type txStore struct {
	lock    *sync.RWMutex
	txs     map[string]types.Transaction
	eventCh chan types.TransactionEvent
}

func NewTransactionStore() types.TransactionStore {
	return &txStore{
		lock:    &sync.RWMutex{},
		txs:     make(map[string]types.Transaction),
		eventCh: make(chan types.TransactionEvent, 100),
	}
}

func (s *txStore) AddTransactions(
	_ context.Context, txs []types.Transaction,
) (int, error) {
	s.lock.Lock()
	addedTxs := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := s.txs[tx.ID]; ok {
			continue
		}
		s.txs[tx.ID] = tx
		addedTxs = append(addedTxs, tx)
	}
	s.lock.Unlock()

	if len(addedTxs) > 0 {
		go s.sendEvent(types.TransactionEvent{Type: types.TxsAdded, Txs: addedTxs})
	}
	return len(addedTxs), nil
}

func (s *txStore) UpdateTransactions(
	_ context.Context, txs []types.Transaction,
) (int, error) {
	s.lock.Lock()
	updatedTxs := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := s.txs[tx.ID]; !ok {
			s.lock.Unlock()
			return -1, fmt.Errorf("transaction %s not found", tx.ID)
		}
		s.txs[tx.ID] = tx
		updatedTxs = append(updatedTxs, tx)
	}
	s.lock.Unlock()

	if len(updatedTxs) > 0 {
		go s.sendEvent(types.TransactionEvent{Type: types.TxsUpdated, Txs: updatedTxs})
	}
	return len(updatedTxs), nil
}

func (s *txStore) GetTransactions(
	_ context.Context, ids []string,
) ([]types.Transaction, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	txs := make([]types.Transaction, 0, len(ids))
	for _, id := range ids {
		if tx, ok := s.txs[id]; ok {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (s *txStore) GetAllTransactions(_ context.Context) ([]types.Transaction, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	all := make([]types.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		all = append(all, tx)
	}
	return all, nil
}

func (s *txStore) Clean(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.txs = make(map[string]types.Transaction)
	return nil
}

func (s *txStore) GetEventChannel() <-chan types.TransactionEvent {
	return s.eventCh
}

func (s *txStore) Close() {}

func (s *txStore) sendEvent(event types.TransactionEvent) {
	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}
