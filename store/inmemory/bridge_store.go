package inmemorystore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/types"
)

type bridgeStore struct {
	lock    *sync.RWMutex
	txs     map[string]types.BridgeTransaction
	eventCh chan types.BridgeEvent
}

func NewBridgeStore() types.BridgeStore {
	return &bridgeStore{
		lock:    &sync.RWMutex{},
		txs:     make(map[string]types.BridgeTransaction),
		eventCh: make(chan types.BridgeEvent, 100),
	}
}

func (s *bridgeStore) AddBridgeTxs(
	_ context.Context, txs []types.BridgeTransaction,
) (int, error) {
	s.lock.Lock()
	addedTxs := make([]types.BridgeTransaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := s.txs[tx.ID]; ok {
			continue
		}
		s.txs[tx.ID] = tx
		addedTxs = append(addedTxs, tx)
	}
	s.lock.Unlock()

	if len(addedTxs) > 0 {
		go s.sendEvent(types.BridgeEvent{Type: types.BridgeTxsAdded, Txs: addedTxs})
	}
	return len(addedTxs), nil
}

func (s *bridgeStore) UpdateBridgeTxs(
	_ context.Context, txs []types.BridgeTransaction,
) (int, error) {
	s.lock.Lock()
	updatedTxs := make([]types.BridgeTransaction, 0, len(txs))
	settledTxs := make([]types.BridgeTransaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := s.txs[tx.ID]; !ok {
			s.lock.Unlock()
			return -1, fmt.Errorf("bridge transfer %s not found", tx.ID)
		}
		s.txs[tx.ID] = tx
		if tx.Status == types.BridgeCompleted {
			settledTxs = append(settledTxs, tx)
		} else {
			updatedTxs = append(updatedTxs, tx)
		}
	}
	s.lock.Unlock()

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
	s.lock.RLock()
	defer s.lock.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("bridge transfer %s not found", id)
	}
	return &tx, nil
}

func (s *bridgeStore) GetAllBridgeTxs(
	_ context.Context,
) ([]types.BridgeTransaction, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	all := make([]types.BridgeTransaction, 0, len(s.txs))
	for _, tx := range s.txs {
		all = append(all, tx)
	}
	return all, nil
}

func (s *bridgeStore) Clean(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.txs = make(map[string]types.BridgeTransaction)
	return nil
}

func (s *bridgeStore) GetEventChannel() <-chan types.BridgeEvent {
	return s.eventCh
}

func (s *bridgeStore) Close() {}

func (s *bridgeStore) sendEvent(event types.BridgeEvent) {
	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}
