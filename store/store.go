package store

import (
	"context"
	"fmt"

	inmemorystore "github.com/bitcoinyieldbridge/go-sdk/store/inmemory"
	kvstore "github.com/bitcoinyieldbridge/go-sdk/store/kv"
	sqlstore "github.com/bitcoinyieldbridge/go-sdk/store/sql"
	"github.com/bitcoinyieldbridge/go-sdk/types"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	StoreType string
	BaseDir   string
}

type service struct {
	bridgeStore types.BridgeStore
	txStore     types.TransactionStore
}

// NewStore builds the storage backend selected by the config. An empty store
// type selects the in-memory backend.
func NewStore(cfg Config) (types.Store, error) {
	switch cfg.StoreType {
	case types.InMemoryStore, "":
		return &service{
			bridgeStore: inmemorystore.NewBridgeStore(),
			txStore:     inmemorystore.NewTransactionStore(),
		}, nil
	case types.KVStore:
		bridgeStore, err := kvstore.NewBridgeStore(cfg.BaseDir, nil)
		if err != nil {
			return nil, err
		}
		txStore, err := kvstore.NewTransactionStore(cfg.BaseDir, nil)
		if err != nil {
			bridgeStore.Close()
			return nil, err
		}
		return &service{bridgeStore: bridgeStore, txStore: txStore}, nil
	case types.SQLStore:
		db, err := sqlstore.OpenDb(cfg.BaseDir)
		if err != nil {
			return nil, err
		}
		return &service{
			bridgeStore: sqlstore.NewBridgeStore(db),
			txStore:     sqlstore.NewTransactionStore(db),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.StoreType)
	}
}

func (s *service) BridgeStore() types.BridgeStore {
	return s.bridgeStore
}

func (s *service) TransactionStore() types.TransactionStore {
	return s.txStore
}

func (s *service) Clean(ctx context.Context) {
	if err := s.bridgeStore.Clean(ctx); err != nil {
		log.Warnf("store: failed to clean bridge store: %s", err)
	}
	if err := s.txStore.Clean(ctx); err != nil {
		log.Warnf("store: failed to clean transaction store: %s", err)
	}
}

func (s *service) Close() {
	s.bridgeStore.Close()
	s.txStore.Close()
}
