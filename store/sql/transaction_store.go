package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/types"
)

const (
	insertTx = `
		INSERT INTO tx (id, type, amount, token, status, tx_hash, bridge_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	updateTx = `
		UPDATE tx SET status = ?, tx_hash = ? WHERE id = ?`
	selectTxs = `
		SELECT id, type, amount, token, status, tx_hash, bridge_id, created_at FROM tx`
)

type txStore struct {
	db      *sql.DB
	lock    *sync.Mutex
	eventCh chan types.TransactionEvent
}

func NewTransactionStore(db *sql.DB) types.TransactionStore {
	return &txStore{
		db:      db,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.TransactionEvent, 100),
	}
}

func (s *txStore) AddTransactions(
	ctx context.Context, txs []types.Transaction,
) (int, error) {
	addedTxs := make([]types.Transaction, 0, len(txs))
	txBody := func(sqlTx *sql.Tx) error {
		for _, tx := range txs {
			if _, err := sqlTx.ExecContext(
				ctx, insertTx,
				tx.ID, string(tx.Type), tx.Amount.String(), string(tx.Token),
				tx.Status, tx.TxHash, tx.BridgeID, tx.CreatedAt.Unix(),
			); err != nil {
				if strings.Contains(err.Error(), "UNIQUE constraint failed") {
					continue
				}
				return err
			}
			addedTxs = append(addedTxs, tx)
		}
		return nil
	}
	if err := execTx(ctx, s.db, txBody); err != nil {
		return -1, err
	}

	if len(addedTxs) > 0 {
		go s.sendEvent(types.TransactionEvent{Type: types.TxsAdded, Txs: addedTxs})
	}

	return len(addedTxs), nil
}

func (s *txStore) UpdateTransactions(
	ctx context.Context, txs []types.Transaction,
) (int, error) {
	txBody := func(sqlTx *sql.Tx) error {
		for _, tx := range txs {
			if _, err := sqlTx.ExecContext(
				ctx, updateTx, tx.Status, tx.TxHash, tx.ID,
			); err != nil {
				return err
			}
		}
		return nil
	}
	if err := execTx(ctx, s.db, txBody); err != nil {
		return -1, err
	}

	go s.sendEvent(types.TransactionEvent{Type: types.TxsUpdated, Txs: txs})
	return len(txs), nil
}

func (s *txStore) GetTransactions(
	ctx context.Context, ids []string,
) ([]types.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(
		ctx, selectTxs+" WHERE id IN ("+placeholders+")", args...,
	)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()
	return readTxRows(rows)
}

func (s *txStore) GetAllTransactions(ctx context.Context) ([]types.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, selectTxs)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()
	return readTxRows(rows)
}

func (s *txStore) GetEventChannel() <-chan types.TransactionEvent {
	return s.eventCh
}

func (s *txStore) Clean(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tx"); err != nil {
		return err
	}
	// nolint:all
	s.db.ExecContext(ctx, "VACUUM")
	return nil
}

func (s *txStore) Close() {
	// nolint:all
	s.db.Close()
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

func readTxRows(rows *sql.Rows) ([]types.Transaction, error) {
	var txs []types.Transaction
	for rows.Next() {
		var tx types.Transaction
		var txType, amount, token string
		var createdAt int64
		if err := rows.Scan(
			&tx.ID, &txType, &amount, &token, &tx.Status, &tx.TxHash,
			&tx.BridgeID, &createdAt,
		); err != nil {
			return nil, err
		}
		tx.Type = types.TxType(txType)
		tx.Amount = mustDecimal(amount)
		tx.Token = types.Token(token)
		tx.CreatedAt = time.Unix(createdAt, 0)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
