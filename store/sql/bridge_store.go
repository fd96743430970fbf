package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/shopspring/decimal"
)

const (
	insertBridgeTx = `
		INSERT INTO bridge_tx (
			id, from_token, to_token, amount, expected_output, actual_output,
			exchange_rate, fee_network, fee_service, fee_bridge, fee_total,
			status, stage, percentage, message, from_address, to_address,
			source_txid, dest_tx_hash, failure_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	updateBridgeTx = `
		UPDATE bridge_tx SET
			actual_output = ?, status = ?, stage = ?, percentage = ?,
			message = ?, source_txid = ?, dest_tx_hash = ?, failure_reason = ?,
			updated_at = ?
		WHERE id = ?`
	selectBridgeTx     = selectBridgeTxs + ` WHERE id = ?`
	selectBridgeTxs    = `
		SELECT id, from_token, to_token, amount, expected_output, actual_output,
			exchange_rate, fee_network, fee_service, fee_bridge, fee_total,
			status, stage, percentage, message, from_address, to_address,
			source_txid, dest_tx_hash, failure_reason, created_at, updated_at
		FROM bridge_tx`
)

type bridgeStore struct {
	db      *sql.DB
	lock    *sync.Mutex
	eventCh chan types.BridgeEvent
}

func NewBridgeStore(db *sql.DB) types.BridgeStore {
	return &bridgeStore{
		db:      db,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.BridgeEvent, 100),
	}
}

func (s *bridgeStore) AddBridgeTxs(
	ctx context.Context, txs []types.BridgeTransaction,
) (int, error) {
	addedTxs := make([]types.BridgeTransaction, 0, len(txs))
	txBody := func(sqlTx *sql.Tx) error {
		for _, tx := range txs {
			if _, err := sqlTx.ExecContext(
				ctx, insertBridgeTx,
				tx.ID, string(tx.FromToken), string(tx.ToToken),
				tx.Amount.String(), tx.ExpectedOutput.String(),
				tx.ActualOutput.String(), tx.ExchangeRate.String(),
				tx.Fees.Network.String(), tx.Fees.Service.String(),
				tx.Fees.Bridge.String(), tx.Fees.Total.String(),
				string(tx.Status), int(tx.Progress.Stage), tx.Progress.Percentage,
				tx.Progress.Message, tx.FromAddress, tx.ToAddress,
				tx.SourceTxID, tx.DestTxHash, tx.FailureReason,
				tx.CreatedAt.Unix(), tx.UpdatedAt.Unix(),
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
		go s.sendEvent(types.BridgeEvent{Type: types.BridgeTxsAdded, Txs: addedTxs})
	}

	return len(addedTxs), nil
}

func (s *bridgeStore) UpdateBridgeTxs(
	ctx context.Context, txs []types.BridgeTransaction,
) (int, error) {
	updatedTxs := make([]types.BridgeTransaction, 0, len(txs))
	settledTxs := make([]types.BridgeTransaction, 0, len(txs))
	txBody := func(sqlTx *sql.Tx) error {
		for _, tx := range txs {
			if _, err := sqlTx.ExecContext(
				ctx, updateBridgeTx,
				tx.ActualOutput.String(), string(tx.Status), int(tx.Progress.Stage),
				tx.Progress.Percentage, tx.Progress.Message,
				tx.SourceTxID, tx.DestTxHash, tx.FailureReason,
				tx.UpdatedAt.Unix(), tx.ID,
			); err != nil {
				return err
			}
			if tx.Status == types.BridgeCompleted {
				settledTxs = append(settledTxs, tx)
			} else {
				updatedTxs = append(updatedTxs, tx)
			}
		}
		return nil
	}
	if err := execTx(ctx, s.db, txBody); err != nil {
		return -1, err
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
	ctx context.Context, id string,
) (*types.BridgeTransaction, error) {
	row := s.db.QueryRowContext(ctx, selectBridgeTx, id)
	tx, err := scanBridgeTx(row)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *bridgeStore) GetAllBridgeTxs(
	ctx context.Context,
) ([]types.BridgeTransaction, error) {
	rows, err := s.db.QueryContext(ctx, selectBridgeTxs)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()

	var txs []types.BridgeTransaction
	for rows.Next() {
		tx, err := scanBridgeTx(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *bridgeStore) GetEventChannel() <-chan types.BridgeEvent {
	return s.eventCh
}

func (s *bridgeStore) Clean(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM bridge_tx"); err != nil {
		return err
	}
	// nolint:all
	s.db.ExecContext(ctx, "VACUUM")
	return nil
}

func (s *bridgeStore) Close() {
	// nolint:all
	s.db.Close()
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBridgeTx(row rowScanner) (types.BridgeTransaction, error) {
	var tx types.BridgeTransaction
	var fromToken, toToken, status string
	var amount, expectedOutput, actualOutput, exchangeRate string
	var feeNetwork, feeService, feeBridge, feeTotal string
	var stage int
	var createdAt, updatedAt int64
	if err := row.Scan(
		&tx.ID, &fromToken, &toToken, &amount, &expectedOutput, &actualOutput,
		&exchangeRate, &feeNetwork, &feeService, &feeBridge, &feeTotal,
		&status, &stage, &tx.Progress.Percentage, &tx.Progress.Message,
		&tx.FromAddress, &tx.ToAddress, &tx.SourceTxID, &tx.DestTxHash,
		&tx.FailureReason, &createdAt, &updatedAt,
	); err != nil {
		return tx, err
	}
	tx.FromToken = types.Token(fromToken)
	tx.ToToken = types.Token(toToken)
	tx.Amount = mustDecimal(amount)
	tx.ExpectedOutput = mustDecimal(expectedOutput)
	tx.ActualOutput = mustDecimal(actualOutput)
	tx.ExchangeRate = mustDecimal(exchangeRate)
	tx.Fees = types.FeeBreakdown{
		Network: mustDecimal(feeNetwork),
		Service: mustDecimal(feeService),
		Bridge:  mustDecimal(feeBridge),
		Total:   mustDecimal(feeTotal),
	}
	tx.Status = types.BridgeStatus(status)
	tx.Progress.Stage = types.BridgeStage(stage)
	tx.CreatedAt = time.Unix(createdAt, 0)
	tx.UpdatedAt = time.Unix(updatedAt, 0)
	return tx, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
