package postgres

import (
	"context"
	"errors"
	"fmt"

	"fuelpay/internal/domain/transaction"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionStore is the pgx-backed ledger. It satisfies
// repositories.TransactionRepository.
type TransactionStore struct {
	db *pgxpool.Pool
}

func NewTransactionStore(db *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{db: db}
}

const txnColumns = `id, sale_ref, checkout_request_id, merchant_request_id, amount, phone_number,
	status, result_code, result_desc, mpesa_receipt_number,
	pump_id, shift_id, attendant_id, station_id, created_at, updated_at`

// Create inserts a new PENDING record and fills in the assigned ID.
func (s *TransactionStore) Create(ctx context.Context, txn *transaction.Transaction) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO mpesa_transactions (
			sale_ref, amount, phone_number, status,
			pump_id, shift_id, attendant_id, station_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at, updated_at`,
		txn.SaleRef, txn.Amount, txn.MSISDN, string(txn.Status),
		txn.PumpID, txn.ShiftID, txn.AttendantID, txn.StationID,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
}

// SetProviderIDs records the gateway request IDs. They are written only when
// still empty; the IDs are immutable once set.
func (s *TransactionStore) SetProviderIDs(ctx context.Context, id int64, checkoutRequestID, merchantRequestID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE mpesa_transactions
		   SET checkout_request_id = $2,
		       merchant_request_id = $3,
		       updated_at = now()
		 WHERE id = $1
		   AND (checkout_request_id IS NULL OR checkout_request_id = '')`,
		id, checkoutRequestID, merchantRequestID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d not found or provider ids already set", id)
	}
	return nil
}

// FindByCheckoutID loads one record by the gateway's checkout request ID.
func (s *TransactionStore) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+txnColumns+`
		  FROM mpesa_transactions
		 WHERE checkout_request_id = $1`,
		checkoutRequestID,
	)
	return scanTransaction(row)
}

// ApplyTerminal is the single conditional PENDING -> terminal write. The
// WHERE status='PENDING' clause is the arbitration rule between the poller
// and the realtime subscriber: both may call this, only the first write
// lands, and the second returns applied=false with no error.
func (s *TransactionStore) ApplyTerminal(ctx context.Context, checkoutRequestID string, status transaction.Status, resultCode *int, resultDesc, receipt string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("status %s is not terminal", status)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE mpesa_transactions
		   SET status = $2,
		       result_code = COALESCE($3, result_code),
		       result_desc = COALESCE(NULLIF($4,''), result_desc),
		       mpesa_receipt_number = COALESCE(NULLIF($5,''), mpesa_receipt_number),
		       updated_at = now()
		 WHERE checkout_request_id = $1
		   AND status = 'PENDING'`,
		checkoutRequestID, string(status), resultCode, resultDesc, receipt,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// No transition happened: either the row is already terminal (fine) or
	// it does not exist (an error worth surfacing).
	var existing string
	err = s.db.QueryRow(ctx,
		`SELECT status FROM mpesa_transactions WHERE checkout_request_id = $1`,
		checkoutRequestID,
	).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("transaction %s not found", checkoutRequestID)
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// MarkInitiationFailed transitions a record that never got provider IDs.
func (s *TransactionStore) MarkInitiationFailed(ctx context.Context, id int64, message string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE mpesa_transactions
		   SET status = 'FAILED',
		       result_desc = $2,
		       updated_at = now()
		 WHERE id = $1
		   AND status = 'PENDING'`,
		id, message,
	)
	return err
}

// ListRecent returns the newest records first.
func (s *TransactionStore) ListRecent(ctx context.Context, limit, offset int) ([]*transaction.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+txnColumns+`
		  FROM mpesa_transactions
		 ORDER BY id DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*transaction.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var (
		txn    transaction.Transaction
		status string
	)
	var checkoutID, merchantID, resultDesc, receipt, pump, shift, attendant, station *string
	err := row.Scan(
		&txn.ID, &txn.SaleRef, &checkoutID, &merchantID, &txn.Amount, &txn.MSISDN,
		&status, &txn.ResultCode, &resultDesc, &receipt,
		&pump, &shift, &attendant, &station,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Status = transaction.Status(status)
	deref := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	deref(&txn.CheckoutRequestID, checkoutID)
	deref(&txn.MerchantRequestID, merchantID)
	deref(&txn.ResultDesc, resultDesc)
	deref(&txn.ReceiptNumber, receipt)
	deref(&txn.PumpID, pump)
	deref(&txn.ShiftID, shift)
	deref(&txn.AttendantID, attendant)
	deref(&txn.StationID, station)
	return &txn, nil
}
