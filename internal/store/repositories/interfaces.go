package repositories

import (
	"context"

	"fuelpay/internal/domain/transaction"
)

// TransactionRepository defines the contract for ledger data access.
// Records are never deleted; once a row reaches a terminal status it is
// immutable.
type TransactionRepository interface {
	// Create inserts a new PENDING record and assigns its ID.
	Create(ctx context.Context, txn *transaction.Transaction) error

	// SetProviderIDs stores the gateway-assigned request IDs once, right
	// after a successful push.
	SetProviderIDs(ctx context.Context, id int64, checkoutRequestID, merchantRequestID string) error

	// FindByCheckoutID loads the record keyed by the gateway's checkout
	// request ID.
	FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error)

	// ApplyTerminal performs the single conditional PENDING -> terminal
	// transition. It reports applied=false without error when the record is
	// already terminal, so both confirmation channels may call it safely.
	ApplyTerminal(ctx context.Context, checkoutRequestID string, status transaction.Status, resultCode *int, resultDesc, receipt string) (applied bool, err error)

	// MarkInitiationFailed moves a record that never received provider IDs
	// (push rejected outright) from PENDING to FAILED.
	MarkInitiationFailed(ctx context.Context, id int64, message string) error

	// ListRecent returns the newest records for station-side listings.
	ListRecent(ctx context.Context, limit, offset int) ([]*transaction.Transaction, error)
}
