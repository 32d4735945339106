// Package memory holds an in-memory TransactionRepository used by tests and
// local sandboxes. It enforces the same PENDING -> terminal guard as the
// Postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fuelpay/internal/domain/transaction"
)

type Store struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*transaction.Transaction
}

func NewStore() *Store {
	return &Store{byID: make(map[int64]*transaction.Transaction)}
}

func (s *Store) Create(_ context.Context, txn *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	txn.ID = s.nextID
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	cp := *txn
	s.byID[txn.ID] = &cp
	return nil
}

func (s *Store) SetProviderIDs(_ context.Context, id int64, checkoutRequestID, merchantRequestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("transaction %d not found", id)
	}
	if txn.CheckoutRequestID != "" {
		return fmt.Errorf("provider ids already set for transaction %d", id)
	}
	txn.CheckoutRequestID = checkoutRequestID
	txn.MerchantRequestID = merchantRequestID
	txn.UpdatedAt = time.Now()
	return nil
}

func (s *Store) FindByCheckoutID(_ context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.lookup(checkoutRequestID)
	if txn == nil {
		return nil, fmt.Errorf("transaction %s not found", checkoutRequestID)
	}
	cp := *txn
	return &cp, nil
}

func (s *Store) ApplyTerminal(_ context.Context, checkoutRequestID string, status transaction.Status, resultCode *int, resultDesc, receipt string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("status %s is not terminal", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.lookup(checkoutRequestID)
	if txn == nil {
		return false, fmt.Errorf("transaction %s not found", checkoutRequestID)
	}
	if txn.Status.IsTerminal() {
		return false, nil // already decided, safe no-op
	}
	txn.Status = status
	if resultCode != nil {
		code := *resultCode
		txn.ResultCode = &code
	}
	if resultDesc != "" {
		txn.ResultDesc = resultDesc
	}
	if receipt != "" {
		txn.ReceiptNumber = receipt
	}
	txn.UpdatedAt = time.Now()
	return true, nil
}

func (s *Store) MarkInitiationFailed(_ context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("transaction %d not found", id)
	}
	if txn.Status != transaction.StatusPending {
		return nil
	}
	txn.Status = transaction.StatusFailed
	txn.ResultDesc = message
	txn.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListRecent(_ context.Context, limit, offset int) ([]*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*transaction.Transaction, 0, len(s.byID))
	for _, txn := range s.byID {
		cp := *txn
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// FindByID is a test helper for records that never received provider IDs.
func (s *Store) FindByID(id int64) (*transaction.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	cp := *txn
	return &cp, true
}

func (s *Store) lookup(checkoutRequestID string) *transaction.Transaction {
	if checkoutRequestID == "" {
		return nil
	}
	for _, txn := range s.byID {
		if txn.CheckoutRequestID == checkoutRequestID {
			return txn
		}
	}
	return nil
}
