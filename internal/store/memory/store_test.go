package memory

import (
	"context"
	"testing"

	"fuelpay/internal/domain/transaction"
)

func newPending(t *testing.T, s *Store, checkoutID string) *transaction.Transaction {
	t.Helper()
	txn, err := transaction.New("FP-test", 100, "254712345678")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Create(context.Background(), txn); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.SetProviderIDs(context.Background(), txn.ID, checkoutID, "mr_"+checkoutID); err != nil {
		t.Fatalf("SetProviderIDs: %v", err)
	}
	return txn
}

func TestApplyTerminalIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newPending(t, s, "ws_1")

	code := 0
	applied, err := s.ApplyTerminal(ctx, "ws_1", transaction.StatusSuccess, &code, "Processed", "QAX123")
	if err != nil || !applied {
		t.Fatalf("first ApplyTerminal: applied=%v err=%v", applied, err)
	}

	// A late report from the losing channel must be a no-op.
	cancelCode := 1032
	applied, err = s.ApplyTerminal(ctx, "ws_1", transaction.StatusCancelled, &cancelCode, "Cancelled", "")
	if err != nil {
		t.Fatalf("second ApplyTerminal: %v", err)
	}
	if applied {
		t.Fatal("second terminal write should not apply")
	}

	txn, err := s.FindByCheckoutID(ctx, "ws_1")
	if err != nil {
		t.Fatalf("FindByCheckoutID: %v", err)
	}
	if txn.Status != transaction.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", txn.Status)
	}
	if txn.ReceiptNumber != "QAX123" {
		t.Fatalf("receipt = %q, want QAX123", txn.ReceiptNumber)
	}
}

func TestApplyTerminalRejectsNonTerminal(t *testing.T) {
	s := NewStore()
	newPending(t, s, "ws_2")
	if _, err := s.ApplyTerminal(context.Background(), "ws_2", transaction.StatusPending, nil, "", ""); err == nil {
		t.Fatal("PENDING should be rejected as a terminal status")
	}
}

func TestApplyTerminalUnknownTransaction(t *testing.T) {
	s := NewStore()
	if _, err := s.ApplyTerminal(context.Background(), "ws_missing", transaction.StatusFailed, nil, "", ""); err == nil {
		t.Fatal("unknown checkout id should error")
	}
}

func TestSetProviderIDsImmutable(t *testing.T) {
	s := NewStore()
	txn := newPending(t, s, "ws_3")
	if err := s.SetProviderIDs(context.Background(), txn.ID, "ws_other", "mr_other"); err == nil {
		t.Fatal("provider ids must be immutable once set")
	}
}

func TestListRecentOrdersNewestFirst(t *testing.T) {
	s := NewStore()
	newPending(t, s, "ws_a")
	newPending(t, s, "ws_b")
	newPending(t, s, "ws_c")

	got, err := s.ListRecent(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].CheckoutRequestID != "ws_c" || got[1].CheckoutRequestID != "ws_b" {
		t.Fatalf("unexpected order: %s, %s", got[0].CheckoutRequestID, got[1].CheckoutRequestID)
	}
}
