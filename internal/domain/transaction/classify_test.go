package transaction

import "testing"

func TestClassify(t *testing.T) {
	code := func(n int) *int { return &n }

	cases := []struct {
		name string
		code *int
		want Status
	}{
		{"success", code(0), StatusSuccess},
		{"user cancelled", code(1032), StatusCancelled},
		{"insufficient funds", code(1), StatusInsufficientFunds},
		{"provider timeout", code(1037), StatusTimeout},
		{"unknown code", code(9999), StatusFailed},
		{"no response yet", nil, StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.code); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.code, got, tc.want)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusSuccess, StatusCancelled, StatusInsufficientFunds, StatusTimeout, StatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StatusPending.IsTerminal() {
		t.Error("PENDING should not be terminal")
	}
}

func TestTransactionTransitions(t *testing.T) {
	txn, err := New("SALE1", 100, "254712345678")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if txn.Status != StatusPending {
		t.Fatalf("new transaction status = %s, want PENDING", txn.Status)
	}
	if !txn.CanTransitionTo(StatusSuccess) {
		t.Error("PENDING -> SUCCESS should be allowed")
	}
	if txn.CanTransitionTo(StatusPending) {
		t.Error("PENDING -> PENDING should not be allowed")
	}

	txn.Status = StatusSuccess
	for _, next := range []Status{StatusCancelled, StatusFailed, StatusTimeout} {
		if txn.CanTransitionTo(next) {
			t.Errorf("SUCCESS -> %s should not be allowed", next)
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("SALE1", 0, "254712345678"); err == nil {
		t.Error("zero amount should be rejected")
	}
	if _, err := New("", 100, "254712345678"); err == nil {
		t.Error("empty sale reference should be rejected")
	}
}
