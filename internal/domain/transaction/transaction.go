package transaction

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of an M-Pesa transaction record.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusSuccess           Status = "SUCCESS"
	StatusCancelled         Status = "CANCELLED"
	StatusInsufficientFunds Status = "INSUFFICIENT_FUNDS"
	StatusTimeout           Status = "TIMEOUT"
	StatusFailed            Status = "FAILED"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	return s != "" && s != StatusPending
}

// Transaction is the ledger record for one STK push attempt.
// Provider IDs are assigned once by the gateway and immutable after that;
// ReceiptNumber is set only on SUCCESS.
type Transaction struct {
	ID                int64
	SaleRef           string
	CheckoutRequestID string
	MerchantRequestID string
	Amount            int64
	MSISDN            string
	Status            Status
	ResultCode        *int
	ResultDesc        string
	ReceiptNumber     string

	// POS context, opaque to the payment flow.
	PumpID      string
	ShiftID     string
	AttendantID string
	StationID   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a PENDING transaction with validation.
func New(saleRef string, amount int64, msisdn string) (*Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %d", amount)
	}
	if strings.TrimSpace(saleRef) == "" {
		return nil, fmt.Errorf("sale reference is required")
	}
	now := time.Now()
	return &Transaction{
		SaleRef:   saleRef,
		Amount:    amount,
		MSISDN:    msisdn,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransitionTo reports whether the record may move to next. The only
// permitted moves are PENDING to a terminal status; terminal records never
// mutate again.
func (t *Transaction) CanTransitionTo(next Status) bool {
	return t.Status == StatusPending && next.IsTerminal()
}

// OutcomeKind discriminates the variants of Outcome.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeTimeout   OutcomeKind = "timeout"
)

// Outcome is the terminal result of one payment flow, discriminated by Kind.
// Receipt and Amount are populated for OutcomeSuccess; Reason for
// OutcomeFailed and OutcomeCancelled.
type Outcome struct {
	Kind              OutcomeKind `json:"kind"`
	CheckoutRequestID string      `json:"checkoutRequestId,omitempty"`
	Receipt           string      `json:"receipt,omitempty"`
	Amount            int64       `json:"amount,omitempty"`
	Reason            string      `json:"reason,omitempty"`
}

// OutcomeForStatus maps a terminal status onto the Outcome union.
func OutcomeForStatus(status Status, checkoutRequestID, receipt, reason string, amount int64) Outcome {
	switch status {
	case StatusSuccess:
		return Outcome{Kind: OutcomeSuccess, CheckoutRequestID: checkoutRequestID, Receipt: receipt, Amount: amount}
	case StatusCancelled:
		return Outcome{Kind: OutcomeCancelled, CheckoutRequestID: checkoutRequestID, Reason: reason}
	case StatusTimeout:
		return Outcome{Kind: OutcomeTimeout, CheckoutRequestID: checkoutRequestID, Reason: reason}
	default:
		return Outcome{Kind: OutcomeFailed, CheckoutRequestID: checkoutRequestID, Reason: reason}
	}
}
