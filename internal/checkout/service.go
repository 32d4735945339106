package checkout

import (
	"context"
	"fmt"
	"strings"

	"fuelpay/internal/domain/transaction"
	"fuelpay/internal/provider/daraja"
	"fuelpay/internal/realtime"
	"fuelpay/internal/store/repositories"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InitiationError is a definitive rejection of the push by the gateway.
// The ledger record is already FAILED when this is returned; no confirmation
// channels are started.
type InitiationError struct {
	Message string
}

func (e *InitiationError) Error() string {
	return "payment initiation rejected: " + e.Message
}

// PaymentRequest describes one POS sale awaiting mobile-money confirmation.
// Amount is in currency units and is truncated to a whole number for the
// gateway. The POS context fields are opaque here and travel with the record.
type PaymentRequest struct {
	Amount      float64
	Phone       string
	Account     string
	Description string

	PumpID      string
	ShiftID     string
	AttendantID string
	StationID   string
}

// Gateway is the slice of the M-Pesa gateway client the checkout flow needs.
type Gateway interface {
	Push(ctx context.Context, req daraja.PushRequest) (*daraja.PushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*daraja.StatusResponse, error)
}

// RealtimeSession is an open change subscription owned by one payment flow.
type RealtimeSession interface {
	Close()
	Done() <-chan struct{}
	State() realtime.ConnectionState
}

// SubscribeFunc opens a realtime subscription for one checkout request ID.
// A nil SubscribeFunc on the Service means polling is the only channel.
type SubscribeFunc func(ctx context.Context, checkoutRequestID string, onEvent func(realtime.ChangeEvent)) (RealtimeSession, error)

// Service orchestrates one payment: initiate the push, then race the status
// poller against the realtime subscriber until one of them produces a
// terminal classification.
type Service struct {
	repo      repositories.TransactionRepository
	gateway   Gateway
	subscribe SubscribeFunc
	schedule  Schedule
}

// NewService creates the checkout service. subscribe may be nil when no
// realtime transport is configured.
func NewService(repo repositories.TransactionRepository, gateway Gateway, subscribe SubscribeFunc, schedule Schedule) *Service {
	return &Service{
		repo:      repo,
		gateway:   gateway,
		subscribe: subscribe,
		schedule:  schedule,
	}
}

// Initiate validates the request, writes a PENDING ledger record, and asks
// the gateway to push the payment prompt. Validation failures happen before
// any ledger write; a gateway rejection marks the record FAILED and returns
// an InitiationError.
func (s *Service) Initiate(ctx context.Context, req PaymentRequest) (*transaction.Transaction, error) {
	msisdn, err := transaction.NormalizeMSISDN(req.Phone)
	if err != nil {
		return nil, err
	}

	amount := int64(req.Amount) // gateway takes whole currency units
	if amount <= 0 {
		return nil, &transaction.ValidationError{Field: "amount", Message: fmt.Sprintf("must be at least 1, got %v", req.Amount)}
	}
	if strings.TrimSpace(req.Account) == "" {
		return nil, &transaction.ValidationError{Field: "account", Message: "account reference is required"}
	}

	description := req.Description
	if description == "" {
		description = "Fuel Payment"
	}

	txn, err := transaction.New("FP-"+uuid.NewString(), amount, msisdn)
	if err != nil {
		return nil, err
	}
	txn.PumpID = req.PumpID
	txn.ShiftID = req.ShiftID
	txn.AttendantID = req.AttendantID
	txn.StationID = req.StationID

	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to create ledger record: %w", err)
	}

	resp, err := s.gateway.Push(ctx, daraja.PushRequest{
		Amount:      amount,
		Phone:       msisdn,
		Account:     req.Account,
		Description: description,
		PumpID:      req.PumpID,
		ShiftID:     req.ShiftID,
		AttendantID: req.AttendantID,
		StationID:   req.StationID,
	})
	if err != nil {
		s.failInitiation(ctx, txn, fmt.Sprintf("push request failed: %v", err))
		return nil, &InitiationError{Message: err.Error()}
	}
	if !resp.Success || resp.CheckoutRequestID == "" {
		s.failInitiation(ctx, txn, resp.Message)
		return nil, &InitiationError{Message: resp.Message}
	}

	if err := s.repo.SetProviderIDs(ctx, txn.ID, resp.CheckoutRequestID, resp.MerchantRequestID); err != nil {
		// The push went out; losing the IDs would orphan the record.
		return nil, fmt.Errorf("failed to persist provider ids: %w", err)
	}
	txn.CheckoutRequestID = resp.CheckoutRequestID
	txn.MerchantRequestID = resp.MerchantRequestID

	log.Info().
		Int64("transaction_id", txn.ID).
		Str("checkout_request_id", txn.CheckoutRequestID).
		Int64("amount", amount).
		Str("phone", msisdn).
		Msg("payment initiated")
	return txn, nil
}

func (s *Service) failInitiation(ctx context.Context, txn *transaction.Transaction, message string) {
	if err := s.repo.MarkInitiationFailed(ctx, txn.ID, message); err != nil {
		log.Error().Err(err).
			Int64("transaction_id", txn.ID).
			Msg("failed to mark rejected initiation")
	}
	txn.Status = transaction.StatusFailed
	txn.ResultDesc = message
}

// Pay runs the full flow: initiate, race both confirmation channels, apply
// the single terminal ledger write, and return the outcome. onProgress
// receives interim human-readable messages and never drives the decision.
func (s *Service) Pay(ctx context.Context, req PaymentRequest, onProgress func(string)) (transaction.Outcome, error) {
	progress := func(msg string) {
		if onProgress != nil {
			onProgress(msg)
		}
	}

	progress("Sending payment request...")
	txn, err := s.Initiate(ctx, req)
	if err != nil {
		return transaction.Outcome{Kind: transaction.OutcomeFailed, Reason: err.Error()}, err
	}

	progress("Enter M-Pesa PIN on your phone...")
	res := s.awaitTerminal(ctx, txn.CheckoutRequestID, progress)
	if res == nil {
		// Caller gave up before either channel resolved.
		return transaction.Outcome{
			Kind:              transaction.OutcomeTimeout,
			CheckoutRequestID: txn.CheckoutRequestID,
			Reason:            "payment flow cancelled",
		}, ctx.Err()
	}

	s.persistTerminal(ctx, txn.CheckoutRequestID, *res)

	return transaction.OutcomeForStatus(
		res.status, txn.CheckoutRequestID, res.receipt, res.resultDesc, txn.Amount,
	), nil
}

// awaitTerminal races the poller and (when configured) the realtime
// subscriber under one cancellable scope. The first terminal classification
// wins and the loser is cancelled. Returns nil only when ctx is done first.
func (s *Service) awaitTerminal(ctx context.Context, checkoutRequestID string, progress func(string)) *pollResult {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered for both channels: the loser may still send its result after
	// the winner is drained, and must not leak a goroutine doing so.
	results := make(chan pollResult, 2)

	// The progress contract ends with the race. A cancelled poller can still
	// be unwinding from a slow status query; its late updates are dropped.
	guarded := func(msg string) {
		if raceCtx.Err() == nil {
			progress(msg)
		}
	}

	go func() {
		res, err := s.poll(raceCtx, checkoutRequestID, guarded)
		if err != nil {
			return // cancelled; the winner already reported
		}
		results <- res
	}()

	if s.subscribe != nil {
		sess, err := s.subscribe(raceCtx, checkoutRequestID, func(e realtime.ChangeEvent) {
			if !e.Status.IsTerminal() {
				return
			}
			select {
			case results <- pollResult{
				status:     e.Status,
				resultCode: e.ResultCode,
				resultDesc: e.ResultDesc,
				receipt:    e.ReceiptNumber,
			}:
			default:
			}
		})
		if err != nil {
			// Best effort: polling carries the flow alone.
			log.Warn().Err(err).
				Str("checkout_request_id", checkoutRequestID).
				Msg("realtime subscription unavailable, polling only")
		} else {
			defer sess.Close()
		}
	}

	select {
	case res := <-results:
		return &res
	case <-ctx.Done():
		return nil
	}
}

// persistTerminal applies the idempotent terminal write with a bounded retry.
// Persistence lags the decision: a store failure here is logged, not
// propagated, because the in-memory outcome is already decided.
func (s *Service) persistTerminal(ctx context.Context, checkoutRequestID string, res pollResult) {
	op := func() error {
		_, err := s.repo.ApplyTerminal(ctx, checkoutRequestID, res.status, res.resultCode, res.resultDesc, res.receipt)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		log.Error().Err(err).
			Str("checkout_request_id", checkoutRequestID).
			Str("status", string(res.status)).
			Msg("terminal ledger write failed; outcome returned from memory")
	}
}
