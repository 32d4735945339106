package checkout

import (
	"context"
	"time"

	"fuelpay/internal/domain/transaction"

	"github.com/rs/zerolog/log"
)

// Schedule drives the adaptive polling cadence. Intervals tighten right after
// the push, when the customer is most likely to key their PIN, and relax as
// the wait drags on. The zero value is not usable; start from
// DefaultSchedule and override for tests.
type Schedule struct {
	FastInterval   time.Duration // while elapsed < FastWindow
	MediumInterval time.Duration // while elapsed < MediumWindow
	SlowInterval   time.Duration // thereafter
	FastWindow     time.Duration
	MediumWindow   time.Duration
	Deadline       time.Duration // hard wall clock from session start
}

// DefaultSchedule mirrors the production cadence: poll every second for the
// first ten, every two until thirty, every three after, give up at ninety.
func DefaultSchedule() Schedule {
	return Schedule{
		FastInterval:   1 * time.Second,
		MediumInterval: 2 * time.Second,
		SlowInterval:   3 * time.Second,
		FastWindow:     10 * time.Second,
		MediumWindow:   30 * time.Second,
		Deadline:       90 * time.Second,
	}
}

// IntervalAt returns the sleep before the next attempt given time elapsed
// since the session started.
func (s Schedule) IntervalAt(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < s.FastWindow:
		return s.FastInterval
	case elapsed < s.MediumWindow:
		return s.MediumInterval
	default:
		return s.SlowInterval
	}
}

// pollResult carries one terminal classification out of the confirmation race.
type pollResult struct {
	status     transaction.Status
	resultCode *int
	resultDesc string
	receipt    string
}

// poll queries transaction status until a terminal classification or the
// deadline. A failed query is transient: it is logged and the loop continues.
// Reaching the deadline yields a synthetic TIMEOUT result; only context
// cancellation produces an error.
func (s *Service) poll(ctx context.Context, checkoutRequestID string, onUpdate func(string)) (pollResult, error) {
	start := time.Now()
	attempt := 0

	for {
		elapsed := time.Since(start)
		if elapsed >= s.schedule.Deadline {
			log.Warn().
				Str("checkout_request_id", checkoutRequestID).
				Int("attempts", attempt).
				Dur("elapsed", elapsed).
				Msg("polling deadline reached")
			return pollResult{
				status:     transaction.StatusTimeout,
				resultDesc: "Payment confirmation timeout. Check M-Pesa messages.",
			}, nil
		}

		timer := time.NewTimer(s.schedule.IntervalAt(elapsed))
		select {
		case <-ctx.Done():
			timer.Stop()
			return pollResult{}, ctx.Err()
		case <-timer.C:
		}

		attempt++
		resp, err := s.gateway.QueryStatus(ctx, checkoutRequestID)
		if err != nil {
			if ctx.Err() != nil {
				return pollResult{}, ctx.Err()
			}
			log.Warn().Err(err).
				Str("checkout_request_id", checkoutRequestID).
				Int("attempt", attempt).
				Msg("status query failed, continuing to poll")
			continue
		}

		status := transaction.Classify(resp.ResultCode)
		if status == transaction.StatusPending {
			msg := resp.ResultDesc
			if msg == "" {
				msg = "Awaiting M-Pesa confirmation..."
			}
			onUpdate(msg)
			continue
		}

		log.Info().
			Str("checkout_request_id", checkoutRequestID).
			Str("status", string(status)).
			Int("attempts", attempt).
			Dur("elapsed", time.Since(start)).
			Msg("poller got terminal status")
		return pollResult{
			status:     status,
			resultCode: resp.ResultCode,
			resultDesc: resp.ResultDesc,
			receipt:    resp.MpesaReceiptNumber,
		}, nil
	}
}
