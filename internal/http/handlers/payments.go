package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fuelpay/internal/checkout"
	"fuelpay/internal/domain/transaction"
	middlewarex "fuelpay/internal/http/middleware"
	"fuelpay/internal/store/repositories"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type paymentReq struct {
	Amount      float64 `json:"amount"`
	Phone       string  `json:"phone"`
	Account     string  `json:"account"`
	Description string  `json:"description"`
	PumpID      string  `json:"pump_id,omitempty"`
	ShiftID     string  `json:"shift_id,omitempty"`
	AttendantID string  `json:"attendant_id,omitempty"`
	StationID   string  `json:"station_id,omitempty"`
}

func (in *paymentReq) toRequest(ctx context.Context) checkout.PaymentRequest {
	req := checkout.PaymentRequest{
		Amount:      in.Amount,
		Phone:       in.Phone,
		Account:     in.Account,
		Description: in.Description,
		PumpID:      in.PumpID,
		ShiftID:     in.ShiftID,
		AttendantID: in.AttendantID,
		StationID:   in.StationID,
	}
	if req.StationID == "" {
		if station, ok := middlewarex.StationID(ctx); ok {
			req.StationID = station
		}
	}
	return req
}

// Pay runs the full confirmation flow and blocks until a terminal outcome.
// The response is the Outcome union; a validation failure is a 400 and an
// outright gateway rejection a 502.
func Pay(svc *checkout.Service, deadline time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in paymentReq
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		// Slack past the poll deadline so a decided outcome always makes it
		// back to the terminal.
		ctx, cancel := context.WithTimeout(r.Context(), deadline+15*time.Second)
		defer cancel()

		out, err := svc.Pay(ctx, in.toRequest(r.Context()), nil)
		if err != nil {
			var ve *transaction.ValidationError
			if errors.As(err, &ve) {
				http.Error(w, ve.Error(), http.StatusBadRequest)
				return
			}
			var ie *checkout.InitiationError
			if errors.As(err, &ie) {
				writeJSON(w, http.StatusBadGateway, out)
				return
			}
			log.Error().Err(err).Msg("payment flow failed")
			http.Error(w, "payment failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// Initiate fires the push and returns at once; the caller follows up via
// GET /payments/{checkoutRequestID} or its own realtime subscription.
func Initiate(svc *checkout.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in paymentReq
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
		defer cancel()

		txn, err := svc.Initiate(ctx, in.toRequest(r.Context()))
		if err != nil {
			var ve *transaction.ValidationError
			if errors.As(err, &ve) {
				http.Error(w, ve.Error(), http.StatusBadRequest)
				return
			}
			var ie *checkout.InitiationError
			if errors.As(err, &ie) {
				http.Error(w, ie.Message, http.StatusBadGateway)
				return
			}
			log.Error().Err(err).Msg("payment initiation failed")
			http.Error(w, "initiation failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"checkoutRequestId": txn.CheckoutRequestID,
			"merchantRequestId": txn.MerchantRequestID,
			"status":            txn.Status,
		})
	}
}

// Get returns one ledger record by checkout request ID.
func Get(repo repositories.TransactionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "checkoutRequestID")
		txn, err := repo.FindByCheckoutID(r.Context(), id)
		if err != nil {
			http.Error(w, "transaction not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, txnView(txn))
	}
}

// List returns the newest ledger records.
func List(repo repositories.TransactionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		offset := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}
		rows, err := repo.ListRecent(r.Context(), limit, offset)
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		views := make([]map[string]any, 0, len(rows))
		for _, txn := range rows {
			views = append(views, txnView(txn))
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": views})
	}
}

func txnView(txn *transaction.Transaction) map[string]any {
	return map[string]any{
		"id":                txn.ID,
		"saleRef":           txn.SaleRef,
		"checkoutRequestId": txn.CheckoutRequestID,
		"merchantRequestId": txn.MerchantRequestID,
		"amount":            txn.Amount,
		"phone":             txn.MSISDN,
		"status":            txn.Status,
		"resultDesc":        txn.ResultDesc,
		"receiptNumber":     txn.ReceiptNumber,
		"pumpId":            txn.PumpID,
		"shiftId":           txn.ShiftID,
		"attendantId":       txn.AttendantID,
		"stationId":         txn.StationID,
		"createdAt":         txn.CreatedAt,
		"updatedAt":         txn.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
