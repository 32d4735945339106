package daraja

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fuelpay/internal/provider/base"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(base.NewHTTPClient("daraja-test", srv.URL, 5), nil)
}

func TestPushAccepted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/push" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode push request: %v", err)
		}
		if req.Phone != "254712345678" || req.Amount != 100 {
			t.Errorf("unexpected push payload: %+v", req)
		}
		json.NewEncoder(w).Encode(PushResponse{
			Success:           true,
			Message:           "Success. Request accepted for processing",
			MerchantRequestID: "mr_1",
			CheckoutRequestID: "ws_1",
		})
	})

	resp, err := c.Push(context.Background(), PushRequest{
		Amount:      100,
		Phone:       "254712345678",
		Account:     "SALE1",
		Description: "Fuel Payment",
	})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !resp.Success || resp.CheckoutRequestID != "ws_1" || resp.MerchantRequestID != "mr_1" {
		t.Fatalf("unexpected push response: %+v", resp)
	}
}

func TestPushRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(PushResponse{Success: false, Message: "Invalid shortcode"})
	})

	resp, err := c.Push(context.Background(), PushRequest{Amount: 100, Phone: "254712345678", Account: "SALE1"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if resp.Success {
		t.Fatal("expected rejection")
	}
	if resp.Message != "Invalid shortcode" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestPushHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.Push(context.Background(), PushRequest{Amount: 100, Phone: "254712345678", Account: "SALE1"})
	if err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestQueryStatus(t *testing.T) {
	pending := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("checkout_request_id"); got != "ws_1" {
			t.Errorf("checkout_request_id = %q", got)
		}
		if pending {
			w.Write([]byte(`{"resultCode":null,"resultDesc":"Transaction pending"}`))
			return
		}
		w.Write([]byte(`{"resultCode":0,"resultDesc":"Processed successfully","mpesaReceiptNumber":"QAX123"}`))
	})

	resp, err := c.QueryStatus(context.Background(), "ws_1")
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if resp.ResultCode != nil {
		t.Fatalf("pending query should have nil result code, got %d", *resp.ResultCode)
	}

	pending = false
	resp, err = c.QueryStatus(context.Background(), "ws_1")
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if resp.ResultCode == nil || *resp.ResultCode != 0 {
		t.Fatalf("expected result code 0, got %v", resp.ResultCode)
	}
	if resp.MpesaReceiptNumber != "QAX123" {
		t.Fatalf("receipt = %q", resp.MpesaReceiptNumber)
	}
}
