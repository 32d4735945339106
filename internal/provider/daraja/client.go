package daraja

import (
	"context"
	"fmt"
	"net/url"

	"fuelpay/internal/provider/base"

	"github.com/rs/zerolog/log"
)

// GatewayError is a definitive rejection from the payment gateway, as opposed
// to a transport failure (which surfaces as a plain wrapped error and may be
// retried by the caller).
type GatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// PushRequest is the STK push payload sent to the gateway. Amount is in whole
// currency units; Phone must already be a normalized 12-digit MSISDN.
type PushRequest struct {
	Amount      int64  `json:"amount"`
	Phone       string `json:"phone"`
	Account     string `json:"account"`
	Description string `json:"description"`

	// POS context, passed through for station-side bookkeeping.
	PumpID      string `json:"pump_id,omitempty"`
	ShiftID     string `json:"shift_id,omitempty"`
	AttendantID string `json:"attendant_id,omitempty"`
	StationID   string `json:"station_id,omitempty"`
}

// PushResponse is the gateway's immediate answer to an STK push. Success=false
// means the push was rejected outright; the request IDs are only present on
// acceptance.
type PushResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	MerchantRequestID string `json:"merchantRequestId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
}

// StatusResponse is one status query result. A nil ResultCode means the
// customer has not completed or abandoned the prompt yet.
type StatusResponse struct {
	ResultCode         *int   `json:"resultCode"`
	ResultDesc         string `json:"resultDesc"`
	MpesaReceiptNumber string `json:"mpesaReceiptNumber"`
}

// Client talks to the M-Pesa gateway's push and status endpoints.
type Client struct {
	http   *base.HTTPClient
	tokens *TokenSource
}

// NewClient creates a gateway client. tokens may be nil when the gateway does
// not require bearer auth (e.g. local sandboxes).
func NewClient(http *base.HTTPClient, tokens *TokenSource) *Client {
	return &Client{http: http, tokens: tokens}
}

// Push initiates an STK push. A non-nil error is a transport or auth failure;
// a response with Success=false is a gateway-level rejection the caller must
// treat as terminal.
func (c *Client) Push(ctx context.Context, req PushRequest) (*PushResponse, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.PostJSON(ctx, "/payments/push", req, headers)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &GatewayError{
			Code:    "push_http_error",
			Message: fmt.Sprintf("gateway returned status %d: %s", resp.StatusCode, resp.String()),
		}
	}

	var out PushResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse push response: %w", err)
	}

	log.Info().
		Str("checkout_request_id", out.CheckoutRequestID).
		Int64("amount", req.Amount).
		Str("phone", req.Phone).
		Bool("accepted", out.Success).
		Msg("stk push dispatched")

	return &out, nil
}

// QueryStatus pulls the current state of one push by its checkout request ID.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResponse, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := "/payments/status?checkout_request_id=" + url.QueryEscape(checkoutRequestID)
	resp, err := c.http.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("status query returned %d: %s", resp.StatusCode, resp.String())
	}

	var out StatusResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &out, nil
}

func (c *Client) authHeaders(ctx context.Context) (map[string]string, error) {
	if c.tokens == nil {
		return nil, nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &GatewayError{
			Code:    "auth_failed",
			Message: fmt.Sprintf("failed to get access token: %v", err),
		}
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}
