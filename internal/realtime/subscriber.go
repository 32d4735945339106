package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"fuelpay/internal/domain/transaction"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	changeTopic    = "realtime:public:mpesa_transactions"
	heartbeatTopic = "phoenix"

	defaultHeartbeatEvery = 30 * time.Second
)

// ConnectionState is the lifecycle of one realtime session.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "error"
	}
}

// ChangeEvent is one ledger change pushed over the realtime channel, already
// classified into a domain status.
type ChangeEvent struct {
	CheckoutRequestID string
	Status            transaction.Status
	ResultCode        *int
	ResultDesc        string
	ReceiptNumber     string
}

// Dialer opens realtime sessions against the store's websocket endpoint.
type Dialer struct {
	url            string
	heartbeatEvery time.Duration
}

// NewDialer creates a dialer for the given websocket URL (the API key is
// carried in the URL query, as the store requires).
func NewDialer(url string) *Dialer {
	return &Dialer{url: url, heartbeatEvery: defaultHeartbeatEvery}
}

// phxMessage is the Phoenix channel frame envelope used by the realtime
// protocol in both directions.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// changeRecord mirrors the transaction row embedded in a change notification.
type changeRecord struct {
	CheckoutRequestID  string `json:"checkout_request_id"`
	Status             string `json:"status"`
	ResultCode         *int   `json:"result_code"`
	ResultDesc         string `json:"result_desc"`
	MpesaReceiptNumber string `json:"mpesa_receipt_number"`
}

// Session is one live subscription scoped to a single checkout request ID.
// It is best-effort: a connection failure moves it to StateError and stops
// delivery, and the caller's polling path stays responsible for correctness.
type Session struct {
	conn  *websocket.Conn
	state atomic.Int32
	ref   atomic.Int64

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Subscribe opens a session, joins the change channel filtered by
// checkoutRequestID equality, and delivers matching events to onEvent until
// the session is closed, the context is cancelled, or the connection drops.
func (d *Dialer) Subscribe(ctx context.Context, checkoutRequestID string, onEvent func(ChangeEvent)) (*Session, error) {
	s := &Session{done: make(chan struct{})}
	s.state.Store(int32(StateConnecting))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.url, nil)
	if err != nil {
		s.state.Store(int32(StateError))
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}
	s.conn = conn
	s.state.Store(int32(StateConnected))

	if err := s.join(checkoutRequestID); err != nil {
		s.Close()
		return nil, fmt.Errorf("realtime join failed: %w", err)
	}

	log.Debug().
		Str("checkout_request_id", checkoutRequestID).
		Msg("realtime subscription opened")

	go s.heartbeatLoop(d.heartbeatEvery)
	go s.readLoop(checkoutRequestID, onEvent)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// Done is closed when the session has stopped delivering events.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close releases the socket. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if ConnectionState(s.state.Load()) != StateError {
			s.state.Store(int32(StateDisconnected))
		}
		// done must close before the socket so the read loop can tell an
		// intentional shutdown from a dropped connection.
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

// join sends the phx_join frame scoping this session to UPDATE events on the
// transaction table, filtered server-side by checkout request ID.
func (s *Session) join(checkoutRequestID string) error {
	payload := map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]any{{
				"event":  "UPDATE",
				"schema": "public",
				"table":  "mpesa_transactions",
				"filter": "checkout_request_id=eq." + checkoutRequestID,
			}},
		},
	}
	return s.send(changeTopic, "phx_join", payload)
}

func (s *Session) send(topic, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := phxMessage{
		Topic:   topic,
		Event:   event,
		Payload: raw,
		Ref:     strconv.FormatInt(s.ref.Add(1), 10),
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *Session) heartbeatLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if err := s.send(heartbeatTopic, "heartbeat", map[string]any{}); err != nil {
				log.Warn().Err(err).Msg("realtime heartbeat failed")
				return
			}
		}
	}
}

func (s *Session) readLoop(checkoutRequestID string, onEvent func(ChangeEvent)) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Closed on purpose.
			default:
				log.Warn().Err(err).Msg("realtime connection lost")
				s.state.Store(int32(StateError))
				s.Close()
			}
			return
		}

		var msg phxMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("realtime: unparseable frame")
			continue
		}

		switch msg.Event {
		case "phx_reply", "system":
			// Join acks and server notices carry no transaction data.
		case "phx_error":
			log.Warn().Str("topic", msg.Topic).Msg("realtime channel error")
			s.state.Store(int32(StateError))
			s.Close()
			return
		case "postgres_changes":
			evt, ok := decodeChange(msg.Payload)
			if !ok || evt.CheckoutRequestID != checkoutRequestID {
				continue
			}
			log.Debug().
				Str("checkout_request_id", evt.CheckoutRequestID).
				Str("status", string(evt.Status)).
				Msg("realtime change received")
			onEvent(evt)
		}
	}
}

// decodeChange extracts the changed row and classifies its result code.
func decodeChange(payload json.RawMessage) (ChangeEvent, bool) {
	var body struct {
		Data struct {
			Record changeRecord `json:"record"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ChangeEvent{}, false
	}
	rec := body.Data.Record
	if rec.CheckoutRequestID == "" {
		return ChangeEvent{}, false
	}
	return ChangeEvent{
		CheckoutRequestID: rec.CheckoutRequestID,
		Status:            transaction.Classify(rec.ResultCode),
		ResultCode:        rec.ResultCode,
		ResultDesc:        rec.ResultDesc,
		ReceiptNumber:     rec.MpesaReceiptNumber,
	}, true
}
