package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fuelpay/internal/domain/transaction"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// fakeRealtime runs a minimal Phoenix-style server: it validates the join
// frame, acks it, then sends whatever frames the test pushes into send.
func fakeRealtime(t *testing.T, send <-chan phxMessage, gotJoin chan<- phxMessage) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var join phxMessage
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		gotJoin <- join

		ack := phxMessage{Topic: join.Topic, Event: "phx_reply", Payload: json.RawMessage(`{"status":"ok"}`), Ref: join.Ref}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}

		// Drain client frames (heartbeats, close) in the background.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func changeFrame(t *testing.T, rec changeRecord) phxMessage {
	t.Helper()
	body := map[string]any{"data": map[string]any{"record": rec}}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal change: %v", err)
	}
	return phxMessage{Topic: changeTopic, Event: "postgres_changes", Payload: raw, Ref: "0"}
}

func TestSubscribeJoinAndDeliver(t *testing.T) {
	send := make(chan phxMessage, 4)
	gotJoin := make(chan phxMessage, 1)
	srv := fakeRealtime(t, send, gotJoin)

	events := make(chan ChangeEvent, 4)
	sess, err := NewDialer(wsURL(srv)).Subscribe(context.Background(), "ws_1", func(e ChangeEvent) {
		events <- e
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sess.Close()

	select {
	case join := <-gotJoin:
		if join.Event != "phx_join" || join.Topic != changeTopic {
			t.Fatalf("unexpected join frame: %+v", join)
		}
		if !strings.Contains(string(join.Payload), "checkout_request_id=eq.ws_1") {
			t.Fatalf("join payload missing filter: %s", join.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a join frame")
	}

	if got := sess.State(); got != StateConnected {
		t.Fatalf("state = %s, want connected", got)
	}

	// A change for another transaction must be filtered out.
	other := 0
	send <- changeFrame(t, changeRecord{CheckoutRequestID: "ws_other", ResultCode: &other})

	code := 0
	send <- changeFrame(t, changeRecord{
		CheckoutRequestID:  "ws_1",
		Status:             "SUCCESS",
		ResultCode:         &code,
		MpesaReceiptNumber: "QAX123",
	})

	select {
	case e := <-events:
		if e.CheckoutRequestID != "ws_1" {
			t.Fatalf("event for wrong transaction: %+v", e)
		}
		if e.Status != transaction.StatusSuccess {
			t.Fatalf("status = %s, want SUCCESS", e.Status)
		}
		if e.ReceiptNumber != "QAX123" {
			t.Fatalf("receipt = %q", e.ReceiptNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("matching change never delivered")
	}

	select {
	case e := <-events:
		t.Fatalf("unexpected extra event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeClassifiesCancellation(t *testing.T) {
	send := make(chan phxMessage, 1)
	gotJoin := make(chan phxMessage, 1)
	srv := fakeRealtime(t, send, gotJoin)

	events := make(chan ChangeEvent, 1)
	sess, err := NewDialer(wsURL(srv)).Subscribe(context.Background(), "ws_2", func(e ChangeEvent) {
		events <- e
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sess.Close()
	<-gotJoin

	code := 1032
	send <- changeFrame(t, changeRecord{CheckoutRequestID: "ws_2", ResultCode: &code, ResultDesc: "Request cancelled by user"})

	select {
	case e := <-events:
		if e.Status != transaction.StatusCancelled {
			t.Fatalf("status = %s, want CANCELLED", e.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change never delivered")
	}
}

func TestSessionCloseOnContextCancel(t *testing.T) {
	send := make(chan phxMessage)
	gotJoin := make(chan phxMessage, 1)
	srv := fakeRealtime(t, send, gotJoin)

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := NewDialer(wsURL(srv)).Subscribe(ctx, "ws_3", func(ChangeEvent) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	<-gotJoin

	cancel()
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after context cancel")
	}
	if got := sess.State(); got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
}

func TestSubscribeDialFailure(t *testing.T) {
	_, err := NewDialer("ws://127.0.0.1:1/realtime").Subscribe(context.Background(), "ws_4", func(ChangeEvent) {})
	if err == nil {
		t.Fatal("expected dial error")
	}
}
