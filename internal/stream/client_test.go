package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestClient upgrades a loopback connection and returns the server-side
// Client plus the client-side socket for assertions.
func dialTestClient(t *testing.T) (*Client, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	client := NewClient(<-serverSide)
	t.Cleanup(func() { client.Close() })
	return client, peer
}

// TestClient_DeliversQueuedFramesInOrder tests that frames queued before the
// pump starts are delivered first, in order.
func TestClient_DeliversQueuedFramesInOrder(t *testing.T) {
	client, peer := dialTestClient(t)

	if err := client.Send([]byte(`first`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := client.Send([]byte(`second`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	go client.WritePump()

	for _, want := range []string{"first", "second"} {
		if err := peer.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("SetReadDeadline failed: %v", err)
		}
		_, data, err := peer.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(data) != want {
			t.Errorf("expected frame %q, got %q", want, data)
		}
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	client, _ := dialTestClient(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := client.Send([]byte(`late`)); err != ErrClientClosed {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
	// Close is idempotent.
	if err := client.Close(); err != nil {
		t.Errorf("second Close must be a no-op, got %v", err)
	}
}

// TestClient_SendNeverBlocks tests that a full buffer fails fast instead of
// blocking the sender.
func TestClient_SendNeverBlocks(t *testing.T) {
	client, _ := dialTestClient(t)
	// No pump running, so the queue only drains on close.

	var err error
	for i := 0; i <= sendBufferSize; i++ {
		err = client.Send([]byte(`frame`))
		if err != nil {
			break
		}
	}
	if err != ErrSendBufferFull {
		t.Errorf("expected ErrSendBufferFull once the queue fills, got %v", err)
	}
}

func TestClient_SendJSON(t *testing.T) {
	client, peer := dialTestClient(t)
	go client.WritePump()

	if err := client.SendJSON(NewAckEvent()); err != nil {
		t.Fatalf("SendJSON failed: %v", err)
	}
	if err := peer.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	_, data, err := peer.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != `{"event":"ack","ok":true}` {
		t.Errorf("unexpected ack payload: %s", data)
	}
}
