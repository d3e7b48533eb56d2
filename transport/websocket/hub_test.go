package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/game/session"
)

func newClient(hub *Hub, sessionID string) *Client {
	return &Client{hub: hub, sessionID: sessionID, send: make(chan []byte, clientBuffer)}
}

func receive(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case data := <-client.send:
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		return message
	case <-time.After(100 * time.Millisecond):
		t.Fatal("No message received within timeout")
	}
	return Message{}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	if hub.sessions == nil || hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Fatal("NewHub returned a partially initialised hub")
	}
	if hub.logger == nil {
		t.Error("nil logger should be replaced with a no-op logger")
	}
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	client := newClient(hub, "test-session")

	hub.registerClient(client)

	if !hub.sessions["test-session"][client] {
		t.Error("Client was not registered in session")
	}
	if len(hub.sessions["test-session"]) != 1 {
		t.Errorf("Expected 1 client in session, got %d", len(hub.sessions["test-session"]))
	}
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	client := newClient(hub, "test-session")

	hub.registerClient(client)
	hub.unregisterClient(client)

	if _, exists := hub.sessions["test-session"]; exists {
		t.Error("Session should have been cleaned up after last client unregistered")
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed")
	}

	// A second unregister is a no-op
	hub.unregisterClient(client)
}

func TestHubMultipleClientsInSession(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	client1 := newClient(hub, "multi")
	client2 := newClient(hub, "multi")
	other := newClient(hub, "other")

	hub.registerClient(client1)
	hub.registerClient(client2)
	hub.registerClient(other)
	hub.unregisterClient(client1)

	if len(hub.sessions["multi"]) != 1 || !hub.sessions["multi"][client2] {
		t.Error("client2 should be the only client left")
	}

	hub.broadcastMessage(&Message{SessionID: "multi", Type: TypeState})
	if msg := receive(t, client2); msg.Type != TypeState {
		t.Errorf("Expected state message, got %q", msg.Type)
	}
	select {
	case <-other.send:
		t.Error("clients of other sessions must not receive the message")
	default:
	}
}

func TestHubFansOutEventsAndReports(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	client := newClient(hub, "fan")
	hub.registerClient(client)

	outcome := engine.GoalReached
	hub.SessionEvent("fan", engine.Event{Kind: engine.EventOutcome, RunID: "r1", Outcome: &outcome, ScoreDelta: 1})
	hub.SessionReport("fan", session.Report{Kind: session.ReportLevelComplete, Outcome: engine.GoalReached, Score: 1})

	// The hub loop is not running; drain its queue by hand.
	for i := 0; i < 2; i++ {
		hub.broadcastMessage(<-hub.broadcast)
	}

	ev := receive(t, client)
	if ev.Type != TypeEvent || ev.Event == nil || ev.Event.Kind != engine.EventOutcome || *ev.Event.Outcome != engine.GoalReached {
		t.Errorf("Unexpected event message %+v", ev)
	}
	rep := receive(t, client)
	if rep.Type != TypeReport || rep.Report == nil || rep.Report.Kind != session.ReportLevelComplete {
		t.Errorf("Unexpected report message %+v", rep)
	}
}

func TestHubEnqueueNeverBlocks(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.SessionEvent("busy", engine.Event{Kind: engine.EventPlayer})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked with no hub loop running")
	}
	if len(hub.broadcast) != broadcastBuffer {
		t.Errorf("Expected a full queue, got %d", len(hub.broadcast))
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	client := &Client{hub: hub, sessionID: "slow", send: make(chan []byte)}
	hub.registerClient(client)

	hub.broadcastMessage(&Message{SessionID: "slow", Type: TypeState})

	if _, exists := hub.sessions["slow"]; exists {
		t.Error("a client that cannot keep up should be dropped")
	}
}

func serveHub(t *testing.T, hub *Hub, initial *session.Snapshot) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"), initial)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return message
}

func TestWebSocketInitialStateAndUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	hub := NewHub(zaptest.NewLogger(t))
	go hub.Run(ctx)

	initial := &session.Snapshot{State: session.Ready, Pack: "tutorial", Score: 3, Board: []string{"S.TE"}}
	wsURL := serveHub(t, hub, initial)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?session=ws-test", nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	first := readMessage(t, conn)
	if first.Type != TypeState || first.State == nil || first.State.Score != 3 || first.State.State != session.Ready {
		t.Fatalf("Expected initial state, got %+v", first)
	}

	// The client is registered before its pumps start, so the initial
	// message proves the subscription is live.
	hub.BroadcastState("ws-test", &session.Snapshot{State: session.AwaitingReset, Score: 4})
	update := readMessage(t, conn)
	if update.State == nil || update.State.State != session.AwaitingReset || update.State.Score != 4 {
		t.Errorf("Unexpected update %+v", update)
	}
}

func TestWebSocketClosedWhenHubStops(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	hub := NewHub(zaptest.NewLogger(t))
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	wsURL := serveHub(t, hub, &session.Snapshot{})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?session=stop", nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)

	cancel()
	<-stopped

	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestWebSocketSessionIDIgnoresCase(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	hub := NewHub(zaptest.NewLogger(t))
	go hub.Run(ctx)

	wsURL := serveHub(t, hub, &session.Snapshot{})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?session=AbC123", nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)

	hub.SessionEvent("abc123", engine.Event{Kind: engine.EventScore, RunID: "r1", ScoreDelta: 1})
	ev := readMessage(t, conn)
	if ev.Type != TypeEvent || ev.Event == nil || ev.Event.Kind != engine.EventScore {
		t.Errorf("Expected score event for differently cased id, got %+v", ev)
	}
}
