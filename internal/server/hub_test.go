package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forgepanel/backend/internal/mock"
)

// TestSnapshotIsFirstMessage attaches clients while broadcasts are in flight
// and checks that every client sees the snapshot before any console or state
// traffic.
func TestSnapshotIsFirstMessage(t *testing.T) {
	game := mock.NewGenerator()
	hub := NewHub(game, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := hub.AddClient(conn)
		defer hub.RemoveClient(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	// SetDebug emits a console line in any state, keeping the hub busy
	// broadcasting while clients attach.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			game.SetDebug(i%2 == 0)
		}
	}()

	for i := 0; i < 10; i++ {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		var msg struct {
			Type MessageType `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal %d: %v", i, err)
		}
		if msg.Type != MsgSnapshot {
			t.Fatalf("client %d first message = %q, want %q", i, msg.Type, MsgSnapshot)
		}
		conn.Close()
	}

	close(stop)
	wg.Wait()
}
