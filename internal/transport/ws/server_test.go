package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rtsim.ai/internal/protocol"
	"rtsim.ai/internal/sim/rtsim"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/tuning"
	"rtsim.ai/internal/sim/world"
)

func startServer(t *testing.T) (*rtsim.Sim, string) {
	t.Helper()
	w := world.NewProcedural(world.ProceduralConfig{Seed: 1, Size: 512, Sites: 1})
	s := rtsim.New(rtsim.Config{ID: "ws-test", Tuning: tuning.Defaults()}, data.New(), w, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(NewServer(s, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func hello(t *testing.T, conn *websocket.Conn, version string, char uint64) map[string]any {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: version, CharacterID: char, Name: "tess"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	return readMsg(t, conn)
}

func TestServer_HelloWelcome(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	m := hello(t, conn, protocol.Version, 7)
	if m["type"] != protocol.TypeWelcome || m["world_id"] != "ws-test" || m["character_id"].(float64) != 7 {
		t.Fatalf("welcome=%v", m)
	}
	if sid, _ := m["session_id"].(string); len(sid) != 36 {
		t.Fatalf("session_id=%v", m["session_id"])
	}

	// The same character cannot be joined twice.
	other := dial(t, url)
	if m := hello(t, other, protocol.Version, 7); m["type"] != protocol.TypeError || m["code"] != protocol.ErrAlreadyTaken {
		t.Fatalf("second hello=%v", m)
	}
}

func TestServer_HandshakeErrors(t *testing.T) {
	_, url := startServer(t)

	conn := dial(t, url)
	if m := hello(t, conn, "0.9", 7); m["code"] != protocol.ErrProtoVersion {
		t.Fatalf("bad version=%v", m)
	}

	conn = dial(t, url)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"MOVE","protocol_version":"1.0","pos":[1,2,3]}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := readMsg(t, conn); m["code"] != protocol.ErrNotJoined {
		t.Fatalf("move before hello=%v", m)
	}

	conn = dial(t, url)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := readMsg(t, conn); m["code"] != protocol.ErrProtoBadRequest {
		t.Fatalf("garbage before hello=%v", m)
	}
}

func TestServer_JoinTimesOutWhenWorldIsNotRunning(t *testing.T) {
	w := world.NewProcedural(world.ProceduralConfig{Seed: 1, Size: 512, Sites: 1})
	s := rtsim.New(rtsim.Config{ID: "stopped", Tuning: tuning.Defaults()}, data.New(), w, nil, nil)
	server := NewServer(s, nil)
	server.joinTimeout = 50 * time.Millisecond
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if m := hello(t, conn, protocol.Version, 2); m["type"] != protocol.TypeError || m["code"] != protocol.ErrInternal {
		t.Fatalf("hello=%v", m)
	}
}

func TestServer_InvalidMessagesGetErrors(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)
	hello(t, conn, protocol.Version, 3)

	cases := []struct {
		msg  string
		code string
	}{
		{`{"type":"INTERACT","protocol_version":"1.0"}`, protocol.ErrProtoBadRequest},
		{`{"type":"INTERACT","protocol_version":"2.0","npc":1}`, protocol.ErrProtoVersion},
		{`{"type":"SAY","protocol_version":"1.0","tick":1,"from_npc":1,"text":"hi"}`, protocol.ErrBadRequest},
		{`{"type":"INTERACT","protocol_version":"1.0","npc":99999}`, protocol.ErrInvalidTarget},
	}
	for _, c := range cases {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(c.msg)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if m := readMsg(t, conn); m["type"] != protocol.TypeError || m["code"] != c.code {
			t.Fatalf("%s: got %v", c.msg, m)
		}
	}
}

func TestServer_DisconnectLeaves(t *testing.T) {
	s, url := startServer(t)
	conn := dial(t, url)
	hello(t, conn, protocol.Version, 5)
	if s.Stats().Clients != 1 {
		// The welcome is sent after the join tick, so stats may lag one tick.
		deadline := time.Now().Add(2 * time.Second)
		for s.Stats().Clients != 1 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}
	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for s.Stats().Clients != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still joined: %+v", s.Stats())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
