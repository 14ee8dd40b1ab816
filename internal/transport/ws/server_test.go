package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"warfront.gg/internal/protocol"
	"warfront.gg/internal/sim/engine"
	"warfront.gg/internal/sim/hub"
	"warfront.gg/internal/sim/territory"
)

func startTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	m := &territory.Map{
		Factions: []string{"red", "blue"},
		Units: []territory.Unit{
			{ID: "R1", Kind: territory.KindRegion},
			{ID: "D1", ParentID: "R1", Kind: territory.KindDistrict},
			{ID: "CP1", ParentID: "D1", Kind: territory.KindControlPoint},
		},
	}
	store := territory.NewStore(m, territory.DefaultBands())
	eng := engine.New(store, engine.Config{TickRateHz: 50}, nil, nil)
	h := hub.New(store, eng, hub.Config{TickRateHz: 50}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()

	srv := httptest.NewServer(NewServer(h, 16, time.Second, nil).Handler())
	return srv, func() {
		srv.Close()
		cancel()
	}
}

func dialAndHello(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "tester",
		FactionID:       "red",
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.SessionID == "" {
		t.Fatalf("welcome = %+v", welcome)
	}
	return conn
}

func readAck(t *testing.T, conn *websocket.Conn) protocol.AckMsg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeAck {
			continue
		}
		var ack protocol.AckMsg
		if err := json.Unmarshal(msg, &ack); err != nil {
			t.Fatalf("unmarshal ack: %v", err)
		}
		return ack
	}
	t.Fatalf("no ack before deadline")
	return protocol.AckMsg{}
}

func TestActVersionMismatchGetsProtoReject(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()
	conn := dialAndHello(t, srv.URL)
	defer conn.Close()

	stale := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: "0.9",
		Actions: []protocol.ActionReq{
			{ID: "A1", Kind: protocol.ActionSecure, UnitID: "CP1", Magnitude: 1},
		},
	}
	if err := conn.WriteJSON(stale); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readAck(t, conn)
	if ack.Accepted || ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestMalformedActGetsProtoReject(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()
	conn := dialAndHello(t, srv.URL)
	defer conn.Close()

	raw := `{"type":"ACT","protocol_version":"1.0","actions":42}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readAck(t, conn)
	if ack.Accepted || ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("ack = %+v", ack)
	}
}
