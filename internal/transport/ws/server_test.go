package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"towntrade.dev/internal/protocol"
	"towntrade.dev/internal/sim/catalogs"
	"towntrade.dev/internal/sim/roles"
	"towntrade.dev/internal/sim/session"
	"towntrade.dev/internal/sim/tuning"
)

type testOpener struct {
	cats *catalogs.Catalogs
	ctx  context.Context
}

func (o *testOpener) Open(player, role string) (*session.Session, error) {
	sess, err := session.New(session.Config{
		RoleKey:  role,
		SaveID:   player,
		Seed:     42,
		Tuning:   tuning.Defaults(),
		Catalogs: o.cats,
	})
	if err != nil {
		return nil, err
	}
	go func() { _ = sess.Run(o.ctx) }()
	return sess, nil
}

func testCatalog() *catalogs.Catalogs {
	def := catalogs.ItemDef{
		ID: "cloth", Name: "Cloth", BuyIn: 60, UnitCost: 2, StartStock: 12,
		Bands: catalogs.Bands{Low: 2, FairMin: 3, FairMax: 5, High: 8},
	}
	rc := catalogs.RoleCatalog{
		Items: []catalogs.ItemDef{def},
		ByID:  map[string]catalogs.ItemDef{def.ID: def},
	}
	return &catalogs.Catalogs{
		Roles:  map[string]catalogs.RoleCatalog{"general_store": rc},
		Digest: "test-digest",
	}
}

func dialTestServer(t *testing.T) *websocket.Conn {
	t.Helper()
	roles.RegisterAll()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := NewServer(&testOpener{cats: testCatalog(), ctx: ctx}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", msgType, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s frame within deadline", msgType)
	return nil
}

func TestHandshakeAndFirstAction(t *testing.T) {
	conn := dialTestServer(t)

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      "ada",
		Role:            "general_store",
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Params.Role != "general_store" || welcome.ResumeToken == "" {
		t.Fatalf("welcome fields: %+v", welcome)
	}
	if welcome.Params.HoursPerDay != 24 {
		t.Fatalf("hours per day: %d", welcome.Params.HoursPerDay)
	}

	var catalog protocol.CatalogMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeCatalog), &catalog); err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if catalog.Digest != "test-digest" {
		t.Fatalf("catalog digest: %q", catalog.Digest)
	}

	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ID:              "m1",
		Action:          "choose_item",
		Params:          protocol.ActParams{Item: "cloth"},
	}
	if err := conn.WriteJSON(act); err != nil {
		t.Fatalf("write act: %v", err)
	}

	var ack protocol.AckMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.AckFor != "m1" || !ack.Accepted {
		t.Fatalf("ack fields: %+v", ack)
	}

	// The STATE after the action reflects the buy-in.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var state protocol.StateMsg
		if err := json.Unmarshal(readUntil(t, conn, protocol.TypeState), &state); err != nil {
			t.Fatalf("state: %v", err)
		}
		if state.View.Money == 140 && state.View.Item != nil && state.View.Item.Stock == 12 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never reflected purchase: %+v", state.View)
		}
	}
}

func TestMalformedActIsNacked(t *testing.T) {
	conn := dialTestServer(t)

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "ada",
	}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	readUntil(t, conn, protocol.TypeWelcome)

	// Schema-invalid ACT: action is required.
	if err := conn.WriteJSON(map[string]any{
		"type": "ACT", "protocol_version": protocol.Version, "id": "m9",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var ack protocol.AckMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.Accepted || ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("rejected frame ack: %+v", ack)
	}
	if ack.AckFor != "m9" {
		t.Fatalf("ack id: %q", ack.AckFor)
	}
}

func TestWrongVersionActIsNacked(t *testing.T) {
	conn := dialTestServer(t)

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "ada",
	}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	readUntil(t, conn, protocol.TypeWelcome)

	if err := conn.WriteJSON(protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: "0.9", ID: "m2", Action: "wait",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var ack protocol.AckMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.Accepted || ack.Code != protocol.ErrProtoBadRequest || ack.AckFor != "m2" {
		t.Fatalf("rejected frame ack: %+v", ack)
	}
}

func TestHandshakeRejectsNonHello(t *testing.T) {
	conn := dialTestServer(t)

	if err := conn.WriteJSON(map[string]any{"type": "ACT", "protocol_version": protocol.Version, "action": "wait"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected close after non-HELLO first frame")
	}
}

func TestResumeTokenReattaches(t *testing.T) {
	roles.RegisterAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := NewServer(&testOpener{cats: testCatalog(), ctx: ctx}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()
	url := "ws" + strings.TrimPrefix(hs.URL, "http")

	conn1, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn1.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "ada",
	}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn1, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	conn1.Close()

	conn2, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("redial: %v", err)
	}
	defer conn2.Close()
	if err := conn2.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version,
		PlayerName: "ada", ResumeToken: welcome.ResumeToken,
	}); err != nil {
		t.Fatalf("resume hello: %v", err)
	}
	var welcome2 protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn2, protocol.TypeWelcome), &welcome2); err != nil {
		t.Fatalf("resume welcome: %v", err)
	}
	if welcome2.SessionID != welcome.SessionID {
		t.Fatalf("resume landed on a different session: %q vs %q",
			welcome2.SessionID, welcome.SessionID)
	}
}

func TestForgottenTokenIsRefused(t *testing.T) {
	roles.RegisterAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := NewServer(&testOpener{cats: testCatalog(), ctx: ctx}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()
	url := "ws" + strings.TrimPrefix(hs.URL, "http")

	conn1, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn1.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "ada",
	}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn1, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	conn1.Close()

	srv.Forget(welcome.ResumeToken)

	conn2, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("redial: %v", err)
	}
	defer conn2.Close()
	if err := conn2.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version,
		PlayerName: "ada", ResumeToken: welcome.ResumeToken,
	}); err != nil {
		t.Fatalf("resume hello: %v", err)
	}
	_ = conn2.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn2.ReadMessage(); err == nil {
		t.Fatal("expected close for a forgotten resume token")
	}
}
