package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trade-stream/src/botstate"
	"trade-stream/src/exchange"
	"trade-stream/src/logger"
	"trade-stream/src/models"
	"trade-stream/src/publisher"
)

// -----------------------------------------------------------------------------
// Test harness: a full server with simulated exchange data and fast cadences,
// exercised over real WebSocket connections.
// -----------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := &models.MConfig{
		Name:     "test",
		Host:     "127.0.0.1",
		Port:     8090,
		LogLevel: "ERROR",
		Channels: models.MChannelsConfig{
			MarketOverviewSeconds: 1,
			MarketDataSeconds:     1,
			KlineDataSeconds:      1,
			OrderBookSeconds:      1,
			TradesSeconds:         1,
			BotStatusSeconds:      1,
			TradesSeenWindow:      100,
			OrderBookDepth:        15, // must differ from the bare fallback of 20

			OverviewPairs: []string{"BTC/USDT", "ETH/USDT"},
		},
	}

	log := logger.NewLogger("ERROR", "test")
	srv := NewServer(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	publishers := publisher.NewManager(
		ctx,
		cfg,
		log,
		srv,
		exchange.NewResolver(cfg, nil), // no gateway: everything simulated
		botstate.NewProvider(),
		nil,
	)
	srv.SetPublishers(publishers)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		publishers.StopAll()
	})
	return srv, ts
}

// -----------------------------------------------------------------------------

func dial(t *testing.T, ts *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// -----------------------------------------------------------------------------

func send(t *testing.T, conn *websocket.Conn, msg models.MControlMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// readEnvelope reads one message or fails the test at deadline.
func readEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) *models.MEnvelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var env models.MEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("bad envelope %q: %v", data, err)
	}
	return &env
}

// waitFor reads until it sees an envelope of the given type.
func waitFor(t *testing.T, conn *websocket.Conn, envType string, timeout time.Duration) *models.MEnvelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn, time.Until(deadline))
		if env.Type == envType {
			return env
		}
	}
	t.Fatalf("never received %s envelope", envType)
	return nil
}

// -----------------------------------------------------------------------------
// Subscribe / data flow
// -----------------------------------------------------------------------------

func TestWebSocket_SubscribeDeliversMarketData(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "alice")

	send(t, conn, models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelMarketData,
		Params:  models.MControlParams{TradingPair: "BTC/USDT"},
	})

	ack := waitFor(t, conn, models.TypeSubscribeSuccess, 2*time.Second)
	if ack.Channel != models.ChannelMarketData {
		t.Fatalf("ack for wrong channel: %+v", ack)
	}
	if ack.Params == nil || ack.Params.TradingPair != "BTC/USDT" {
		t.Fatalf("ack missing params: %+v", ack)
	}

	env := waitFor(t, conn, models.ChannelMarketData, 3*time.Second)
	if env.TradingPair != "BTC/USDT" {
		t.Fatalf("data for wrong pair: %+v", env)
	}
	if env.Source != models.SourceSimulated {
		t.Fatalf("expected simulated source tag, got %q", env.Source)
	}
	if env.Timestamp == "" {
		t.Fatal("expected timestamp on data envelope")
	}

	payload, ok := env.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected payload shape: %#v", env.Data)
	}
	price, ok := payload["price"].(float64)
	if !ok || price <= 0 {
		t.Fatalf("expected positive price, got %v", payload["price"])
	}
}

func TestWebSocket_UnsubscribeStopsDelivery(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "alice")

	sub := models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelMarketData,
		Params:  models.MControlParams{TradingPair: "BTC/USDT"},
	}
	send(t, conn, sub)
	waitFor(t, conn, models.TypeSubscribeSuccess, 2*time.Second)
	waitFor(t, conn, models.ChannelMarketData, 3*time.Second)

	sub.Action = models.ActionUnsubscribe
	send(t, conn, sub)
	waitFor(t, conn, models.TypeUnsubscribeSuccess, 2*time.Second)

	// Drain anything already in flight, then require silence.
	drainUntil := time.Now().Add(1200 * time.Millisecond)
	for time.Now().Before(drainUntil) {
		conn.SetReadDeadline(drainUntil)
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	conn.SetReadDeadline(time.Now().Add(2500 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected silence after unsubscribe, got %s", data)
	}
}

func TestWebSocket_KeyIsolation(t *testing.T) {
	_, ts := newTestServer(t)
	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	send(t, alice, models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelMarketData,
		Params:  models.MControlParams{TradingPair: "BTC/USDT"},
	})
	send(t, bob, models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelMarketData,
		Params:  models.MControlParams{TradingPair: "ETH/USDT"},
	})
	waitFor(t, alice, models.TypeSubscribeSuccess, 2*time.Second)
	waitFor(t, bob, models.TypeSubscribeSuccess, 2*time.Second)

	// Alice must only ever see her own pair.
	deadline := time.Now().Add(2500 * time.Millisecond)
	seen := 0
	for time.Now().Before(deadline) && seen < 2 {
		alice.SetReadDeadline(deadline)
		_, data, err := alice.ReadMessage()
		if err != nil {
			break
		}
		var env models.MEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		if env.Type != models.ChannelMarketData {
			continue
		}
		if env.TradingPair != "BTC/USDT" {
			t.Fatalf("cross-key leak: alice received %s", env.TradingPair)
		}
		seen++
	}
	if seen == 0 {
		t.Fatal("alice never received her subscription data")
	}

	env := waitFor(t, bob, models.ChannelMarketData, 3*time.Second)
	if env.TradingPair != "ETH/USDT" {
		t.Fatalf("cross-key leak: bob received %s", env.TradingPair)
	}
}

func TestWebSocket_OrderBookDepthDefaultsFromConfig(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dial(t, ts, "alice")

	// No limit given: the configured depth must drive both the key and
	// the delivered book, not a hardcoded fallback.
	send(t, conn, models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelOrderBook,
		Params:  models.MControlParams{TradingPair: "BTC/USDT"},
	})

	ack := waitFor(t, conn, models.TypeSubscribeSuccess, 2*time.Second)
	if ack.Params == nil || ack.Params.Limit != 15 {
		t.Fatalf("expected configured depth 15 in ack params, got %+v", ack.Params)
	}
	if got := srv.SubscriberCount(models.ChannelOrderBook, "BTC/USDT:15"); got != 1 {
		t.Fatalf("expected subscription under the configured-depth key, count=%d", got)
	}
	if got := srv.SubscriberCount(models.ChannelOrderBook, "BTC/USDT:20"); got != 0 {
		t.Fatalf("expected no subscription under the hardcoded key, count=%d", got)
	}

	env := waitFor(t, conn, models.ChannelOrderBook, 3*time.Second)
	if env.Limit != 15 {
		t.Fatalf("expected depth 15 on data envelope, got %d", env.Limit)
	}

	// An explicit limit equal to the configured depth joins the same key
	sub := models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelOrderBook,
		Params:  models.MControlParams{TradingPair: "BTC/USDT", Limit: 15},
	}
	other := dial(t, ts, "bob")
	send(t, other, sub)
	waitFor(t, other, models.TypeSubscribeSuccess, 2*time.Second)
	if got := srv.SubscriberCount(models.ChannelOrderBook, "BTC/USDT:15"); got != 2 {
		t.Fatalf("expected both subscribers under one key, count=%d", got)
	}
}

// -----------------------------------------------------------------------------
// Control protocol
// -----------------------------------------------------------------------------

func TestWebSocket_PingPong(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "alice")

	send(t, conn, models.MControlMessage{Action: models.ActionPing})
	waitFor(t, conn, models.TypePong, 2*time.Second)
}

func TestWebSocket_MalformedMessageKeepsConnection(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "alice")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json at all")); err != nil {
		t.Fatal(err)
	}

	env := waitFor(t, conn, models.TypeError, 2*time.Second)
	if env.Message == "" {
		t.Fatal("expected error message in envelope")
	}

	// Connection must survive the bad message
	send(t, conn, models.MControlMessage{Action: models.ActionPing})
	waitFor(t, conn, models.TypePong, 2*time.Second)
}

func TestWebSocket_SubscribeUnknownChannel(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "alice")

	send(t, conn, models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: "order_flow",
	})
	env := waitFor(t, conn, models.TypeError, 2*time.Second)
	if !strings.Contains(env.Message, "unknown channel") {
		t.Fatalf("unexpected error message: %q", env.Message)
	}
}

func TestWebSocket_SubscribeMissingParams(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "alice")

	send(t, conn, models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelMarketData,
	})
	env := waitFor(t, conn, models.TypeError, 2*time.Second)
	if !strings.Contains(env.Message, "trading_pair") {
		t.Fatalf("unexpected error message: %q", env.Message)
	}
}

// -----------------------------------------------------------------------------
// Disconnect cleanup
// -----------------------------------------------------------------------------

func TestWebSocket_DisconnectPurgesSubscriptions(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dial(t, ts, "alice")

	send(t, conn, models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelMarketData,
		Params:  models.MControlParams{TradingPair: "BTC/USDT"},
	})
	waitFor(t, conn, models.TypeSubscribeSuccess, 2*time.Second)

	if got := srv.SubscriberCount(models.ChannelMarketData, "BTC/USDT"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.SubscriberCount(models.ChannelMarketData, "BTC/USDT") > 0 && time.Now().Before(deadline) {
		time.Sleep(25 * time.Millisecond)
	}
	if got := srv.SubscriberCount(models.ChannelMarketData, "BTC/USDT"); got != 0 {
		t.Fatalf("expected registry purged on disconnect, %d left", got)
	}
	if got := srv.Manager.ConnectionCount(); got != 0 {
		t.Fatalf("expected no live connections, got %d", got)
	}
}

// -----------------------------------------------------------------------------
// Per-user fan-out
// -----------------------------------------------------------------------------

func TestManager_BroadcastToUser(t *testing.T) {
	srv, ts := newTestServer(t)
	alice1 := dial(t, ts, "alice")
	alice2 := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	notice := &models.MEnvelope{Type: "notice", Message: "order filled"}
	srv.Manager.BroadcastToUser("alice", notice)

	for _, conn := range []*websocket.Conn{alice1, alice2} {
		env := readEnvelope(t, conn, 2*time.Second)
		if env.Type != "notice" || env.Message != "order filled" {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	}

	// Bob is a different user and must see nothing
	bob.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := bob.ReadMessage(); err == nil {
		t.Fatalf("expected silence for other users, got %s", data)
	}

	// A dead connection is pruned without touching the user's live one
	alice1.Close()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Manager.ConnectionCount() > 2 && time.Now().Before(deadline) {
		time.Sleep(25 * time.Millisecond)
	}
	if got := srv.Manager.ConnectionCount(); got != 2 {
		t.Fatalf("expected closed connection pruned, count=%d", got)
	}

	srv.Manager.BroadcastToUser("alice", notice)
	env := readEnvelope(t, alice2, 2*time.Second)
	if env.Type != "notice" {
		t.Fatalf("surviving connection missed the broadcast: %+v", env)
	}
}

func TestManager_SlowConsumerDisconnected(t *testing.T) {
	srv, ts := newTestServer(t)
	dial(t, ts, "slow") // never reads

	if got := srv.Manager.ConnectionCount(); got != 1 {
		t.Fatalf("expected 1 connection, got %d", got)
	}

	// Flood until the send buffer and the socket back up; the manager must
	// prune the consumer instead of blocking the caller.
	payload := strings.Repeat("x", 1024)
	for i := 0; i < 5000; i++ {
		srv.Manager.BroadcastToUser("slow", &models.MEnvelope{Type: "notice", Message: payload})
		if srv.Manager.ConnectionCount() == 0 {
			break
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for srv.Manager.ConnectionCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(25 * time.Millisecond)
	}
	if got := srv.Manager.ConnectionCount(); got != 0 {
		t.Fatalf("expected slow consumer disconnected, count=%d", got)
	}

	// Further broadcasts to the pruned user are no-ops
	srv.Manager.BroadcastToUser("slow", &models.MEnvelope{Type: "notice"})
}

// -----------------------------------------------------------------------------
// HTTP surface
// -----------------------------------------------------------------------------

func TestHTTP_Health(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestHTTP_Channels(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/channels")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Channels []string `json:"channels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Channels) != len(models.Channels) {
		t.Fatalf("expected %d channels, got %v", len(models.Channels), body.Channels)
	}
}

func TestHTTP_MetricsExposed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", resp.StatusCode)
	}
}
