package publisher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trade-stream/src/botstate"
	"trade-stream/src/interfaces"
	"trade-stream/src/logger"
	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

// fakeBroadcaster records published envelopes and reports a settable
// subscriber count.
type fakeBroadcaster struct {
	mu        sync.Mutex
	count     atomic.Int32
	published []*models.MEnvelope
}

func (b *fakeBroadcaster) Publish(channel, key string, envelope *models.MEnvelope) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, envelope)
	return int(b.count.Load())
}

func (b *fakeBroadcaster) SubscriberCount(channel, key string) int {
	return int(b.count.Load())
}

func (b *fakeBroadcaster) publishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// -----------------------------------------------------------------------------

// fakeExchange delegates to per-test closures; unset methods return zeros.
type fakeExchange struct {
	source       string
	getTicker    func(pair string) (models.MTicker, error)
	getOHLCV     func(pair, timeframe string, limit int) ([]models.MCandle, error)
	getOrderBook func(pair string, limit int) (models.MOrderBook, error)
	getTrades    func(pair string, limit int) ([]models.MTrade, error)
}

func (f *fakeExchange) Source() string {
	if f.source == "" {
		return models.SourceSimulated
	}
	return f.source
}

func (f *fakeExchange) GetTicker(ctx context.Context, pair string) (models.MTicker, error) {
	if f.getTicker == nil {
		return models.MTicker{}, nil
	}
	return f.getTicker(pair)
}

func (f *fakeExchange) GetOHLCV(ctx context.Context, pair, timeframe string, limit int) ([]models.MCandle, error) {
	if f.getOHLCV == nil {
		return nil, nil
	}
	return f.getOHLCV(pair, timeframe, limit)
}

func (f *fakeExchange) GetOrderBook(ctx context.Context, pair string, limit int) (models.MOrderBook, error) {
	if f.getOrderBook == nil {
		return models.MOrderBook{}, nil
	}
	return f.getOrderBook(pair, limit)
}

func (f *fakeExchange) GetTrades(ctx context.Context, pair string, limit int) ([]models.MTrade, error) {
	if f.getTrades == nil {
		return nil, nil
	}
	return f.getTrades(pair, limit)
}

// -----------------------------------------------------------------------------

type fakeResolver struct {
	client interfaces.IExchangeClient
}

func (r *fakeResolver) ClientFor(pair string) interfaces.IExchangeClient {
	return r.client
}

// -----------------------------------------------------------------------------

func testConfig() *models.MConfig {
	return &models.MConfig{
		Name:     "test",
		LogLevel: "ERROR",
		Channels: models.MChannelsConfig{
			MarketOverviewSeconds: 1,
			MarketDataSeconds:     1,
			KlineDataSeconds:      1,
			OrderBookSeconds:      1,
			TradesSeconds:         1,
			BotStatusSeconds:      1,
			TradesSeenWindow:      100,
			OrderBookDepth:        20,
			OverviewPairs:         []string{"BTC/USDT", "ETH/USDT"},
		},
	}
}

func newTestManager(t *testing.T, b Broadcaster, client interfaces.IExchangeClient, bots interfaces.IBotStateProvider) *Manager {
	t.Helper()
	if bots == nil {
		bots = botstate.NewProvider()
	}
	return NewManager(
		context.Background(),
		testConfig(),
		logger.NewLogger("ERROR", "test"),
		b,
		&fakeResolver{client: client},
		bots,
		nil,
	)
}

// -----------------------------------------------------------------------------
// Loop lifecycle
// -----------------------------------------------------------------------------

func TestManager_NoFetchWithoutSubscribers(t *testing.T) {
	var fetches atomic.Int32
	client := &fakeExchange{
		getTicker: func(pair string) (models.MTicker, error) {
			fetches.Add(1)
			return models.MTicker{Last: 50000}, nil
		},
	}

	b := &fakeBroadcaster{} // count stays 0
	m := newTestManager(t, b, client, nil)

	msg := &models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelMarketData,
		Params:  models.MControlParams{TradingPair: "BTC/USDT"},
	}
	if err := m.EnsureLoop(msg, "BTC/USDT"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)

	if got := fetches.Load(); got != 0 {
		t.Fatalf("expected zero fetches for an empty key, got %d", got)
	}
	if got := m.LoopCount(); got != 0 {
		t.Fatalf("expected loop to stop itself, %d still running", got)
	}
	if got := b.publishCount(); got != 0 {
		t.Fatalf("expected zero publishes, got %d", got)
	}
}

func TestManager_PublishesAndStopsWithinOneCadence(t *testing.T) {
	client := &fakeExchange{
		getTicker: func(pair string) (models.MTicker, error) {
			return models.MTicker{Last: 50000, Bid: 49990, Ask: 50010}, nil
		},
	}

	b := &fakeBroadcaster{}
	b.count.Store(1)
	m := newTestManager(t, b, client, nil)

	msg := &models.MControlMessage{
		Action:  models.ActionSubscribe,
		Channel: models.ChannelMarketData,
		Params:  models.MControlParams{TradingPair: "BTC/USDT"},
	}
	if err := m.EnsureLoop(msg, "BTC/USDT"); err != nil {
		t.Fatal(err)
	}

	// First tick fires immediately
	deadline := time.Now().Add(500 * time.Millisecond)
	for b.publishCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if b.publishCount() == 0 {
		t.Fatal("expected at least one publish within the first cadence")
	}

	env := b.published[0]
	if env.Type != models.ChannelMarketData {
		t.Fatalf("expected market_data envelope, got %s", env.Type)
	}
	if env.Source != models.SourceSimulated {
		t.Fatalf("expected simulated source tag, got %q", env.Source)
	}

	// Last subscriber leaves; loop must die within one cadence period
	b.count.Store(0)
	deadline = time.Now().Add(1500 * time.Millisecond)
	for m.LoopCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(25 * time.Millisecond)
	}
	if got := m.LoopCount(); got != 0 {
		t.Fatalf("expected loop stopped after last unsubscribe, %d running", got)
	}
}

func TestManager_EnsureLoopIsIdempotent(t *testing.T) {
	b := &fakeBroadcaster{}
	b.count.Store(1)
	m := newTestManager(t, b, &fakeExchange{}, nil)

	msg := &models.MControlMessage{
		Channel: models.ChannelOrderBook,
		Params:  models.MControlParams{TradingPair: "BTC/USDT", Limit: 20},
	}
	for i := 0; i < 3; i++ {
		if err := m.EnsureLoop(msg, "BTC/USDT:20"); err != nil {
			t.Fatal(err)
		}
	}

	if got := m.LoopCount(); got != 1 {
		t.Fatalf("expected a single loop, got %d", got)
	}
	m.StopAll()
}

func TestManager_StaleStopDoesNotKillReplacementLoop(t *testing.T) {
	b := &fakeBroadcaster{}
	b.count.Store(1)
	m := newTestManager(t, b, &fakeExchange{}, nil)

	msg := &models.MControlMessage{
		Channel: models.ChannelMarketData,
		Params:  models.MControlParams{TradingPair: "BTC/USDT"},
	}
	if err := m.EnsureLoop(msg, "BTC/USDT"); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	live := m.loops[loopKey(models.ChannelMarketData, "BTC/USDT")]
	m.mu.Unlock()

	// A loop that was already replaced must not cancel the live one when it
	// tries to stop itself.
	var cancelled bool
	stale := &loop{
		channel: models.ChannelMarketData,
		key:     "BTC/USDT",
		cancel:  func() { cancelled = true },
	}
	if !m.stop(stale.channel, stale.key, stale) {
		t.Fatal("a stale loop must be told to exit")
	}
	if cancelled {
		t.Fatal("stale stop cancelled its own func, meaning it matched the registry")
	}
	if got := m.LoopCount(); got != 1 {
		t.Fatalf("live loop gone after stale stop, %d loops left", got)
	}

	// With subscribers present, even a matching self-stop is refused
	if m.stop(live.channel, live.key, live) {
		t.Fatal("stop must keep a loop whose key has subscribers")
	}
	if got := m.LoopCount(); got != 1 {
		t.Fatalf("expected loop kept, %d loops left", got)
	}

	// Last subscriber gone: now it stops
	b.count.Store(0)
	if !m.stop(live.channel, live.key, live) {
		t.Fatal("stop must remove the loop once its key is empty")
	}
	if got := m.LoopCount(); got != 0 {
		t.Fatalf("expected no loops, got %d", got)
	}
}

// -----------------------------------------------------------------------------
// De-duplication policies
// -----------------------------------------------------------------------------

func TestKlineFetch_DedupByOpenTime(t *testing.T) {
	openTime := int64(1700000000000)
	client := &fakeExchange{
		getOHLCV: func(pair, timeframe string, limit int) ([]models.MCandle, error) {
			return []models.MCandle{{
				Symbol: pair, Timeframe: timeframe, Timestamp: openTime,
				Open: 100, High: 110, Low: 90, Close: 105, Volume: 10,
			}}, nil
		},
	}

	m := newTestManager(t, &fakeBroadcaster{}, client, nil)
	fetch := m.klineFetch("BTC/USDT", "1h")
	ctx := context.Background()

	env, err := fetch(ctx)
	if err != nil || env == nil {
		t.Fatalf("expected first candle published, got env=%v err=%v", env, err)
	}

	// Same open time repeated: zero publishes
	for i := 0; i < 5; i++ {
		env, err = fetch(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if env != nil {
			t.Fatal("expected repeat candle to be suppressed")
		}
	}

	// New candle: exactly one publish
	openTime += 3600000
	env, err = fetch(ctx)
	if err != nil || env == nil {
		t.Fatalf("expected new candle published, got env=%v err=%v", env, err)
	}
	candle, ok := env.Data.(models.MCandle)
	if !ok || candle.Timestamp != openTime {
		t.Fatalf("expected candle with new open time, got %#v", env.Data)
	}
}

func TestTradesFetch_DedupBySeenIDs(t *testing.T) {
	trades := []models.MTrade{
		{ID: "a", Price: 100, Amount: 1},
		{ID: "b", Price: 101, Amount: 2},
	}
	client := &fakeExchange{
		getTrades: func(pair string, limit int) ([]models.MTrade, error) {
			return trades, nil
		},
	}

	m := newTestManager(t, &fakeBroadcaster{}, client, nil)
	fetch := m.tradesFetch("BTC/USDT", 50)
	ctx := context.Background()

	env, err := fetch(ctx)
	if err != nil || env == nil {
		t.Fatalf("expected first batch published, got env=%v err=%v", env, err)
	}
	if got := len(env.Data.([]models.MTrade)); got != 2 {
		t.Fatalf("expected 2 new trades, got %d", got)
	}

	// Re-delivering the same identifiers never re-publishes
	for i := 0; i < 3; i++ {
		env, err = fetch(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if env != nil {
			t.Fatal("expected already-seen trades to be suppressed")
		}
	}

	// Mixed batch: only the unseen trade goes out
	trades = []models.MTrade{
		{ID: "b", Price: 101, Amount: 2},
		{ID: "c", Price: 102, Amount: 3},
	}
	env, err = fetch(ctx)
	if err != nil || env == nil {
		t.Fatalf("expected mixed batch published, got env=%v err=%v", env, err)
	}
	published := env.Data.([]models.MTrade)
	if len(published) != 1 || published[0].ID != "c" {
		t.Fatalf("expected only trade c, got %#v", published)
	}
}

// -----------------------------------------------------------------------------
// Channel payloads
// -----------------------------------------------------------------------------

func TestOverviewFetch_AggregatesAndSummarizes(t *testing.T) {
	client := &fakeExchange{
		getTicker: func(pair string) (models.MTicker, error) {
			if pair == "BTC/USDT" {
				return models.MTicker{Last: 50000, Percentage: 2.5, QuoteVolume: 1000}, nil
			}
			return models.MTicker{Last: 3000, Percentage: -1.0, QuoteVolume: 500}, nil
		},
	}

	m := newTestManager(t, &fakeBroadcaster{}, client, nil)
	fetch := m.overviewFetch([]string{"BTC/USDT", "ETH/USDT"})

	env, err := fetch(context.Background())
	if err != nil || env == nil {
		t.Fatalf("expected overview published, got env=%v err=%v", env, err)
	}

	overview := env.Data.(models.MMarketOverview)
	if len(overview.MarketData) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(overview.MarketData))
	}
	s := overview.Summary
	if s.TotalPairs != 2 || s.Gainers != 1 || s.Losers != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.TotalVolume != 1500 {
		t.Fatalf("expected total volume 1500, got %f", s.TotalVolume)
	}
	if s.AvgChange != 0.75 {
		t.Fatalf("expected avg change 0.75, got %f", s.AvgChange)
	}
}

func TestBotStatusFetch_SilentWhenBotMissing(t *testing.T) {
	bots := botstate.NewProvider()
	m := newTestManager(t, &fakeBroadcaster{}, &fakeExchange{}, bots)
	fetch := m.botStatusFetch(7)
	ctx := context.Background()

	env, err := fetch(ctx)
	if err != nil {
		t.Fatalf("missing bot must not be an error, got %v", err)
	}
	if env != nil {
		t.Fatal("expected silence for a bot that is not running")
	}

	bots.Update(models.MBotStatus{BotID: 7, Status: "running", PnL: 12.5})
	env, err = fetch(ctx)
	if err != nil || env == nil {
		t.Fatalf("expected status published, got env=%v err=%v", env, err)
	}
	if env.BotID != 7 {
		t.Fatalf("expected bot_id 7 on envelope, got %d", env.BotID)
	}
	status := env.Data.(models.MBotStatus)
	if status.PnL != 12.5 {
		t.Fatalf("expected pnl passthrough, got %f", status.PnL)
	}
}

// -----------------------------------------------------------------------------
// Fault containment
// -----------------------------------------------------------------------------

func TestTick_SurvivesFetchPanic(t *testing.T) {
	b := &fakeBroadcaster{}
	b.count.Store(1)
	m := newTestManager(t, b, &fakeExchange{}, nil)

	l := &loop{
		channel: models.ChannelMarketData,
		key:     "BTC/USDT",
		cadence: time.Second,
		fetch: func(ctx context.Context) (*models.MEnvelope, error) {
			panic("upstream client bug")
		},
	}

	if alive := m.tick(context.Background(), l); !alive {
		t.Fatal("a panicking tick must not kill the loop")
	}
}

func TestTick_FetchErrorSkipsTick(t *testing.T) {
	b := &fakeBroadcaster{}
	b.count.Store(1)
	m := newTestManager(t, b, &fakeExchange{}, nil)

	l := &loop{
		channel: models.ChannelMarketData,
		key:     "BTC/USDT",
		cadence: time.Second,
		fetch: func(ctx context.Context) (*models.MEnvelope, error) {
			return nil, context.DeadlineExceeded
		},
	}

	if alive := m.tick(context.Background(), l); !alive {
		t.Fatal("a fetch error must not kill the loop")
	}
	if got := b.publishCount(); got != 0 {
		t.Fatalf("expected nothing published on a failed tick, got %d", got)
	}
}
