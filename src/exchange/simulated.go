package exchange

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// SimulatedClient generates plausible market data when no real exchange is
// configured for a pair. Values follow a bounded random walk around a
// per-asset base price, so a quiet market and "no data" look the same to
// downstream consumers. Payloads are tagged simulated.
//
// Coherence invariants: ask >= bid, high >= max(open, close),
// low <= min(open, close), every price strictly positive.
// -----------------------------------------------------------------------------

type SimulatedClient struct {
	mu      sync.Mutex
	rng     *rand.Rand
	prices  map[string]float64         // last price per pair
	candles map[string]*models.MCandle // open candle per pair:timeframe
	tradeID int64
}

// -----------------------------------------------------------------------------

func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		prices:  make(map[string]float64),
		candles: make(map[string]*models.MCandle),
	}
}

// -----------------------------------------------------------------------------

func (s *SimulatedClient) Source() string {
	return models.SourceSimulated
}

// -----------------------------------------------------------------------------

// basePrice picks a plausible anchor per asset.
func basePrice(pair string) float64 {
	switch {
	case strings.HasPrefix(pair, "BTC"):
		return 50000
	case strings.HasPrefix(pair, "ETH"):
		return 3000
	case strings.HasPrefix(pair, "BNB"):
		return 300
	case strings.HasPrefix(pair, "SOL"):
		return 150
	default:
		return 100
	}
}

// -----------------------------------------------------------------------------

// step advances the random walk for pair and returns the new last price.
// The walk is clamped to [base/2, base*2] so it can neither go non-positive
// nor diverge tick-to-tick.
func (s *SimulatedClient) step(pair string) float64 {
	base := basePrice(pair)
	price, ok := s.prices[pair]
	if !ok {
		price = base
	}

	price += price * (s.rng.Float64() - 0.5) * 0.01 // up to +/-0.5% per tick
	if price < base/2 {
		price = base / 2
	}
	if price > base*2 {
		price = base * 2
	}

	s.prices[pair] = price
	return price
}

// -----------------------------------------------------------------------------

func (s *SimulatedClient) GetTicker(ctx context.Context, pair string) (models.MTicker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.step(pair)
	base := basePrice(pair)
	spread := last * 0.0005

	change := last - base
	return models.MTicker{
		Symbol:      pair,
		Last:        last,
		High:        last * (1 + s.rng.Float64()*0.01),
		Low:         last * (1 - s.rng.Float64()*0.01),
		Bid:         last - spread,
		Ask:         last + spread,
		BaseVolume:  1000 + s.rng.Float64()*9000,
		QuoteVolume: last * (1000 + s.rng.Float64()*9000),
		Change:      change,
		Percentage:  change / base * 100,
	}, nil
}

// -----------------------------------------------------------------------------

var timeframeDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// TimeframeDuration returns the candle period for a timeframe tag,
// defaulting to one hour for unknown tags.
func TimeframeDuration(timeframe string) time.Duration {
	if d, ok := timeframeDurations[timeframe]; ok {
		return d
	}
	return time.Hour
}

// -----------------------------------------------------------------------------

// GetOHLCV keeps one open candle per (pair, timeframe) and rolls it when the
// period boundary passes, so the open-time based de-duplication downstream
// behaves exactly as with a real feed.
func (s *SimulatedClient) GetOHLCV(ctx context.Context, pair, timeframe string, limit int) ([]models.MCandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	period := TimeframeDuration(timeframe)
	openTime := time.Now().Truncate(period).UnixMilli()
	key := pair + ":" + timeframe

	candle := s.candles[key]
	if candle == nil || candle.Timestamp != openTime {
		price := s.step(pair)
		candle = &models.MCandle{
			Symbol:    pair,
			Timeframe: timeframe,
			Timestamp: openTime,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    100 + s.rng.Float64()*900,
		}
		s.candles[key] = candle
	} else {
		candle.Close = s.step(pair)
		if candle.Close > candle.High {
			candle.High = candle.Close
		}
		if candle.Close < candle.Low {
			candle.Low = candle.Close
		}
		candle.Volume += 10 + s.rng.Float64()*40
	}

	return []models.MCandle{*candle}, nil
}

// -----------------------------------------------------------------------------

// GetOrderBook builds both sides by walking multiplicatively outward from the
// mid price, so bids are strictly descending, asks strictly ascending, and
// every level stays positive at any requested depth.
func (s *SimulatedClient) GetOrderBook(ctx context.Context, pair string, limit int) (models.MOrderBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mid := s.step(pair)
	book := models.MOrderBook{
		Bids: make([][2]float64, 0, limit),
		Asks: make([][2]float64, 0, limit),
	}

	spread := mid * 0.0005
	bid := mid - spread
	ask := mid + spread

	for i := 0; i < limit; i++ {
		// 1 to 5 basis points between adjacent levels
		bid *= 1 - (0.0001 + s.rng.Float64()*0.0004)
		ask *= 1 + (0.0001 + s.rng.Float64()*0.0004)
		book.Bids = append(book.Bids, [2]float64{bid, 0.1 + s.rng.Float64()*4.9})
		book.Asks = append(book.Asks, [2]float64{ask, 0.1 + s.rng.Float64()*4.9})
	}

	return book, nil
}

// -----------------------------------------------------------------------------

func (s *SimulatedClient) GetTrades(ctx context.Context, pair string, limit int) ([]models.MTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 1 + s.rng.Intn(3)
	if n > limit {
		n = limit
	}

	now := time.Now().UnixMilli()
	trades := make([]models.MTrade, 0, n)

	for i := 0; i < n; i++ {
		s.tradeID++
		side := "buy"
		if s.rng.Float64() > 0.5 {
			side = "sell"
		}

		price := s.step(pair)
		amount := 0.01 + s.rng.Float64()*1.99
		trades = append(trades, models.MTrade{
			ID:        strconv.FormatInt(s.tradeID, 10),
			Timestamp: now,
			Symbol:    pair,
			Side:      side,
			Price:     price,
			Amount:    amount,
			Cost:      price * amount,
		})
	}

	return trades, nil
}
