package publisher

import (
	"context"
	"fmt"
	"time"

	"trade-stream/src/models"
	"trade-stream/src/utils"
)

// -----------------------------------------------------------------------------
// Per-channel fetch builders. Each closure owns its de-duplication state;
// a loop is single-goroutine so no locking is needed there.
// -----------------------------------------------------------------------------

func (m *Manager) buildFetch(msg *models.MControlMessage, key string) (FetchFunc, time.Duration, error) {
	ch := m.Config.Channels

	switch msg.Channel {
	case models.ChannelMarketData:
		return m.marketDataFetch(msg.Params.TradingPair),
			time.Duration(ch.MarketDataSeconds) * time.Second, nil

	case models.ChannelKlineData:
		timeframe := msg.Params.Timeframe
		if timeframe == "" {
			timeframe = "1h"
		}
		return m.klineFetch(msg.Params.TradingPair, timeframe),
			klineCadence(timeframe, ch.KlineDataSeconds), nil

	case models.ChannelOrderBook:
		limit := msg.Params.Limit
		if limit <= 0 {
			limit = ch.OrderBookDepth
		}
		if limit <= 0 {
			limit = 20
		}
		return m.orderBookFetch(msg.Params.TradingPair, limit),
			time.Duration(ch.OrderBookSeconds) * time.Second, nil

	case models.ChannelTrades:
		limit := msg.Params.Limit
		if limit <= 0 {
			limit = 50
		}
		return m.tradesFetch(msg.Params.TradingPair, limit),
			time.Duration(ch.TradesSeconds) * time.Second, nil

	case models.ChannelBotStatus:
		return m.botStatusFetch(msg.Params.BotID),
			time.Duration(ch.BotStatusSeconds) * time.Second, nil

	case models.ChannelMarketOverview:
		return m.overviewFetch(ch.OverviewPairs),
			time.Duration(ch.MarketOverviewSeconds) * time.Second, nil

	default:
		return nil, 0, fmt.Errorf("unknown channel: %s", msg.Channel)
	}
}

// -----------------------------------------------------------------------------

// klineCadence scales the base cadence with the timeframe; a daily candle
// does not need polling every few seconds.
func klineCadence(timeframe string, baseSeconds int) time.Duration {
	base := time.Duration(baseSeconds) * time.Second
	switch timeframe {
	case "1m":
		return base
	case "5m":
		return 2 * base
	case "15m":
		return 4 * base
	case "1h":
		return 6 * base
	case "4h":
		return 12 * base
	default: // 1d and anything unknown
		return 24 * base
	}
}

// -----------------------------------------------------------------------------

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// -----------------------------------------------------------------------------
// market_data: single-pair ticker, no de-duplication
// -----------------------------------------------------------------------------

func (m *Manager) marketDataFetch(pair string) FetchFunc {
	client := m.Resolver.ClientFor(pair)

	return func(ctx context.Context) (*models.MEnvelope, error) {
		ticker, err := client.GetTicker(ctx, pair)
		if err != nil {
			return nil, err
		}

		if m.Sink != nil {
			m.Sink.OfferTicker(ticker, client.Source())
		}

		return &models.MEnvelope{
			Type:        models.ChannelMarketData,
			TradingPair: pair,
			Timestamp:   stamp(),
			Source:      client.Source(),
			Data: models.MMarketData{
				Price:      ticker.Last,
				High:       ticker.High,
				Low:        ticker.Low,
				Bid:        ticker.Bid,
				Ask:        ticker.Ask,
				Volume:     ticker.BaseVolume,
				Change:     ticker.Change,
				Percentage: ticker.Percentage,
			},
		}, nil
	}
}

// -----------------------------------------------------------------------------
// kline_data: publish only when the candle open time moved
// -----------------------------------------------------------------------------

func (m *Manager) klineFetch(pair, timeframe string) FetchFunc {
	client := m.Resolver.ClientFor(pair)
	var lastOpenTime int64 = -1

	return func(ctx context.Context) (*models.MEnvelope, error) {
		candles, err := client.GetOHLCV(ctx, pair, timeframe, 1)
		if err != nil {
			return nil, err
		}
		if len(candles) == 0 {
			return nil, nil
		}

		candle := candles[len(candles)-1]
		if candle.Timestamp == lastOpenTime {
			return nil, nil
		}
		lastOpenTime = candle.Timestamp

		if m.Sink != nil {
			m.Sink.OfferCandle(candle, client.Source())
		}

		return &models.MEnvelope{
			Type:        models.ChannelKlineData,
			TradingPair: pair,
			Timeframe:   timeframe,
			Timestamp:   stamp(),
			Source:      client.Source(),
			Data:        candle,
		}, nil
	}
}

// -----------------------------------------------------------------------------
// order_book: top-N levels, no de-duplication
// -----------------------------------------------------------------------------

func (m *Manager) orderBookFetch(pair string, limit int) FetchFunc {
	client := m.Resolver.ClientFor(pair)

	return func(ctx context.Context) (*models.MEnvelope, error) {
		book, err := client.GetOrderBook(ctx, pair, limit)
		if err != nil {
			return nil, err
		}

		return &models.MEnvelope{
			Type:        models.ChannelOrderBook,
			TradingPair: pair,
			Limit:       limit,
			Timestamp:   stamp(),
			Source:      client.Source(),
			Data:        book,
		}, nil
	}
}

// -----------------------------------------------------------------------------
// trades: publish only identifiers not seen in the bounded window
// -----------------------------------------------------------------------------

func (m *Manager) tradesFetch(pair string, limit int) FetchFunc {
	client := m.Resolver.ClientFor(pair)
	seen := utils.NewIDWindow(m.Config.Channels.TradesSeenWindow)

	return func(ctx context.Context) (*models.MEnvelope, error) {
		trades, err := client.GetTrades(ctx, pair, limit)
		if err != nil {
			return nil, err
		}

		newTrades := make([]models.MTrade, 0, len(trades))
		for _, trade := range trades {
			if seen.Seen(trade.ID) {
				continue
			}
			seen.Add(trade.ID)
			newTrades = append(newTrades, trade)
		}

		if len(newTrades) == 0 {
			return nil, nil
		}

		return &models.MEnvelope{
			Type:        models.ChannelTrades,
			TradingPair: pair,
			Timestamp:   stamp(),
			Source:      client.Source(),
			Data:        newTrades,
		}, nil
	}
}

// -----------------------------------------------------------------------------
// bot_status: live state of one running bot; a stopped bot is silence,
// not an error
// -----------------------------------------------------------------------------

func (m *Manager) botStatusFetch(botID int) FetchFunc {
	return func(ctx context.Context) (*models.MEnvelope, error) {
		status, ok := m.Bots.GetBotState(botID)
		if !ok {
			return nil, nil
		}

		return &models.MEnvelope{
			Type:      models.ChannelBotStatus,
			BotID:     botID,
			Timestamp: stamp(),
			Source:    models.SourceReal,
			Data:      status,
		}, nil
	}
}

// -----------------------------------------------------------------------------
// market_overview: aggregate ticker for the configured pair set
// -----------------------------------------------------------------------------

func (m *Manager) overviewFetch(pairs []string) FetchFunc {
	return func(ctx context.Context) (*models.MEnvelope, error) {
		snapshots := make([]models.MPairSnapshot, 0, len(pairs))
		source := models.SourceReal

		for _, pair := range pairs {
			client := m.Resolver.ClientFor(pair)
			ticker, err := client.GetTicker(ctx, pair)
			if err != nil {
				// One failing pair must not empty the whole overview
				m.Logger.Debug("Overview fetch failed for %s: %v", pair, err)
				continue
			}
			if client.Source() == models.SourceSimulated {
				source = models.SourceSimulated
			}

			if m.Sink != nil {
				m.Sink.OfferTicker(ticker, client.Source())
			}

			snapshots = append(snapshots, models.MPairSnapshot{
				Symbol:      pair,
				Price:       ticker.Last,
				Change:      ticker.Change,
				Percentage:  ticker.Percentage,
				Volume:      ticker.BaseVolume,
				QuoteVolume: ticker.QuoteVolume,
				High:        ticker.High,
				Low:         ticker.Low,
			})
		}

		if len(snapshots) == 0 {
			return nil, fmt.Errorf("no overview data for any configured pair")
		}

		summary := models.MOverviewSummary{TotalPairs: len(snapshots)}
		var changeSum float64
		for _, snap := range snapshots {
			if snap.Percentage > 0 {
				summary.Gainers++
			} else if snap.Percentage < 0 {
				summary.Losers++
			}
			changeSum += snap.Percentage
			summary.TotalVolume += snap.QuoteVolume
		}
		summary.AvgChange = changeSum / float64(len(snapshots))

		return &models.MEnvelope{
			Type:      models.ChannelMarketOverview,
			Timestamp: stamp(),
			Source:    source,
			Data: models.MMarketOverview{
				MarketData: snapshots,
				Summary:    summary,
			},
		}, nil
	}
}
