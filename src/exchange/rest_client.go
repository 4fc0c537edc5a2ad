package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"trade-stream/src/interfaces"
	"trade-stream/src/logger"
	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// RestClient fetches market data from the exchange gateway's public REST API.
// All requests go through the network manager so retries and proxy rotation
// apply uniformly.
// -----------------------------------------------------------------------------

type RestClient struct {
	BaseURL string
	Network interfaces.INetworkManager
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRestClient(cfg *models.MConfig, netMgr interfaces.INetworkManager) *RestClient {
	return &RestClient{
		BaseURL: cfg.Exchange.BaseURL,
		Network: netMgr,
		Logger:  logger.NewLogger(cfg.LogLevel, "RestClient"),
	}
}

// -----------------------------------------------------------------------------

func (c *RestClient) Source() string {
	return models.SourceReal
}

// -----------------------------------------------------------------------------

// GetTicker fetches the current ticker for one trading pair.
func (c *RestClient) GetTicker(ctx context.Context, pair string) (models.MTicker, error) {
	if err := ctx.Err(); err != nil {
		return models.MTicker{}, err
	}

	body, err := c.Network.Get(ctx, c.BaseURL+"/ticker", map[string]string{"symbol": pair})
	if err != nil {
		return models.MTicker{}, fmt.Errorf("ticker fetch for %s: %w", pair, err)
	}

	var ticker models.MTicker
	if err := json.Unmarshal(body, &ticker); err != nil {
		return models.MTicker{}, fmt.Errorf("ticker parse for %s: %w", pair, err)
	}
	ticker.Symbol = pair
	return ticker, nil
}

// -----------------------------------------------------------------------------

// GetOHLCV fetches candles. The gateway returns the ccxt list-of-lists shape:
// [[timestamp, open, high, low, close, volume], ...]
func (c *RestClient) GetOHLCV(ctx context.Context, pair, timeframe string, limit int) ([]models.MCandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := c.Network.Get(ctx, c.BaseURL+"/ohlcv", map[string]string{
		"symbol":    pair,
		"timeframe": timeframe,
		"limit":     strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("ohlcv fetch for %s: %w", pair, err)
	}

	var rows [][]float64
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("ohlcv parse for %s: %w", pair, err)
	}

	candles := make([]models.MCandle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, models.MCandle{
			Symbol:    pair,
			Timeframe: timeframe,
			Timestamp: int64(row[0]),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	return candles, nil
}

// -----------------------------------------------------------------------------

// GetOrderBook fetches the top-limit levels of the book.
func (c *RestClient) GetOrderBook(ctx context.Context, pair string, limit int) (models.MOrderBook, error) {
	if err := ctx.Err(); err != nil {
		return models.MOrderBook{}, err
	}

	body, err := c.Network.Get(ctx, c.BaseURL+"/orderbook", map[string]string{
		"symbol": pair,
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return models.MOrderBook{}, fmt.Errorf("orderbook fetch for %s: %w", pair, err)
	}

	var book models.MOrderBook
	if err := json.Unmarshal(body, &book); err != nil {
		return models.MOrderBook{}, fmt.Errorf("orderbook parse for %s: %w", pair, err)
	}
	return book, nil
}

// -----------------------------------------------------------------------------

// GetTrades fetches the most recent public trades.
func (c *RestClient) GetTrades(ctx context.Context, pair string, limit int) ([]models.MTrade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := c.Network.Get(ctx, c.BaseURL+"/trades", map[string]string{
		"symbol": pair,
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("trades fetch for %s: %w", pair, err)
	}

	var trades []models.MTrade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, fmt.Errorf("trades parse for %s: %w", pair, err)
	}
	for i := range trades {
		trades[i].Symbol = pair
	}
	return trades, nil
}
