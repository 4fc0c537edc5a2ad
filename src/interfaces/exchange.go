package interfaces

import (
	"context"

	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// IExchangeClient defines the contract for fetching market data snapshots.
// Every call takes a context so a slow upstream cannot stall a publisher
// loop past its deadline. Any error means "no data this tick".
// -----------------------------------------------------------------------------

type IExchangeClient interface {

	// -----------------------------------------------------------------------------

	// Source returns the payload source tag ("real" or "simulated").
	Source() string

	// -----------------------------------------------------------------------------

	// GetTicker returns the current ticker for one trading pair.
	GetTicker(ctx context.Context, pair string) (models.MTicker, error)

	// -----------------------------------------------------------------------------

	// GetOHLCV returns up to limit candles for (pair, timeframe),
	// most recent last.
	GetOHLCV(ctx context.Context, pair, timeframe string, limit int) ([]models.MCandle, error)

	// -----------------------------------------------------------------------------

	// GetOrderBook returns the top-limit bid/ask levels for a pair.
	GetOrderBook(ctx context.Context, pair string, limit int) (models.MOrderBook, error)

	// -----------------------------------------------------------------------------

	// GetTrades returns the most recent trades for a pair.
	GetTrades(ctx context.Context, pair string, limit int) ([]models.MTrade, error)
}
