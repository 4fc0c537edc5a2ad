package models

// -----------------------------------------------------------------------------
// Market Data Structures (Exchange-shaped)
// -----------------------------------------------------------------------------

// MTicker mirrors the exchange ticker response for one trading pair.
type MTicker struct {
	Symbol      string  `json:"symbol"`
	Last        float64 `json:"last"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	BaseVolume  float64 `json:"baseVolume"`
	QuoteVolume float64 `json:"quoteVolume"`
	Change      float64 `json:"change"`
	Percentage  float64 `json:"percentage"`
}

// -----------------------------------------------------------------------------

// MMarketData is the per-pair payload pushed on the market_data channel.
type MMarketData struct {
	Price      float64 `json:"price"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Volume     float64 `json:"volume"`
	Change     float64 `json:"change"`
	Percentage float64 `json:"percentage"`
}

// -----------------------------------------------------------------------------

// MCandle is one OHLCV candle. Timestamp is the candle open time in ms.
type MCandle struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// -----------------------------------------------------------------------------

// MOrderBook holds the top-N levels. Each level is [price, amount].
type MOrderBook struct {
	Bids [][2]float64 `json:"bids"`
	Asks [][2]float64 `json:"asks"`
}

// -----------------------------------------------------------------------------

// MTrade is one executed trade from the public trade feed.
type MTrade struct {
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // buy | sell
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Cost      float64 `json:"cost"`
}

// -----------------------------------------------------------------------------
// Archive records: published snapshots paired with their payload source, so
// the real/simulated distinction survives persistence.
// -----------------------------------------------------------------------------

type MTickerRecord struct {
	MTicker
	Source string
}

type MCandleRecord struct {
	MCandle
	Source string
}

// -----------------------------------------------------------------------------
// Market Overview (aggregate of several pairs)
// -----------------------------------------------------------------------------

type MPairSnapshot struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Change      float64 `json:"change"`
	Percentage  float64 `json:"percentage"`
	Volume      float64 `json:"volume"`
	QuoteVolume float64 `json:"quoteVolume"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
}

type MOverviewSummary struct {
	TotalPairs  int     `json:"total_pairs"`
	Gainers     int     `json:"gainers"`
	Losers      int     `json:"losers"`
	AvgChange   float64 `json:"avg_change"`
	TotalVolume float64 `json:"total_volume"`
}

type MMarketOverview struct {
	MarketData []MPairSnapshot  `json:"market_data"`
	Summary    MOverviewSummary `json:"summary"`
}

// -----------------------------------------------------------------------------
// Bot Status (from the running-bot collaborator)
// -----------------------------------------------------------------------------

type MBotStatus struct {
	BotID         int     `json:"bot_id"`
	Status        string  `json:"status"`
	TradingPair   string  `json:"trading_pair"`
	PendingOrders int     `json:"pending_orders"`
	FilledOrders  int     `json:"filled_orders"`
	Position      float64 `json:"position"`
	PnL           float64 `json:"pnl"`
	UpdatedAt     int64   `json:"updated_at"`
}
