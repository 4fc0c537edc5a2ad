package models

// -----------------------------------------------------------------------------
// Channel names
// -----------------------------------------------------------------------------

const (
	ChannelBotStatus      = "bot_status"
	ChannelMarketData     = "market_data"
	ChannelKlineData      = "kline_data"
	ChannelOrderBook      = "order_book"
	ChannelTrades         = "trades"
	ChannelMarketOverview = "market_overview"
)

// Channels lists every valid channel name.
var Channels = []string{
	ChannelBotStatus,
	ChannelMarketData,
	ChannelKlineData,
	ChannelOrderBook,
	ChannelTrades,
	ChannelMarketOverview,
}

// -----------------------------------------------------------------------------

// IsChannel reports whether name is one of the known channels.
func IsChannel(name string) bool {
	for _, c := range Channels {
		if c == name {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Control envelope types (non-data replies)
// -----------------------------------------------------------------------------

const (
	TypeSubscribeSuccess   = "subscription_success"
	TypeUnsubscribeSuccess = "unsubscribe_success"
	TypePong               = "pong"
	TypeError              = "error"
)

// -----------------------------------------------------------------------------
// Payload source tags
// -----------------------------------------------------------------------------

const (
	SourceReal      = "real"
	SourceSimulated = "simulated"
)

// -----------------------------------------------------------------------------
// MEnvelope is the single outbound message shape.
// Type is the channel name for data pushes, or one of the control types above.
// Timestamp reflects fetch time (ISO-8601) so clients can discard stale data.
// -----------------------------------------------------------------------------

type MEnvelope struct {
	Type        string          `json:"type"`
	Channel     string          `json:"channel,omitempty"`
	TradingPair string          `json:"trading_pair,omitempty"`
	Timeframe   string          `json:"timeframe,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	BotID       int             `json:"bot_id,omitempty"`
	Params      *MControlParams `json:"params,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Source      string          `json:"source,omitempty"`
	Message     string          `json:"message,omitempty"`
	Data        interface{}     `json:"data,omitempty"`
}
