package models

import (
	"fmt"
	"strconv"
)

// -----------------------------------------------------------------------------
// Inbound control messages (client -> server)
// -----------------------------------------------------------------------------

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

type MControlParams struct {
	TradingPair string `json:"trading_pair,omitempty"`
	Timeframe   string `json:"timeframe,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	BotID       int    `json:"bot_id,omitempty"`
}

type MControlMessage struct {
	Action  string         `json:"action"`
	Channel string         `json:"channel"`
	Params  MControlParams `json:"params"`
}

// -----------------------------------------------------------------------------

// SubscriptionKey derives the channel-specific key from the control params.
// Returns an error when a required param is missing.
func (m *MControlMessage) SubscriptionKey() (string, error) {
	switch m.Channel {
	case ChannelMarketOverview:
		return "global", nil
	case ChannelMarketData:
		if m.Params.TradingPair == "" {
			return "", fmt.Errorf("trading_pair is required for %s channel", m.Channel)
		}
		return m.Params.TradingPair, nil
	case ChannelKlineData:
		if m.Params.TradingPair == "" {
			return "", fmt.Errorf("trading_pair is required for %s channel", m.Channel)
		}
		tf := m.Params.Timeframe
		if tf == "" {
			tf = "1h"
		}
		return m.Params.TradingPair + ":" + tf, nil
	case ChannelOrderBook:
		if m.Params.TradingPair == "" {
			return "", fmt.Errorf("trading_pair is required for %s channel", m.Channel)
		}
		limit := m.Params.Limit
		if limit <= 0 {
			limit = 20
		}
		return m.Params.TradingPair + ":" + strconv.Itoa(limit), nil
	case ChannelTrades:
		if m.Params.TradingPair == "" {
			return "", fmt.Errorf("trading_pair is required for %s channel", m.Channel)
		}
		return m.Params.TradingPair + ":trades", nil
	case ChannelBotStatus:
		if m.Params.BotID <= 0 {
			return "", fmt.Errorf("bot_id is required for %s channel", m.Channel)
		}
		return strconv.Itoa(m.Params.BotID), nil
	default:
		return "", fmt.Errorf("unknown channel: %s", m.Channel)
	}
}
