package interfaces

import "trade-stream/src/models"

// -----------------------------------------------------------------------------
// IBotStateProvider is the injected lookup for running-bot state.
// The bot_status publisher must not reach into any process-wide registry.
// -----------------------------------------------------------------------------

type IBotStateProvider interface {

	// -----------------------------------------------------------------------------

	// GetBotState returns the live state of one bot, or false when the bot
	// is not running.
	GetBotState(botID int) (models.MBotStatus, bool)
}
