package botstate

import (
	"sync"
	"time"

	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// Provider is the in-process registry of running bots. The bot_status
// publisher only sees the IBotStateProvider interface; bot runners push
// their state here as they trade.
// -----------------------------------------------------------------------------

type Provider struct {
	mu    sync.RWMutex
	state map[int]models.MBotStatus
}

// -----------------------------------------------------------------------------

func NewProvider() *Provider {
	return &Provider{
		state: make(map[int]models.MBotStatus),
	}
}

// -----------------------------------------------------------------------------

// Update records the latest state for a bot, stamping the update time.
func (p *Provider) Update(status models.MBotStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status.UpdatedAt = time.Now().UnixMilli()
	p.state[status.BotID] = status
}

// -----------------------------------------------------------------------------

// Remove drops a bot from the registry (called when its process stops).
func (p *Provider) Remove(botID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.state, botID)
}

// -----------------------------------------------------------------------------

// GetBotState returns the live state of one bot, or false when unknown.
func (p *Provider) GetBotState(botID int) (models.MBotStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status, ok := p.state[botID]
	return status, ok
}
