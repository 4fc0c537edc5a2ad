package exchange

import (
	"trade-stream/src/interfaces"
	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// Resolver picks the client to use per trading pair: the real REST client
// when the pair is configured against the exchange gateway, the simulated
// generator otherwise. Publishers never need to know which one they got -
// the source tag in each payload carries the distinction to clients.
// -----------------------------------------------------------------------------

type Resolver struct {
	real      interfaces.IExchangeClient
	simulated interfaces.IExchangeClient
	realPairs map[string]bool
}

// -----------------------------------------------------------------------------

func NewResolver(cfg *models.MConfig, netMgr interfaces.INetworkManager) *Resolver {
	r := &Resolver{
		simulated: NewSimulatedClient(),
		realPairs: make(map[string]bool),
	}

	if cfg.Exchange.BaseURL != "" {
		r.real = NewRestClient(cfg, netMgr)
		for _, pair := range cfg.Exchange.Pairs {
			r.realPairs[pair] = true
		}
	}

	return r
}

// -----------------------------------------------------------------------------

// ClientFor returns the exchange client serving the given pair.
func (r *Resolver) ClientFor(pair string) interfaces.IExchangeClient {
	if r.real != nil && r.realPairs[pair] {
		return r.real
	}
	return r.simulated
}
