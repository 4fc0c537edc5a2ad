package publisher

import (
	"context"
	"sync"
	"time"

	"trade-stream/src/interfaces"
	"trade-stream/src/logger"
	"trade-stream/src/metrics"
	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// One parameterized publisher loop serves every channel; what varies per
// channel is the cadence, the fetch function and the de-duplication policy
// baked into the fetch closure. A loop exists only while its (channel, key)
// has at least one subscriber.
// -----------------------------------------------------------------------------

// FetchFunc produces the envelope for one tick, or nil when the
// de-duplication policy says there is nothing new to publish.
type FetchFunc func(ctx context.Context) (*models.MEnvelope, error)

// -----------------------------------------------------------------------------

// Broadcaster is the fan-out surface the loops publish through.
type Broadcaster interface {
	Publish(channel, key string, envelope *models.MEnvelope) int
	SubscriberCount(channel, key string) int
}

// -----------------------------------------------------------------------------

// ClientResolver picks the exchange client (real or simulated) per pair.
type ClientResolver interface {
	ClientFor(pair string) interfaces.IExchangeClient
}

// -----------------------------------------------------------------------------

// SnapshotSink receives published snapshots for archiving, tagged with their
// payload source. May be nil.
type SnapshotSink interface {
	OfferTicker(t models.MTicker, source string)
	OfferCandle(c models.MCandle, source string)
}

// -----------------------------------------------------------------------------

type loop struct {
	channel string
	key     string
	cadence time.Duration
	fetch   FetchFunc
	cancel  context.CancelFunc
}

// -----------------------------------------------------------------------------

type Manager struct {
	Config      *models.MConfig
	Logger      *logger.Logger
	Broadcaster Broadcaster
	Resolver    ClientResolver
	Bots        interfaces.IBotStateProvider
	Sink        SnapshotSink

	ctx context.Context

	mu    sync.Mutex
	loops map[string]*loop
	wg    sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewManager(
	ctx context.Context,
	cfg *models.MConfig,
	log *logger.Logger,
	b Broadcaster,
	resolver ClientResolver,
	bots interfaces.IBotStateProvider,
	sink SnapshotSink,
) *Manager {
	return &Manager{
		Config:      cfg,
		Logger:      log,
		Broadcaster: b,
		Resolver:    resolver,
		Bots:        bots,
		Sink:        sink,
		ctx:         ctx,
		loops:       make(map[string]*loop),
	}
}

// -----------------------------------------------------------------------------

func loopKey(channel, key string) string {
	return channel + "|" + key
}

// -----------------------------------------------------------------------------

// EnsureLoop starts the publisher loop for the subscription named by msg,
// unless one is already running for its (channel, key).
func (m *Manager) EnsureLoop(msg *models.MControlMessage, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := loopKey(msg.Channel, key)
	if _, running := m.loops[id]; running {
		return nil
	}

	fetch, cadence, err := m.buildFetch(msg, key)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(m.ctx)
	l := &loop{
		channel: msg.Channel,
		key:     key,
		cadence: cadence,
		fetch:   fetch,
		cancel:  cancel,
	}
	m.loops[id] = l

	m.wg.Add(1)
	go m.run(ctx, l)

	m.Logger.Info("Started publisher loop %s/%s (every %v)", l.channel, l.key, l.cadence)
	return nil
}

// -----------------------------------------------------------------------------

// StopIfEmpty cancels the loop for (channel, key) when its last subscriber
// is gone. Called on unsubscribe and on disconnect cleanup; the loop's own
// per-tick check covers any race.
func (m *Manager) StopIfEmpty(channel, key string) {
	m.stop(channel, key, nil)
}

// -----------------------------------------------------------------------------

// stop cancels the registered loop for (channel, key). The subscriber count
// is re-checked under the mutex: a subscriber that arrived after the caller's
// emptiness check keeps the loop alive. self, when non-nil, must still be the
// registered loop - a stale loop stopping itself must not take down its
// replacement. Returns false only when the caller's loop is still registered
// and must keep running.
func (m *Manager) stop(channel, key string, self *loop) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := loopKey(channel, key)
	l, ok := m.loops[id]
	if !ok {
		return true
	}
	if self != nil && l != self {
		return true
	}
	if m.Broadcaster.SubscriberCount(channel, key) > 0 {
		return false
	}

	l.cancel()
	delete(m.loops, id)
	m.Logger.Info("Stopped publisher loop %s/%s", channel, key)
	return true
}

// -----------------------------------------------------------------------------

// StopAll cancels every loop and waits for them to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for id, l := range m.loops {
		l.cancel()
		delete(m.loops, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// -----------------------------------------------------------------------------

// LoopCount returns the number of running loops.
func (m *Manager) LoopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loops)
}

// -----------------------------------------------------------------------------
// Loop body
// -----------------------------------------------------------------------------

func (m *Manager) run(ctx context.Context, l *loop) {
	defer m.wg.Done()

	ticker := time.NewTicker(l.cadence)
	defer ticker.Stop()

	for {
		if !m.tick(ctx, l) {
			if m.stop(l.channel, l.key, l) {
				return
			}
			// A subscriber arrived between the tick's emptiness check and
			// the stop attempt; the loop is still wanted.
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// -----------------------------------------------------------------------------

// tick runs one fetch-and-publish cycle. Returns false when the key has no
// subscribers left and the loop should die. A fetch error or a panic is a
// skipped tick, never a dead loop.
func (m *Manager) tick(ctx context.Context, l *loop) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			m.Logger.Error("Publisher loop %s/%s panicked: %v", l.channel, l.key, r)
			alive = true
		}
	}()

	if m.Broadcaster.SubscriberCount(l.channel, l.key) == 0 {
		return false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, l.cadence)
	envelope, err := l.fetch(fetchCtx)
	cancel()

	if err != nil {
		if ctx.Err() == nil {
			m.Logger.Warning("Fetch failed for %s/%s: %v", l.channel, l.key, err)
			metrics.FetchErrors.WithLabelValues(l.channel).Inc()
		}
		return true
	}
	if envelope == nil {
		// De-duplication: nothing new this tick
		return true
	}

	m.Broadcaster.Publish(l.channel, l.key, envelope)
	metrics.Publishes.WithLabelValues(l.channel).Inc()
	return true
}
