package storage

import (
	"context"
	"time"

	"trade-stream/src/interfaces"
	"trade-stream/src/logger"
	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// Archiver drains snapshots published by the channel loops and writes them
// in batches. Publishers hand off through a buffered channel and never block
// on the database.
// -----------------------------------------------------------------------------

const (
	archiveBufferSize = 1024
	flushInterval     = 5 * time.Second
	cleanupInterval   = time.Hour
)

type Archiver struct {
	Archive interfaces.IArchive
	Logger  *logger.Logger

	tickers chan models.MTickerRecord
	candles chan models.MCandleRecord
}

// -----------------------------------------------------------------------------

func NewArchiver(archive interfaces.IArchive, log *logger.Logger) *Archiver {
	return &Archiver{
		Archive: archive,
		Logger:  log,
		tickers: make(chan models.MTickerRecord, archiveBufferSize),
		candles: make(chan models.MCandleRecord, archiveBufferSize),
	}
}

// -----------------------------------------------------------------------------

// OfferTicker enqueues a ticker snapshot with its source tag; drops it when
// the buffer is full rather than stalling a publisher loop.
func (a *Archiver) OfferTicker(t models.MTicker, source string) {
	select {
	case a.tickers <- models.MTickerRecord{MTicker: t, Source: source}:
	default:
	}
}

// -----------------------------------------------------------------------------

// OfferCandle enqueues a candle; same drop policy as OfferTicker.
func (a *Archiver) OfferCandle(c models.MCandle, source string) {
	select {
	case a.candles <- models.MCandleRecord{MCandle: c, Source: source}:
	default:
	}
}

// -----------------------------------------------------------------------------

// Run flushes accumulated snapshots every flushInterval and enforces the
// retention policy hourly. Returns once ctx is cancelled and a final flush
// completed.
func (a *Archiver) Run(ctx context.Context) error {
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()

	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flush()
			return nil

		case <-flush.C:
			a.flush()

		case <-cleanup.C:
			if err := a.Archive.CleanupOldData(); err != nil {
				a.Logger.Error("Cleanup failed: %v", err)
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (a *Archiver) flush() {
	var tickers []models.MTickerRecord
	var candles []models.MCandleRecord

	for {
		select {
		case t := <-a.tickers:
			tickers = append(tickers, t)
			continue
		default:
		}
		break
	}
	for {
		select {
		case c := <-a.candles:
			candles = append(candles, c)
			continue
		default:
		}
		break
	}

	if err := a.Archive.SaveTickers(tickers); err != nil {
		a.Logger.Error("Failed to save %d tickers: %v", len(tickers), err)
	}
	if err := a.Archive.SaveCandles(candles); err != nil {
		a.Logger.Error("Failed to save %d candles: %v", len(candles), err)
	}
}
