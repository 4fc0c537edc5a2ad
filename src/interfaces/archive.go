package interfaces

import "trade-stream/src/models"

// -----------------------------------------------------------------------------
// IArchive defines the contract for snapshot persistence.
// Publishing never blocks on the archive; writes are batched off-path.
// -----------------------------------------------------------------------------

type IArchive interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveTickers inserts a batch of published ticker snapshots with their
	// source tags.
	SaveTickers(tickers []models.MTickerRecord) error

	// -----------------------------------------------------------------------------

	// SaveCandles inserts a batch of published candles with their source tags.
	SaveCandles(candles []models.MCandleRecord) error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes rows older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
