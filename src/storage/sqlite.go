package storage

import (
	"database/sql"
	"fmt"
	"time"

	"trade-stream/src/logger"
	"trade-stream/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteArchive struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteArchive(cfg *models.MConfig, log *logger.Logger) (*SQLiteArchive, error) {
	return &SQLiteArchive{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	query := `
		CREATE TABLE IF NOT EXISTS tickers (
			symbol TEXT,
			timestamp INTEGER,
			price REAL,
			bid REAL,
			ask REAL,
			high REAL,
			low REAL,
			volume REAL,
			source TEXT,
			PRIMARY KEY (symbol, timestamp)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tickers: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT,
			timeframe TEXT,
			open_time INTEGER,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			volume REAL,
			source TEXT,
			PRIMARY KEY (symbol, timeframe, open_time)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create candles: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) SaveTickers(tickers []models.MTickerRecord) error {
	if len(tickers) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO tickers (symbol, timestamp, price, bid, ask, high, low, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, t := range tickers {
		_, err := stmt.Exec(t.Symbol, now, t.Last, t.Bid, t.Ask, t.High, t.Low, t.BaseVolume, t.Source)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) SaveCandles(candles []models.MCandleRecord) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, timeframe, open_time, open, high, low, close, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, c.Timeframe, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume, c.Source)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) CleanupOldData() error {
	cutoff := time.Now().AddDate(0, 0, -d.Config.Storage.RetentionDays).UnixMilli()

	if _, err := d.DB.Exec("DELETE FROM tickers WHERE timestamp < ?", cutoff); err != nil {
		return fmt.Errorf("failed to clean tickers: %w", err)
	}
	if _, err := d.DB.Exec("DELETE FROM candles WHERE open_time < ?", cutoff); err != nil {
		return fmt.Errorf("failed to clean candles: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
