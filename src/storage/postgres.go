package storage

import (
	"database/sql"
	"fmt"
	"time"

	"trade-stream/src/logger"
	"trade-stream/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresArchive struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresArchive(cfg *models.MConfig, log *logger.Logger) (*PostgresArchive, error) {
	return &PostgresArchive{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresArchive initialized successfully")
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS tickers (
			symbol TEXT,
			timestamp BIGINT,
			price DOUBLE PRECISION,
			bid DOUBLE PRECISION,
			ask DOUBLE PRECISION,
			high DOUBLE PRECISION,
			low DOUBLE PRECISION,
			volume DOUBLE PRECISION,
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
			open_time BIGINT,
			open DOUBLE PRECISION,
			high DOUBLE PRECISION,
			low DOUBLE PRECISION,
			close DOUBLE PRECISION,
			volume DOUBLE PRECISION,
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

func (d *PostgresArchive) SaveTickers(tickers []models.MTickerRecord) error {
	if len(tickers) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO tickers (symbol, timestamp, price, bid, ask, high, low, volume, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, timestamp) DO NOTHING
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

func (d *PostgresArchive) SaveCandles(candles []models.MCandleRecord) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO candles (symbol, timeframe, open_time, open, high, low, close, volume, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, timeframe, open_time) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
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

func (d *PostgresArchive) CleanupOldData() error {
	cutoff := time.Now().AddDate(0, 0, -d.Config.Storage.RetentionDays).UnixMilli()

	if _, err := d.DB.Exec("DELETE FROM tickers WHERE timestamp < $1", cutoff); err != nil {
		return fmt.Errorf("failed to clean tickers: %w", err)
	}
	if _, err := d.DB.Exec("DELETE FROM candles WHERE open_time < $1", cutoff); err != nil {
		return fmt.Errorf("failed to clean candles: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
