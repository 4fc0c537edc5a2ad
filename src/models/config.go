package models

// MConfig Structure
type MConfig struct {
	Name     string          `yaml:"name"`
	Host     string          `yaml:"host"`
	Port     int             `yaml:"port"`
	LogLevel string          `yaml:"log_level"`
	Storage  MStorageConfig  `yaml:"storage"`
	Network  MNetworkConfig  `yaml:"network"`
	Exchange MExchangeConfig `yaml:"exchange"`
	Channels MChannelsConfig `yaml:"channels"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"` // sqlite | postgres | none
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MNetworkConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Proxies        []string `yaml:"proxies"`
	RequestTimeout int      `yaml:"timeout"`
	MaxRetries     int      `yaml:"retries"`
	UserAgent      string   `yaml:"user_agent"`
}

type MExchangeConfig struct {
	BaseURL string   `yaml:"base_url"` // empty means all pairs run simulated
	Pairs   []string `yaml:"pairs"`    // pairs served by the real exchange API
}

// MChannelsConfig holds the push cadence per channel in seconds.
// Exact cadence is a tunable, not a contract.
type MChannelsConfig struct {
	MarketOverviewSeconds int      `yaml:"market_overview_seconds"`
	MarketDataSeconds     int      `yaml:"market_data_seconds"`
	KlineDataSeconds      int      `yaml:"kline_data_seconds"`
	OrderBookSeconds      int      `yaml:"order_book_seconds"`
	TradesSeconds         int      `yaml:"trades_seconds"`
	BotStatusSeconds      int      `yaml:"bot_status_seconds"`
	TradesSeenWindow      int      `yaml:"trades_seen_window"`
	OrderBookDepth        int      `yaml:"order_book_depth"`
	OverviewPairs         []string `yaml:"overview_pairs"`
}
