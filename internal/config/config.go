package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither a flag nor BARSIM_CONFIG names a file.
const DefaultPath = "configs/barsim.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the simulator binaries.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
	Risk     RiskConfig     `yaml:"risk"`
	Gather   GatherConfig   `yaml:"gather"`
	Pacing   PacingConfig   `yaml:"pacing"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and the market data endpoint used to gather
// historical bars.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig describes one replay run.
type BacktestConfig struct {
	Contracts    string            `yaml:"contracts"` // instrument TOML
	Source       string            `yaml:"source"`    // csv | parquet | sqlite
	Symbols      []string          `yaml:"symbols"`
	Strategy     string            `yaml:"strategy"`
	Params       map[string]string `yaml:"params"`
	InitialCash  string            `yaml:"initial_cash"`
	MarketFill   string            `yaml:"market_fill"` // open | close
	OrderIDStart int64             `yaml:"order_id_start"`
	ExecIDStart  int64             `yaml:"exec_id_start"`
	Duration     string            `yaml:"duration"` // "30 D"
	BarSize      string            `yaml:"bar_size"` // "5 mins"
	UseRTH       bool              `yaml:"use_rth"`
	KeepUpToDate bool              `yaml:"keep_up_to_date"`
	RiskFreeRate float64           `yaml:"risk_free_rate"` // annual, e.g. 0.03
	Parallelism  int               `yaml:"parallelism"`
}

// Cash parses InitialCash.
func (b BacktestConfig) Cash() (decimal.Decimal, error) {
	c, err := decimal.NewFromString(b.InitialCash)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("initial_cash %q: %w", b.InitialCash, err)
	}
	return c, nil
}

// RiskConfig defines pre-trade limits. Zero disables a limit.
type RiskConfig struct {
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
}

// GatherConfig controls historical bar downloads.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	EndDate         string   `yaml:"end_date"`
	Timeframe       string   `yaml:"timeframe"` // "1 min", "5 mins", "1 day"
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxRetries      int      `yaml:"max_retries"`
}

// PacingConfig throttles bar delivery for live-looking replays. Zero
// BarsPerSecond replays as fast as possible.
type PacingConfig struct {
	BarsPerSecond float64 `yaml:"bars_per_second"`
	Burst         int     `yaml:"burst"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// ResolvePath picks the config file: an explicit flag value wins, then
// BARSIM_CONFIG, then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("BARSIM_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if _, err := cfg.Backtest.Cash(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BARSIM_INITIAL_CASH"); v != "" {
		cfg.Backtest.InitialCash = v
	}
	if v := os.Getenv("BARSIM_MARKET_FILL"); v != "" {
		cfg.Backtest.MarketFill = v
	}
	if v := os.Getenv("BARSIM_BARS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pacing.BarsPerSecond = f
		}
	}

	// Standard Alpaca env vars, the names the SDK itself reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "sip"
	}

	b := &cfg.Backtest
	if b.Source == "" {
		b.Source = "csv"
	}
	if b.InitialCash == "" {
		b.InitialCash = "100000"
	}
	if b.MarketFill == "" {
		b.MarketFill = "open"
	}
	if b.OrderIDStart == 0 {
		b.OrderIDStart = 1
	}
	if b.ExecIDStart == 0 {
		b.ExecIDStart = 0x1_000_000_000
	}
	if b.Duration == "" {
		b.Duration = "30 D"
	}
	if b.BarSize == "" {
		b.BarSize = "5 mins"
	}

	g := &cfg.Gather
	if g.Timeframe == "" {
		g.Timeframe = "5 mins"
	}
	if g.MaxWorkers == 0 {
		g.MaxWorkers = 4
	}
	if g.RateLimitPerMin == 0 {
		g.RateLimitPerMin = 200
	}
	if g.MaxRetries == 0 {
		g.MaxRetries = 3
	}
	if cfg.Pacing.Burst == 0 {
		cfg.Pacing.Burst = 1
	}
}
