package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ZoneSentinel/internal/engine"
	"ZoneSentinel/internal/model"
	"ZoneSentinel/internal/risk"
	"ZoneSentinel/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Symbol string `yaml:"symbol"`
	Data   struct {
		Source        string   `yaml:"source"` // csv | mock
		Dir           string   `yaml:"dir"`
		Driver        string   `yaml:"driver"`
		Timeframes    []string `yaml:"timeframes"`
		DisableDerive bool     `yaml:"disable_derive"`
		MockBars      int      `yaml:"mock_bars"`
		MockSeed      int64    `yaml:"mock_seed"`
	} `yaml:"data"`
	Backtest struct {
		Start          string  `yaml:"start"`
		End            string  `yaml:"end"`
		InitialBalance float64 `yaml:"initial_balance"`
		SwingWindow    int     `yaml:"swing_window"`
		MaxZoneAge     int     `yaml:"max_zone_age"`
		Proximity      float64 `yaml:"proximity"`
		HeartbeatBars  int     `yaml:"heartbeat_bars"`
	} `yaml:"backtest"`
	Risk struct {
		RiskFraction float64                      `yaml:"risk_fraction"`
		MaxOpen      int                          `yaml:"max_open"`
		Symbols      map[string]risk.SymbolParams `yaml:"symbols"`
	} `yaml:"risk"`
	Strategy struct {
		TierPolicy     map[string][]string `yaml:"tier_policy"`
		TemporalMute   bool                `yaml:"temporal_mute"`
		DisableTargets bool                `yaml:"disable_targets"`
	} `yaml:"strategy"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		Cron string `yaml:"cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads an optional .env, then the YAML file, then applies environment
// variable overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("ZS_SYMBOL"); v != "" {
		cfg.Symbol = v
	}
	if v := os.Getenv("ZS_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("ZS_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("ZS_RISK_FRACTION"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			cfg.Risk.RiskFraction = f
		}
	}
	if v := os.Getenv("ZS_MAX_OPEN"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Risk.MaxOpen = n
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("ZS_CRON"); v != "" {
		cfg.Schedule.Cron = v
	}
	if v := os.Getenv("ZS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.Data.Source == "" {
		cfg.Data.Source = "csv"
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if len(cfg.Data.Timeframes) == 0 {
		for _, tf := range model.Hierarchy {
			cfg.Data.Timeframes = append(cfg.Data.Timeframes, string(tf))
		}
	}
	if cfg.Data.MockBars == 0 {
		cfg.Data.MockBars = 5000
	}
	if cfg.Backtest.InitialBalance == 0 {
		cfg.Backtest.InitialBalance = engine.DefaultInitialBalance
	}
	if cfg.Backtest.SwingWindow == 0 {
		cfg.Backtest.SwingWindow = 1
	}
	if cfg.Backtest.MaxZoneAge == 0 {
		cfg.Backtest.MaxZoneAge = engine.DefaultMaxZoneAge
	}
	if cfg.Backtest.Proximity == 0 {
		cfg.Backtest.Proximity = strategy.DefaultProximity
	}
	if cfg.Risk.RiskFraction == 0 {
		cfg.Risk.RiskFraction = risk.DefaultRiskFraction
	}
	if cfg.Risk.MaxOpen == 0 {
		cfg.Risk.MaxOpen = risk.DefaultMaxOpen
	}
	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = "0 0 6 * * *"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/zone_sentinel.db"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9108"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	return cfg, nil
}

// Validate checks ranges and that every name parses.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	switch c.Data.Source {
	case "csv", "mock":
	default:
		return fmt.Errorf("data.source must be csv or mock, got %q", c.Data.Source)
	}
	if _, err := c.Timeframes(); err != nil {
		return err
	}
	if _, err := c.Driver(); err != nil {
		return err
	}
	if c.Backtest.InitialBalance <= 0 {
		return fmt.Errorf("backtest.initial_balance must be positive")
	}
	if c.Backtest.SwingWindow < 1 {
		return fmt.Errorf("backtest.swing_window must be at least 1")
	}
	if c.Backtest.MaxZoneAge < 1 {
		return fmt.Errorf("backtest.max_zone_age must be at least 1")
	}
	if c.Backtest.Proximity < 0 || c.Backtest.Proximity >= 0.1 {
		return fmt.Errorf("backtest.proximity must be in [0, 0.1)")
	}
	if c.Backtest.HeartbeatBars < 0 {
		return fmt.Errorf("backtest.heartbeat_bars must not be negative")
	}
	if _, _, err := c.Window(); err != nil {
		return err
	}
	if c.Risk.RiskFraction <= 0 || c.Risk.RiskFraction > 1 {
		return fmt.Errorf("risk.risk_fraction must be in (0, 1]")
	}
	if c.Risk.MaxOpen < 1 {
		return fmt.Errorf("risk.max_open must be at least 1")
	}
	for sym, p := range c.Risk.Symbols {
		if p.SLBuffer < 0 || p.BEActivation < 0 || p.BELockIn < 0 || p.TrailActivation < 0 || p.TrailDistance < 0 {
			return fmt.Errorf("risk.symbols.%s: values must not be negative", sym)
		}
	}
	if _, err := c.TierPolicy(); err != nil {
		return err
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Timeframes parses data.timeframes.
func (c *Config) Timeframes() ([]model.Timeframe, error) {
	out := make([]model.Timeframe, 0, len(c.Data.Timeframes))
	for _, s := range c.Data.Timeframes {
		tf, err := model.ParseTimeframe(s)
		if err != nil {
			return nil, fmt.Errorf("data.timeframes: %w", err)
		}
		out = append(out, tf)
	}
	return out, nil
}

// Driver returns data.driver, defaulting to the most junior configured
// timeframe.
func (c *Config) Driver() (model.Timeframe, error) {
	if c.Data.Driver != "" {
		tf, err := model.ParseTimeframe(c.Data.Driver)
		if err != nil {
			return "", fmt.Errorf("data.driver: %w", err)
		}
		return tf, nil
	}
	tfs, err := c.Timeframes()
	if err != nil {
		return "", err
	}
	var driver model.Timeframe
	for _, tf := range tfs {
		if driver == "" || driver.SeniorTo(tf) {
			driver = tf
		}
	}
	if driver == "" {
		return "", fmt.Errorf("data.timeframes is empty")
	}
	return driver, nil
}

// TierPolicy merges strategy.tier_policy over the default policy.
func (c *Config) TierPolicy() (strategy.TierPolicy, error) {
	policy := strategy.DefaultTierPolicy()
	for name, tiers := range c.Strategy.TierPolicy {
		tf, err := model.ParseTimeframe(name)
		if err != nil {
			return nil, fmt.Errorf("strategy.tier_policy: %w", err)
		}
		allowed := make([]model.Tier, 0, len(tiers))
		for _, s := range tiers {
			t, err := model.ParseTier(s)
			if err != nil {
				return nil, fmt.Errorf("strategy.tier_policy.%s: %w", name, err)
			}
			allowed = append(allowed, t)
		}
		policy[tf] = allowed
	}
	return policy, nil
}

// Window parses backtest.start and backtest.end. Empty bounds are zero.
func (c *Config) Window() (start, end time.Time, err error) {
	if start, err = parseBound(c.Backtest.Start); err != nil {
		return start, end, fmt.Errorf("backtest.start: %w", err)
	}
	if end, err = parseBound(c.Backtest.End); err != nil {
		return start, end, fmt.Errorf("backtest.end: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return start, end, fmt.Errorf("backtest.start must be before backtest.end")
	}
	return start, end, nil
}

func parseBound(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

// Engine builds the run parameters.
func (c *Config) Engine() (engine.Config, error) {
	driver, err := c.Driver()
	if err != nil {
		return engine.Config{}, err
	}
	start, end, err := c.Window()
	if err != nil {
		return engine.Config{}, err
	}
	policy, err := c.TierPolicy()
	if err != nil {
		return engine.Config{}, err
	}
	ec := engine.DefaultConfig(c.Symbol)
	ec.Driver = driver
	ec.Start = start
	ec.End = end
	ec.InitialBalance = c.Backtest.InitialBalance
	ec.SwingWindow = c.Backtest.SwingWindow
	ec.MaxZoneAge = c.Backtest.MaxZoneAge
	ec.Proximity = c.Backtest.Proximity
	ec.HeartbeatBars = c.Backtest.HeartbeatBars
	ec.RiskFraction = c.Risk.RiskFraction
	ec.MaxOpen = c.Risk.MaxOpen
	ec.Symbols = c.Risk.Symbols
	ec.TierPolicy = policy
	ec.TemporalMute = c.Strategy.TemporalMute
	ec.DisableTargets = c.Strategy.DisableTargets
	return ec, nil
}
