package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so profiles can spell intervals as strings
// like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the profile of one trading loop: which ticker to trade, whose
// portfolio to trade it in, and where state lives.
type Config struct {
	Ticker         string  `yaml:"ticker"`
	Identity       string  `yaml:"identity"`
	InitialBalance float64 `yaml:"initial_balance"`

	// Backend selects persistence: "file" for JSONL logs, "sqlite" for the
	// database backend.
	Backend      string `yaml:"backend"`
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database_path"`

	ModelPath string `yaml:"model_path"`

	// Source selects the market feed: "yahoo" for daily history with
	// indicators, "intraday" for price-only Tradegate quotes.
	Source string `yaml:"source"`
	// ISINs maps tickers to the ISINs the intraday feed understands.
	ISINs map[string]string `yaml:"isins"`

	Cycles        int      `yaml:"cycles"`
	CycleInterval Duration `yaml:"cycle_interval"`
}

// DefaultConfig returns the built-in profile.
func DefaultConfig() *Config {
	return &Config{
		Ticker:         "AAPL",
		Identity:       "default",
		InitialBalance: 10000,
		Backend:        "file",
		DataDir:        "data",
		DatabasePath:   filepath.Join("data", "trading.db"),
		ModelPath:      filepath.Join("models", "model.onnx"),
		Source:         "yahoo",
		Cycles:         1,
		CycleInterval:  Duration(time.Minute),
	}
}

// LoadConfig builds the effective profile: defaults, overlaid by the YAML
// file at path when it exists, overlaid by environment variables. A missing
// file is fine; a malformed one is not.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("could not read config %q: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("could not parse config %q: %w", path, err)
			}
		}
	}

	cfg.loadFromEnv()

	if cfg.Ticker == "" {
		return nil, fmt.Errorf("config has no ticker")
	}
	if cfg.Identity == "" {
		return nil, fmt.Errorf("config has no portfolio identity")
	}
	if cfg.InitialBalance < 0 {
		return nil, fmt.Errorf("initial balance must not be negative")
	}
	switch cfg.Backend {
	case "file", "sqlite":
	default:
		return nil, fmt.Errorf("unknown backend %q (want file or sqlite)", cfg.Backend)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("TLP_TICKER"); val != "" {
		c.Ticker = val
	}
	if val := os.Getenv("TLP_IDENTITY"); val != "" {
		c.Identity = val
	}
	if val := os.Getenv("TLP_INITIAL_BALANCE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.InitialBalance = f
		}
	}
	if val := os.Getenv("TLP_BACKEND"); val != "" {
		c.Backend = val
	}
	if val := os.Getenv("TLP_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("TLP_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("TLP_MODEL_PATH"); val != "" {
		c.ModelPath = val
	}
	if val := os.Getenv("TLP_SOURCE"); val != "" {
		c.Source = val
	}
}
