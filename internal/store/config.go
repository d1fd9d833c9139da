package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode           string `yaml:"mode"`
	HTTPAddr       string `yaml:"http_addr"`
	DataDir        string `yaml:"data_dir"`
	CheckpointPath string `yaml:"checkpoint_path"`
	TradeLogDir    string `yaml:"trade_log_dir"`
	// TradeLogRetentionDays gzips daily order logs older than this; 0 keeps them as is.
	TradeLogRetentionDays int `yaml:"trade_log_retention_days"`
	Source                struct {
		Driver string `yaml:"driver"`
		// Headless is unset when the file omits it; see HeadlessEnabled.
		Headless       *bool         `yaml:"headless"`
		UserAgent      string        `yaml:"user_agent"`
		LookupAttempts int           `yaml:"lookup_attempts"`
		LookupBackoff  time.Duration `yaml:"lookup_backoff"`
		SettleDelay    time.Duration `yaml:"settle_delay"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		Selectors      struct {
			Consent    string `yaml:"consent"`
			HistoryTab string `yaml:"history_tab"`
			Rows       string `yaml:"rows"`
			NextPage   string `yaml:"next_page"`
		} `yaml:"selectors"`
	} `yaml:"source"`
	Mirror struct {
		AcceptWindow      time.Duration `yaml:"accept_window"`
		CloseMultiplier   float64       `yaml:"close_multiplier"`
		SnapshotRetention time.Duration `yaml:"snapshot_retention"`
		PollInterval      time.Duration `yaml:"poll_interval"`
		RecoveryBackoff   time.Duration `yaml:"recovery_backoff"`
		DedupRetention    time.Duration `yaml:"dedup_retention"`
		MirrorBoth        bool          `yaml:"mirror_both"`
	} `yaml:"mirror"`
	Exchange struct {
		Testnet           bool          `yaml:"testnet"`
		RulesTTL          time.Duration `yaml:"rules_ttl"`
		RequestsPerSecond int           `yaml:"requests_per_second"`
		// BaseURL overrides the futures REST endpoint.
		BaseURL string `yaml:"base_url"`
	} `yaml:"exchange"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Source.Driver != "CHROME" && c.Source.Driver != "STATIC" {
		return fmt.Errorf("invalid source.driver '%s': must be 'CHROME' or 'STATIC'", c.Source.Driver)
	}
	if c.Source.Selectors.Rows == "" || c.Source.Selectors.HistoryTab == "" {
		return errors.New("source.selectors.rows and source.selectors.history_tab cannot be empty")
	}
	if c.Mirror.CloseMultiplier < 1 {
		return fmt.Errorf("mirror.close_multiplier must be >= 1, got %.2f", c.Mirror.CloseMultiplier)
	}
	if c.Mirror.DedupRetention > 0 && c.Mirror.DedupRetention <= c.Mirror.AcceptWindow {
		return fmt.Errorf("mirror.dedup_retention (%s) must exceed mirror.accept_window (%s)", c.Mirror.DedupRetention, c.Mirror.AcceptWindow)
	}
	return nil
}

// HeadlessEnabled reports whether the browser runs without a window. Unset means true.
func (c *Config) HeadlessEnabled() bool {
	return c.Source.Headless == nil || *c.Source.Headless
}

// Default returns a config with every default applied; used when no config file exists.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":5000"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.CheckpointPath == "" {
		c.CheckpointPath = filepath.Join(c.DataDir, "tasks.db")
	}
	if c.TradeLogDir == "" {
		c.TradeLogDir = filepath.Join(c.DataDir, "logs")
	}

	if c.Source.Driver == "" {
		c.Source.Driver = "CHROME"
	}
	if c.Source.Headless == nil {
		headless := true
		c.Source.Headless = &headless
	}
	if c.Source.LookupAttempts == 0 {
		c.Source.LookupAttempts = 3
	}
	if c.Source.LookupBackoff == 0 {
		c.Source.LookupBackoff = 2 * time.Second
	}
	if c.Source.SettleDelay == 0 {
		c.Source.SettleDelay = 2 * time.Second
	}
	if c.Source.RequestTimeout == 0 {
		c.Source.RequestTimeout = 30 * time.Second
	}
	if c.Source.Selectors.Consent == "" {
		c.Source.Selectors.Consent = "#onetrust-accept-btn-handler"
	}
	if c.Source.Selectors.HistoryTab == "" {
		c.Source.Selectors.HistoryTab = "#tab-tradeHistory > div"
	}
	if c.Source.Selectors.Rows == "" {
		c.Source.Selectors.Rows = ".css-g5h8k8 > div > div > div > table > tbody > tr"
	}
	if c.Source.Selectors.NextPage == "" {
		c.Source.Selectors.NextPage = "div.bn-pagination-next"
	}

	if c.Mirror.AcceptWindow == 0 {
		c.Mirror.AcceptWindow = 2 * time.Minute
	}
	if c.Mirror.CloseMultiplier == 0 {
		c.Mirror.CloseMultiplier = 1.05
	}
	if c.Mirror.SnapshotRetention == 0 {
		c.Mirror.SnapshotRetention = 5 * time.Minute
	}
	if c.Mirror.RecoveryBackoff == 0 {
		c.Mirror.RecoveryBackoff = 5 * time.Second
	}

	if c.Exchange.RulesTTL == 0 {
		c.Exchange.RulesTTL = time.Hour
	}
	if c.Exchange.RequestsPerSecond == 0 {
		c.Exchange.RequestsPerSecond = 10
	}
}
