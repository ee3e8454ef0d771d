package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

const appName = "leadflow"

// Feed kinds.
const (
	KindCSV   = "csv"
	KindRSS   = "rss"
	KindHTML  = "html"
	KindSheet = "sheet"
)

type Config struct {
	Feeds       []Feed    `yaml:"feeds"`
	Agents      []string  `yaml:"agents"`
	Targeting   Targeting `yaml:"targeting"`
	SourceTypes []string  `yaml:"source_types"`
	Outcomes    []Outcome `yaml:"outcomes"`
	KPI         KPI       `yaml:"kpi"`
	Recorder    Recorder  `yaml:"recorder"`
	Watch       Watch     `yaml:"watch"`
	Output      Output    `yaml:"output"`
	Server      Server    `yaml:"server"`
	Logging     Logging   `yaml:"logging"`
}

// Feed describes one intake source of lead rows.
type Feed struct {
	Name         string  `yaml:"name"`
	SourceType   string  `yaml:"source_type"`
	Kind         string  `yaml:"kind"`
	Location     string  `yaml:"location"`
	HeaderRow    int     `yaml:"header_row"`
	DataStartRow int     `yaml:"data_start_row"`
	Mapping      Mapping `yaml:"mapping"`
}

// Mapping maps logical lead fields to source column names. Empty means unmapped.
type Mapping struct {
	Handle       string `yaml:"handle"`
	FullName     string `yaml:"full_name"`
	Phone        string `yaml:"phone"`
	Email        string `yaml:"email"`
	SourceDetail string `yaml:"source_detail"`
	EventDate    string `yaml:"event_date"`
}

type Targeting struct {
	Statuses []string `yaml:"statuses"`
}

// Outcome is an outreach outcome code and whether it counts as a live contact.
type Outcome struct {
	Code      string `yaml:"code"`
	Connected bool   `yaml:"connected"`
}

type KPI struct {
	DailyWindowDays    int `yaml:"daily_window_days"`
	ByListPeriodMonths int `yaml:"by_list_period_months"`
}

type Recorder struct {
	QueueSize int `yaml:"queue_size"`
}

type Watch struct {
	DebounceMS int `yaml:"debounce_ms"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Logging struct {
	Level string `yaml:"level"`
	Table bool   `yaml:"table"`
}

// ConfigDir returns the XDG config directory for leadflow.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// DataDir returns the XDG data directory for leadflow.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/leadflow/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'leadflow init' to create a default config",
		xdgConfig,
	)
}

// Load reads, validates and parses a config YAML file, then applies
// environment overrides (a .env file in the working directory is honoured).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Agents: []string{},
		Targeting: Targeting{
			Statuses: []string{"Uncontacted", "In-Progress"},
		},
		SourceTypes: []string{"gift-claim", "seminar-survey", "cancel-list", "campaign-other"},
		Outcomes:    DefaultOutcomes(),
		KPI: KPI{
			DailyWindowDays:    31,
			ByListPeriodMonths: 1,
		},
		Recorder: Recorder{QueueSize: 64},
		Watch:    Watch{DebounceMS: 500},
		Server:   Server{Port: 8000},
		Logging:  Logging{Level: "info", Table: true},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for i := range cfg.Feeds {
		f := &cfg.Feeds[i]
		if f.Kind == "" {
			f.Kind = KindCSV
		}
		if f.HeaderRow <= 0 {
			f.HeaderRow = 1
		}
		if f.DataStartRow <= f.HeaderRow {
			f.DataStartRow = f.HeaderRow + 1
		}
	}

	return cfg, nil
}

// DefaultOutcomes returns the built-in outcome codes with their connected flags.
func DefaultOutcomes() []Outcome {
	return []Outcome{
		{Code: "reconnect-needed", Connected: true},
		{Code: "answered", Connected: true},
		{Code: "appointment-scheduling", Connected: true},
		{Code: "voicemail-left", Connected: true},
		{Code: "declined", Connected: true},
		{Code: "no-answer", Connected: false},
		{Code: "busy", Connected: false},
		{Code: "unreachable", Connected: false},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LEADFLOW_DATA_DIR"); v != "" {
		cfg.Output.DataDir = v
	}
	if v := os.Getenv("LEADFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEADFLOW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	known := make(map[string]bool, len(c.SourceTypes))
	for _, st := range c.SourceTypes {
		known[st] = true
	}
	seen := make(map[string]bool, len(c.Feeds))
	for _, f := range c.Feeds {
		if seen[f.Name] {
			return fmt.Errorf("invalid config: duplicate feed name %q", f.Name)
		}
		seen[f.Name] = true
		if !known[f.SourceType] {
			return fmt.Errorf("invalid config: feed %q has unknown source type %q", f.Name, f.SourceType)
		}
		if f.Mapping.Handle == "" && f.Mapping.Phone == "" {
			return fmt.Errorf("invalid config: feed %q maps neither handle nor phone", f.Name)
		}
	}
	if c.KPI.DailyWindowDays <= 0 {
		return fmt.Errorf("invalid config: kpi.daily_window_days must be positive")
	}
	if c.KPI.ByListPeriodMonths <= 0 {
		return fmt.Errorf("invalid config: kpi.by_list_period_months must be positive")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return ExpandHome(c.Output.DataDir)
	}
	return DataDir()
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
