// Package config loads reel-scout configuration from a YAML file, .env files
// and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"reel-scout/logger"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Oracle      OracleConfig      `yaml:"oracle"`
	Browser     BrowserConfig     `yaml:"browser"`
	Agent       AgentConfig       `yaml:"agent"`
	Admin       AdminConfig       `yaml:"admin"`
	Slack       SlackConfig       `yaml:"slack"`
	VirusTotal  VirusTotalConfig  `yaml:"virustotal"`
	Whois       WhoisConfig       `yaml:"whois"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Logging     logger.Config     `yaml:"logging"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OracleConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// RequestsPerSecond caps oracle calls; bursts of one.
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	Proxy             string        `yaml:"proxy"`
	WindowWidth       int           `yaml:"window_width"`
	WindowHeight      int           `yaml:"window_height"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	BaseURL           string        `yaml:"base_url"`
	// Endpoints are URL fragments whose responses are routed to the parser.
	Endpoints []string `yaml:"endpoints"`
}

// AgentConfig holds every timing and budget the orchestrator uses.
type AgentConfig struct {
	WatchBudget          time.Duration `yaml:"watch_budget"`
	ReelsPhaseBudget     time.Duration `yaml:"reels_phase_budget"`
	ProfileBudget        time.Duration `yaml:"profile_budget"`
	FeedAdsBudget        time.Duration `yaml:"feed_ads_budget"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	ItemWait             time.Duration `yaml:"item_wait"`
	FirstPayloadWait     time.Duration `yaml:"first_payload_wait"`
	SearchDwell          time.Duration `yaml:"search_dwell"`
	SkipDwell            time.Duration `yaml:"skip_dwell"`
	RelevantDwell        time.Duration `yaml:"relevant_dwell"`
	RelevantExtraDwell   time.Duration `yaml:"relevant_extra_dwell"`
	ProfileItemDwell     time.Duration `yaml:"profile_item_dwell"`
	BioWait              time.Duration `yaml:"bio_wait"`
	BioMinDwell          time.Duration `yaml:"bio_min_dwell"`
	AdDwell              time.Duration `yaml:"ad_dwell"`
	ScrollStep           int           `yaml:"scroll_step"`
	ScrollDelay          time.Duration `yaml:"scroll_delay"`
	ScanSettle           time.Duration `yaml:"scan_settle"`
	BodyPreviewChars     int           `yaml:"body_preview_chars"`
	MaxProfilesPerCycle  int           `yaml:"max_profiles_per_cycle"`
	MaxLinkScansPerCycle int           `yaml:"max_link_scans_per_cycle"`
	AbandonMinSample     int           `yaml:"abandon_min_sample"`
	AbandonMinRatio      float64       `yaml:"abandon_min_ratio"`
}

type AdminConfig struct {
	Addr          string `yaml:"addr"`
	JWTSecret     string `yaml:"jwt_secret"`
	AdminPassword string `yaml:"admin_password"`
}

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

type VirusTotalConfig struct {
	APIKey string `yaml:"api_key"`
}

type WhoisConfig struct {
	APIKey string `yaml:"api_key"`
}

type CredentialsConfig struct {
	// Key is a 32-byte secret, hex or raw, used to seal account credentials.
	Key string `yaml:"key"`
}

// Default returns a configuration with every tunable populated.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			DSN: "host=localhost port=5432 user=postgres password=postgres dbname=reel_scout sslmode=disable",
		},
		Redis: RedisConfig{Address: "localhost:6379"},
		Oracle: OracleConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			RequestsPerSecond: 1,
			Timeout:           30 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:          false,
			WindowWidth:       1280,
			WindowHeight:      900,
			NavigationTimeout: 30 * time.Second,
			BaseURL:           "https://www.instagram.com",
			Endpoints:         []string{"/graphql/query", "/api/graphql"},
		},
		Agent:   DefaultAgent(),
		Admin:   AdminConfig{Addr: ":8080", AdminPassword: "admin123"},
		Logging: logger.Config{Level: "info"},
	}
}

// DefaultAgent returns the stock agent timings.
func DefaultAgent() AgentConfig {
	return AgentConfig{
		WatchBudget:          2 * time.Hour,
		ReelsPhaseBudget:     30 * time.Minute,
		ProfileBudget:        2 * time.Minute,
		FeedAdsBudget:        20 * time.Minute,
		PollInterval:         1 * time.Second,
		ItemWait:             3 * time.Second,
		FirstPayloadWait:     30 * time.Second,
		SearchDwell:          6 * time.Second,
		SkipDwell:            2 * time.Second,
		RelevantDwell:        10 * time.Second,
		RelevantExtraDwell:   20 * time.Second,
		ProfileItemDwell:     10 * time.Second,
		BioWait:              24 * time.Second,
		BioMinDwell:          3 * time.Second,
		AdDwell:              10 * time.Second,
		ScrollStep:           400,
		ScrollDelay:          1500 * time.Millisecond,
		ScanSettle:           5 * time.Second,
		BodyPreviewChars:     1500,
		MaxProfilesPerCycle:  50,
		MaxLinkScansPerCycle: 20,
		AbandonMinSample:     12,
		AbandonMinRatio:      0.166,
	}
}

// Load reads path (optional; empty means defaults only), then .env files, then
// environment overrides.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Database.DSN, "DB_SOURCE")
	setString(&cfg.Redis.Address, "REDIS_ADDRESS")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setString(&cfg.Oracle.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Oracle.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Oracle.Model, "ORACLE_MODEL")
	setString(&cfg.Browser.Proxy, "BROWSER_PROXY")
	setBool(&cfg.Browser.Headless, "BROWSER_HEADLESS")
	setString(&cfg.Admin.Addr, "ADMIN_ADDR")
	setString(&cfg.Admin.JWTSecret, "JWT_SECRET")
	setString(&cfg.Admin.AdminPassword, "ADMIN_PASSWORD")
	setString(&cfg.Slack.WebhookURL, "SLACK_WEBHOOK_URL")
	setString(&cfg.VirusTotal.APIKey, "VT_API_KEY")
	setString(&cfg.Whois.APIKey, "WHOIS_API_KEY")
	setString(&cfg.Credentials.Key, "CREDENTIALS_KEY")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	a := c.Agent
	if a.AbandonMinSample < 1 {
		return fmt.Errorf("agent.abandon_min_sample must be positive, got %d", a.AbandonMinSample)
	}
	if a.AbandonMinRatio < 0 || a.AbandonMinRatio > 1 {
		return fmt.Errorf("agent.abandon_min_ratio must be within [0,1], got %v", a.AbandonMinRatio)
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive")
	}
	if a.ScrollStep <= 0 {
		return fmt.Errorf("agent.scroll_step must be positive")
	}
	return nil
}
