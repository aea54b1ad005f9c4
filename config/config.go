package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gridflow GridflowConfig `yaml:"gridflow"`
	Portal   PortalConfig   `yaml:"portal"`
	API      APIConfig      `yaml:"api"`
	Output   OutputConfig   `yaml:"output"`
	Notify   NotifyConfig   `yaml:"notify"`
	Phase2   Phase2Config   `yaml:"phase2"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type GridflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// PortalConfig describes the grid operator's public web portal where report
// product pages publish their download links.
type PortalConfig struct {
	BaseURL      string        `yaml:"base_url"`
	LinkWait     time.Duration `yaml:"link_wait"`
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Products     ProductPages  `yaml:"products"`
}

// ProductPages holds the product-detail page URL per report. Empty entries
// fall back to the known ERCOT data product pages.
type ProductPages struct {
	SolarForecast       string `yaml:"solar_forecast"`
	WindForecast        string `yaml:"wind_forecast"`
	SystemForecast      string `yaml:"system_forecast"`
	OutageCapacity      string `yaml:"outage_capacity"`
	ResourceAdequacy    string `yaml:"resource_adequacy"`
	DAMClearingPrices   string `yaml:"dam_clearing_prices"`
	DAMSettlementPrices string `yaml:"dam_settlement_prices"`
}

// APIConfig holds the public report API settings. Credentials are taken from
// the environment when present so they never need to live in the file.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	TokenURL          string        `yaml:"token_url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	SubscriptionKey   string        `yaml:"subscription_key"`
	PageSize          int           `yaml:"page_size"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
}

// HasCredentials reports whether the full credential tuple is present.
// Real-time price pulls are skipped, not failed, when it is not.
func (a APIConfig) HasCredentials() bool {
	return a.Username != "" && a.Password != "" && a.SubscriptionKey != ""
}

type OutputConfig struct {
	ProductionDir string `yaml:"production_dir"`
	ArchiveDir    string `yaml:"archive_dir"`
}

type NotifyConfig struct {
	SlackToken   string `yaml:"slack_token"`
	SlackChannel string `yaml:"slack_channel"`
}

// Phase2Config selects which settlement points the day-ahead vs real-time
// spread covers. The report sheets always carry the full tables.
type Phase2Config struct {
	SettlementPoints []string `yaml:"settlement_points"`
	AncillaryTypes   []string `yaml:"ancillary_types"`
	DartPoint        string   `yaml:"dart_point"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

const (
	defaultPortalBaseURL = "https://www.ercot.com"
	defaultAPIBaseURL    = "https://api.ercot.com/api/public-reports"
	defaultTokenURL      = "https://ercotb2c.b2clogin.com/ercotb2c.onmicrosoft.com/B2C_1_PUBAPI-ROPC-FLOW/oauth2/v2.0/token"

	defaultSolarPage  = "/mp/data-products/data-product-details?id=NP4-737-CD"
	defaultWindPage   = "/mp/data-products/data-product-details?id=NP4-732-CD"
	defaultSystemPage = "/mp/data-products/data-product-details?id=NP3-560-CD"
	defaultOutagePage = "/mp/data-products/data-product-details?id=NP3-233-CD"
	defaultMoraPage   = "/gridinfo/resource"
	defaultCPCPage    = "/mp/data-products/data-product-details?id=NP4-188-CD"
	defaultSPPPage    = "/mp/data-products/data-product-details?id=NP4-190-CD"
)

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Portal.BaseURL == "" {
		cfg.Portal.BaseURL = defaultPortalBaseURL
	}
	if cfg.Portal.LinkWait <= 0 {
		cfg.Portal.LinkWait = 20 * time.Second
	}
	if cfg.Portal.PollInterval <= 0 {
		cfg.Portal.PollInterval = 2 * time.Second
	}
	if cfg.Portal.FetchTimeout <= 0 {
		cfg.Portal.FetchTimeout = 60 * time.Second
	}

	p := &cfg.Portal.Products
	base := strings.TrimSuffix(cfg.Portal.BaseURL, "/")
	setPage := func(dst *string, page string) {
		if *dst == "" {
			*dst = base + page
		}
	}
	setPage(&p.SolarForecast, defaultSolarPage)
	setPage(&p.WindForecast, defaultWindPage)
	setPage(&p.SystemForecast, defaultSystemPage)
	setPage(&p.OutageCapacity, defaultOutagePage)
	setPage(&p.ResourceAdequacy, defaultMoraPage)
	setPage(&p.DAMClearingPrices, defaultCPCPage)
	setPage(&p.DAMSettlementPrices, defaultSPPPage)

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaultAPIBaseURL
	}
	if cfg.API.TokenURL == "" {
		cfg.API.TokenURL = defaultTokenURL
	}
	if cfg.API.PageSize <= 0 {
		cfg.API.PageSize = 100
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 60 * time.Second
	}
	if cfg.API.RequestsPerSecond <= 0 {
		cfg.API.RequestsPerSecond = 2
	}
	if cfg.API.BurstSize <= 0 {
		cfg.API.BurstSize = 1
	}

	if cfg.Output.ProductionDir == "" {
		cfg.Output.ProductionDir = "production"
	}
	if cfg.Output.ArchiveDir == "" {
		cfg.Output.ArchiveDir = cfg.Output.ProductionDir + "/archive"
	}

	if cfg.Notify.SlackChannel == "" {
		cfg.Notify.SlackChannel = "#eepp"
	}

	if len(cfg.Phase2.SettlementPoints) == 0 {
		cfg.Phase2.SettlementPoints = []string{"LZ_HOUSTON", "LZ_NORTH"}
	}
	if len(cfg.Phase2.AncillaryTypes) == 0 {
		cfg.Phase2.AncillaryTypes = []string{"ECRS", "RRS", "NSPIN"}
	}
	if cfg.Phase2.DartPoint == "" {
		cfg.Phase2.DartPoint = "LZ_NORTH"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ERCOT_API_USERNAME"); v != "" {
		cfg.API.Username = strings.TrimSpace(v)
	}
	if v := os.Getenv("ERCOT_API_PASSWORD"); v != "" {
		cfg.API.Password = strings.TrimSpace(v)
	}
	if v := os.Getenv("ERCOT_API_PRIMARY_KEY"); v != "" {
		cfg.API.SubscriptionKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("SLACK_TOKEN"); v != "" {
		cfg.Notify.SlackToken = strings.TrimSpace(v)
	}

	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	cfg.Storage.S3.Bucket = strings.TrimSpace(cfg.Storage.S3.Bucket)
}

func validateConfig(cfg *Config) error {
	if cfg.Gridflow.Name == "" {
		return fmt.Errorf("gridflow.name is required")
	}

	if cfg.Gridflow.Version == "" {
		return fmt.Errorf("gridflow.version is required")
	}

	if !strings.HasPrefix(cfg.Portal.BaseURL, "http") {
		return fmt.Errorf("portal.base_url must be an absolute URL")
	}

	if cfg.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
