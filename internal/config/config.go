// Package config provides configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"subsidy-recon/core/determinism"
	"subsidy-recon/core/gateway"
	"subsidy-recon/core/keyindex"
	"subsidy-recon/core/policy"
	"subsidy-recon/core/reconcile"
	"subsidy-recon/core/subsidy"
	errs "subsidy-recon/internal/errors"
	"subsidy-recon/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Source contains tabular source configuration
	Source SourceConfig `json:"source"`

	// Gateway contains rate limiting and caching configuration
	Gateway GatewayConfig `json:"gateway"`

	// Carriers lists the carriers to reconcile, in report order
	Carriers []CarrierConfig `json:"carriers"`

	// Store contains result store configuration
	Store StoreConfig `json:"store"`

	// Parallelism bounds how many carriers run at once
	Parallelism int `json:"parallelism"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// SourceConfig selects where tables are read from
type SourceConfig struct {
	// Kind is sheets or csv
	Kind string `json:"kind"`

	SpreadsheetID   string `json:"spreadsheet_id,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	APIKey          string `json:"api_key,omitempty"`

	// CSVDir holds one <sheet>.csv per sheet name
	CSVDir string `json:"csv_dir,omitempty"`
}

// GatewayConfig mirrors gateway.Config with JSON-friendly units
type GatewayConfig struct {
	MaxConcurrent             int     `json:"max_concurrent"`
	MinIntervalMS             int     `json:"min_interval_ms"`
	FreshTTLSeconds           int     `json:"fresh_ttl_seconds"`
	StaleTTLSeconds           int     `json:"stale_ttl_seconds"`
	CallTimeoutSeconds        int     `json:"call_timeout_seconds"`
	MaxRetries                int     `json:"max_retries"`
	BackoffBaseMS             int     `json:"backoff_base_ms"`
	BackoffMaxMS              int     `json:"backoff_max_ms"`
	Jitter                    float64 `json:"jitter"`
	MissLogCooldownSeconds    int     `json:"miss_log_cooldown_seconds"`
	RefreshLogCooldownSeconds int     `json:"refresh_log_cooldown_seconds"`
}

// CarrierConfig describes one carrier's tables
type CarrierConfig struct {
	Name        string `json:"name"`
	ModelsRange string `json:"models_range"`

	// SupportRanges and RebateRanges map plan group to A1 range
	SupportRanges map[string]string `json:"support_ranges"`
	RebateRanges  map[string]string `json:"rebate_ranges"`

	MarginRange    string `json:"margin_range,omitempty"`
	AddonsRange    string `json:"addons_range,omitempty"`
	InsuranceRange string `json:"insurance_range,omitempty"`
	SpecialsRange  string `json:"specials_range,omitempty"`

	// PolicyFile is an HCL policy file; when set it replaces the policy tables
	PolicyFile string `json:"policy_file,omitempty"`

	DefaultPlanGroup        string `json:"default_plan_group,omitempty"`
	BudgetPlanGroup         string `json:"budget_plan_group,omitempty"`
	PreferFlipFoldInsurance bool   `json:"prefer_flip_fold_insurance,omitempty"`
	CanonicalOrderRange     string `json:"canonical_order_range,omitempty"`
}

// StoreConfig selects the result store
type StoreConfig struct {
	// Backend is memory, file or postgres
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
	DSN     string `json:"dsn,omitempty"`
	Retries int    `json:"retries"`
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	gw := gateway.DefaultConfig()

	return &Config{
		Version: "1.0",
		Source: SourceConfig{
			Kind: "sheets",
		},
		Gateway: GatewayConfig{
			MaxConcurrent:             gw.MaxConcurrent,
			MinIntervalMS:             int(gw.MinInterval / time.Millisecond),
			FreshTTLSeconds:           int(gw.FreshTTL / time.Second),
			StaleTTLSeconds:           int(gw.StaleTTL / time.Second),
			CallTimeoutSeconds:        int(gw.CallTimeout / time.Second),
			MaxRetries:                gw.MaxRetries,
			BackoffBaseMS:             int(gw.BackoffBase / time.Millisecond),
			BackoffMaxMS:              int(gw.BackoffMax / time.Millisecond),
			Jitter:                    gw.Jitter,
			MissLogCooldownSeconds:    int(keyindex.DefaultMissCooldown / time.Second),
			RefreshLogCooldownSeconds: int(gw.RefreshLogCooldown / time.Second),
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    filepath.Join(homeDir, ".subsidy-recon", "runs"),
			Retries: 3,
		},
		Parallelism: 4,
		Logging:     logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errs.Wrapf(errs.TypeConfig, err, "invalid config %s", path)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "sheets":
		if c.Source.SpreadsheetID == "" {
			return errs.Config("source.spreadsheet_id is required for sheets")
		}
	case "csv":
		if c.Source.CSVDir == "" {
			return errs.Config("source.csv_dir is required for csv")
		}
	default:
		return errs.Config(fmt.Sprintf("unknown source kind %q", c.Source.Kind))
	}

	if c.Gateway.MaxConcurrent < 1 {
		return errs.Config("gateway.max_concurrent must be at least 1")
	}
	if c.Gateway.StaleTTLSeconds < c.Gateway.FreshTTLSeconds {
		return errs.Config("gateway.stale_ttl_seconds must not be below fresh_ttl_seconds")
	}
	if c.Gateway.Jitter < 0 || c.Gateway.Jitter > 1 {
		return errs.Config("gateway.jitter must be between 0 and 1")
	}

	seen := make(map[string]bool, len(c.Carriers))
	for i, cc := range c.Carriers {
		if cc.Name == "" {
			return errs.Config(fmt.Sprintf("carriers[%d].name is required", i))
		}
		if seen[cc.Name] {
			return errs.Config(fmt.Sprintf("carrier %s is configured twice", cc.Name))
		}
		seen[cc.Name] = true
		if cc.ModelsRange == "" {
			return errs.Config(fmt.Sprintf("carrier %s: models_range is required", cc.Name))
		}
		if len(cc.SupportRanges) == 0 {
			return errs.Config(fmt.Sprintf("carrier %s: at least one support range is required", cc.Name))
		}
		for group := range cc.RebateRanges {
			if _, ok := cc.SupportRanges[group]; !ok {
				return errs.Config(fmt.Sprintf("carrier %s: rebate plan group %q has no support range", cc.Name, group))
			}
		}
		for _, group := range []string{cc.DefaultPlanGroup, cc.BudgetPlanGroup} {
			if group == "" {
				continue
			}
			if _, ok := cc.SupportRanges[group]; !ok {
				return errs.Config(fmt.Sprintf("carrier %s: plan group %q has no support range", cc.Name, group))
			}
		}
	}

	switch c.Store.Backend {
	case "", "memory", "file":
	case "postgres":
		if c.Store.DSN == "" {
			return errs.Config("store.dsn is required for postgres")
		}
	default:
		return errs.Config(fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}
	return nil
}

// GatewaySettings converts to gateway settings
func (c *Config) GatewaySettings() gateway.Config {
	g := c.Gateway
	return gateway.Config{
		MaxConcurrent:      g.MaxConcurrent,
		MinInterval:        time.Duration(g.MinIntervalMS) * time.Millisecond,
		FreshTTL:           time.Duration(g.FreshTTLSeconds) * time.Second,
		StaleTTL:           time.Duration(g.StaleTTLSeconds) * time.Second,
		CallTimeout:        time.Duration(g.CallTimeoutSeconds) * time.Second,
		MaxRetries:         g.MaxRetries,
		BackoffBase:        time.Duration(g.BackoffBaseMS) * time.Millisecond,
		BackoffMax:         time.Duration(g.BackoffMaxMS) * time.Millisecond,
		Jitter:             g.Jitter,
		RefreshLogCooldown: time.Duration(g.RefreshLogCooldownSeconds) * time.Second,
	}
}

// MissLogCooldown is how long a logged matching miss stays quiet
func (c *Config) MissLogCooldown() time.Duration {
	return time.Duration(c.Gateway.MissLogCooldownSeconds) * time.Second
}

// ReconcileCarriers converts carrier sections, loading policy files. A file
// may hold blocks for several carriers; each carrier takes its own block.
func (c *Config) ReconcileCarriers() ([]reconcile.Carrier, error) {
	files := make(map[string]map[string]*policy.Settings)
	out := make([]reconcile.Carrier, 0, len(c.Carriers))

	for _, cc := range c.Carriers {
		carrier := reconcile.Carrier{
			Name:                    cc.Name,
			ModelsRange:             cc.ModelsRange,
			SupportRanges:           cc.SupportRanges,
			RebateRanges:            cc.RebateRanges,
			MarginRange:             cc.MarginRange,
			AddonsRange:             cc.AddonsRange,
			InsuranceRange:          cc.InsuranceRange,
			SpecialsRange:           cc.SpecialsRange,
			PreferFlipFoldInsurance: cc.PreferFlipFoldInsurance,
			CanonicalOrderRange:     cc.CanonicalOrderRange,
			PlanGroups: subsidy.PlanGroups{
				Default: cc.DefaultPlanGroup,
				Budget:  cc.BudgetPlanGroup,
			},
		}
		if carrier.PlanGroups.Default == "" && len(cc.SupportRanges) > 0 {
			carrier.PlanGroups.Default = determinism.SortedKeys(cc.SupportRanges)[0]
		}

		if cc.PolicyFile != "" {
			settings, ok := files[cc.PolicyFile]
			if !ok {
				var err error
				settings, err = policy.LoadFile(cc.PolicyFile)
				if err != nil {
					return nil, errs.Wrapf(errs.TypeConfig, err, "carrier %s: policy file", cc.Name)
				}
				files[cc.PolicyFile] = settings
			}
			s, ok := settings[cc.Name]
			if !ok {
				return nil, errs.Config(fmt.Sprintf("carrier %s: no policy block in %s", cc.Name, cc.PolicyFile))
			}
			carrier.PolicyOverride = s
		}
		out = append(out, carrier)
	}
	return out, nil
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
