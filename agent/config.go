package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"printrelay/agent/agent"
	"printrelay/common/config"
)

// AgentConfig represents the agent configuration file.
type AgentConfig struct {
	Agent    AgentSection          `toml:"agent"`
	Server   ServerSection         `toml:"server"`
	Network  NetworkSection        `toml:"network"`
	SNMP     SNMPSection           `toml:"snmp"`
	Database config.DatabaseConfig `toml:"database"`
	Logging  config.LoggingConfig  `toml:"logging"`
	Metrics  MetricsSection        `toml:"metrics"`
}

// AgentSection holds identity and task cadence.
type AgentSection struct {
	ID                           string `toml:"id"` // seed for the agent id on first start only
	Name                         string `toml:"name"`
	DataDir                      string `toml:"data_dir"`
	PollingIntervalSeconds       int    `toml:"polling_interval_seconds"`
	DiscoveryIntervalSeconds     int    `toml:"discovery_interval_seconds"`
	SyncIntervalSeconds          int    `toml:"sync_interval_seconds"`
	ConfigRefreshIntervalSeconds int    `toml:"config_refresh_interval_seconds"`
}

// ServerSection holds aggregator connection settings.
type ServerSection struct {
	URL                string `toml:"url"`
	CAPath             string `toml:"ca_path"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"` // dev/testing only
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	SyncBatchSize      int    `toml:"sync_batch_size"`
}

// NetworkSection controls what discovery scans.
type NetworkSection struct {
	Subnets            []string `toml:"subnets"`
	MaxHostsPerSubnet  int      `toml:"max_hosts_per_subnet"`
	ProbeWorkers       int      `toml:"probe_workers"`
	CollectWorkers     int      `toml:"collect_workers"`
	MDNSEnabled        bool     `toml:"mdns_enabled"`
	ClassifierKeywords []string `toml:"classifier_keywords"`
}

// SNMPSection holds SNMP client settings.
type SNMPSection struct {
	Community      string `toml:"community"`
	Version        string `toml:"version"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
	Port           int    `toml:"port"`
}

// MetricsSection enables the Prometheus endpoint when Listen is set.
type MetricsSection struct {
	Listen string `toml:"listen"`
}

// DefaultAgentConfig returns agent configuration with sensible defaults
func DefaultAgentConfig() *AgentConfig {
	s := agent.DefaultSettings()
	return &AgentConfig{
		Agent: AgentSection{
			PollingIntervalSeconds:       int(s.PollingInterval / time.Second),
			DiscoveryIntervalSeconds:     int(s.DiscoveryInterval / time.Second),
			SyncIntervalSeconds:          int(s.SyncInterval / time.Second),
			ConfigRefreshIntervalSeconds: int(s.ConfigRefreshInterval / time.Second),
		},
		Server: ServerSection{
			URL:            "http://localhost:8080",
			TimeoutSeconds: 10,
			SyncBatchSize:  agent.DefaultSyncBatchSize,
		},
		Network: NetworkSection{
			Subnets:            s.Subnets,
			MaxHostsPerSubnet:  s.MaxHostsPerSubnet,
			ProbeWorkers:       s.ProbeWorkers,
			CollectWorkers:     s.CollectWorkers,
			MDNSEnabled:        false,
			ClassifierKeywords: s.Keywords,
		},
		SNMP: SNMPSection{
			Community:      "public",
			Version:        "2c",
			TimeoutSeconds: 2,
			Retries:        1,
			Port:           161,
		},
		Database: config.DatabaseConfig{
			Path: "", // platform data directory
		},
		Logging: config.LoggingConfig{
			Level: "info",
		},
	}
}

// LoadAgentConfig loads configuration from TOML file with environment variable overrides.
// Returns an error if the config file does not exist or cannot be parsed.
func LoadAgentConfig(configPath string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if _, err := os.Stat(configPath); err != nil {
		return nil, err
	}
	if err := config.LoadTOML(configPath, cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadConfigOrDefault loads configPath, or searches the standard locations when
// it is empty. With no file anywhere the defaults plus environment are used.
func loadConfigOrDefault(configPath string) (*AgentConfig, string, error) {
	if configPath == "" {
		found, _, err := config.FindConfigFile("config.toml")
		if errors.Is(err, config.ErrConfigNotFound) {
			cfg := DefaultAgentConfig()
			applyEnvOverrides(cfg)
			return cfg, "", nil
		}
		configPath = found
	}
	cfg, err := LoadAgentConfig(configPath)
	return cfg, configPath, err
}

func applyEnvOverrides(cfg *AgentConfig) {
	if val := os.Getenv("PRINTRELAY_SERVER_URL"); val != "" {
		cfg.Server.URL = val
	}
	if val := os.Getenv("PRINTRELAY_AGENT_ID"); val != "" {
		cfg.Agent.ID = val
	}
	if val := os.Getenv("PRINTRELAY_AGENT_NAME"); val != "" {
		cfg.Agent.Name = val
	}
	if val := os.Getenv("PRINTRELAY_DATA_DIR"); val != "" {
		cfg.Agent.DataDir = val
	}
	if val := os.Getenv("PRINTRELAY_SUBNETS"); val != "" {
		cfg.Network.Subnets = splitList(val)
	}
	if val := os.Getenv("PRINTRELAY_CA_PATH"); val != "" {
		cfg.Server.CAPath = val
	}
	if val := os.Getenv("PRINTRELAY_INSECURE_SKIP_VERIFY"); val != "" {
		cfg.Server.InsecureSkipVerify = parseBool(val)
	}
	if val := os.Getenv("PRINTRELAY_MDNS_ENABLED"); val != "" {
		cfg.Network.MDNSEnabled = parseBool(val)
	}
	if val := os.Getenv("PRINTRELAY_METRICS_LISTEN"); val != "" {
		cfg.Metrics.Listen = val
	}
	if val := os.Getenv("PRINTRELAY_POLLING_INTERVAL_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Agent.PollingIntervalSeconds = n
		}
	}
	if val := os.Getenv("SNMP_COMMUNITY"); val != "" {
		cfg.SNMP.Community = val
	}
	if val := os.Getenv("SNMP_TIMEOUT_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.SNMP.TimeoutSeconds = n
		}
	}
	if val := os.Getenv("SNMP_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.SNMP.Retries = n
		}
	}

	config.ApplyDatabaseEnvOverrides(&cfg.Database)
	config.ApplyLoggingEnvOverrides(&cfg.Logging)
}

func parseBool(val string) bool {
	lower := strings.ToLower(strings.TrimSpace(val))
	return lower == "1" || lower == "true" || lower == "yes"
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every problem in the configuration at once.
func (c *AgentConfig) Validate() error {
	var errs []error

	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if u, err := url.Parse(c.Server.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.url %q must be an http or https URL", c.Server.URL))
	}
	if c.Server.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("server.timeout_seconds must be positive"))
	}
	if c.Server.SyncBatchSize <= 0 {
		errs = append(errs, errors.New("server.sync_batch_size must be positive"))
	}

	for _, iv := range []struct {
		key   string
		value int
	}{
		{"agent.polling_interval_seconds", c.Agent.PollingIntervalSeconds},
		{"agent.discovery_interval_seconds", c.Agent.DiscoveryIntervalSeconds},
		{"agent.sync_interval_seconds", c.Agent.SyncIntervalSeconds},
		{"agent.config_refresh_interval_seconds", c.Agent.ConfigRefreshIntervalSeconds},
	} {
		if iv.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", iv.key))
		}
	}

	if len(c.Network.Subnets) == 0 && !c.Network.MDNSEnabled {
		errs = append(errs, errors.New("network.subnets is empty and mdns is disabled, discovery has nothing to scan"))
	}
	if c.Network.ProbeWorkers <= 0 || c.Network.CollectWorkers <= 0 {
		errs = append(errs, errors.New("network worker counts must be positive"))
	}
	if c.Network.MaxHostsPerSubnet <= 0 {
		errs = append(errs, errors.New("network.max_hosts_per_subnet must be positive"))
	}

	if c.SNMP.Community == "" {
		errs = append(errs, errors.New("snmp.community is required"))
	}
	if _, err := agent.ParseSNMPVersion(c.SNMP.Version); err != nil {
		errs = append(errs, err)
	}
	if c.SNMP.TimeoutSeconds <= 0 || c.SNMP.TimeoutSeconds > 60 {
		errs = append(errs, errors.New("snmp.timeout_seconds must be between 1 and 60"))
	}
	if c.SNMP.Port <= 0 || c.SNMP.Port > 65535 {
		errs = append(errs, fmt.Errorf("snmp.port %d is out of range", c.SNMP.Port))
	}

	return errors.Join(errs...)
}

// ToSettings converts the file layout into the pipeline's settings snapshot.
func (c *AgentConfig) ToSettings() (agent.Settings, error) {
	version, err := agent.ParseSNMPVersion(c.SNMP.Version)
	if err != nil {
		return agent.Settings{}, err
	}
	s := agent.DefaultSettings()
	s.Subnets = append([]string(nil), c.Network.Subnets...)
	s.MaxHostsPerSubnet = c.Network.MaxHostsPerSubnet
	s.ProbeWorkers = c.Network.ProbeWorkers
	s.CollectWorkers = c.Network.CollectWorkers
	s.MDNSEnabled = c.Network.MDNSEnabled
	if len(c.Network.ClassifierKeywords) > 0 {
		s.Keywords = append([]string(nil), c.Network.ClassifierKeywords...)
	}
	s.SNMP = agent.SNMPConfig{
		Community: c.SNMP.Community,
		Version:   version,
		Port:      uint16(c.SNMP.Port),
		Timeout:   time.Duration(c.SNMP.TimeoutSeconds) * time.Second,
		Retries:   c.SNMP.Retries,
	}
	s.PollingInterval = time.Duration(c.Agent.PollingIntervalSeconds) * time.Second
	s.DiscoveryInterval = time.Duration(c.Agent.DiscoveryIntervalSeconds) * time.Second
	s.SyncInterval = time.Duration(c.Agent.SyncIntervalSeconds) * time.Second
	s.ConfigRefreshInterval = time.Duration(c.Agent.ConfigRefreshIntervalSeconds) * time.Second
	s.SyncBatchSize = c.Server.SyncBatchSize
	return s, nil
}

// WriteDefaultAgentConfig writes a default agent configuration file
func WriteDefaultAgentConfig(configPath string) error {
	return config.WriteDefaultTOML(configPath, DefaultAgentConfig())
}
