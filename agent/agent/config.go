package agent

import (
	"sync/atomic"
	"time"
)

// Settings is the snapshot of tunables a single pass runs against. Passes
// load it once at start; changes land between passes.
type Settings struct {
	Subnets           []string
	MaxHostsPerSubnet int
	ProbeWorkers      int
	CollectWorkers    int
	MDNSEnabled       bool
	MDNSBrowseTimeout time.Duration
	Keywords          []string
	SNMP              SNMPConfig

	DiscoveryInterval     time.Duration
	PollingInterval       time.Duration
	SyncInterval          time.Duration
	ConfigRefreshInterval time.Duration
	SyncBatchSize         int
}

// DefaultSettings mirrors the defaults of the generated config file.
func DefaultSettings() Settings {
	return Settings{
		Subnets:               []string{"192.168.1.0/24"},
		MaxHostsPerSubnet:     DefaultMaxHostsPerSubnet,
		ProbeWorkers:          32,
		CollectWorkers:        8,
		MDNSBrowseTimeout:     3 * time.Second,
		Keywords:              append([]string(nil), DefaultKeywords...),
		SNMP:                  DefaultSNMPConfig(),
		DiscoveryInterval:     24 * time.Hour,
		PollingInterval:       5 * time.Minute,
		SyncInterval:          time.Minute,
		ConfigRefreshInterval: time.Hour,
		SyncBatchSize:         100,
	}
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	c := s
	c.Subnets = append([]string(nil), s.Subnets...)
	c.Keywords = append([]string(nil), s.Keywords...)
	return c
}

// SettingsHolder publishes Settings snapshots to concurrently running passes.
type SettingsHolder struct {
	v atomic.Pointer[Settings]
}

// NewSettingsHolder returns a holder primed with s.
func NewSettingsHolder(s Settings) *SettingsHolder {
	h := &SettingsHolder{}
	h.Store(s)
	return h
}

// Load returns a private copy of the current settings.
func (h *SettingsHolder) Load() Settings {
	p := h.v.Load()
	if p == nil {
		return DefaultSettings()
	}
	return p.Clone()
}

// Store replaces the current settings.
func (h *SettingsHolder) Store(s Settings) {
	c := s.Clone()
	h.v.Store(&c)
}
