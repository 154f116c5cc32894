package agent

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"printrelay/agent/storage"
)

// ErrVersionExcluded is returned when remote config targets other agent versions.
var ErrVersionExcluded = errors.New("remote config does not apply to this agent version")

const remoteConfigStateKey = "remote_config"

// RemoteConfig is the aggregator-managed override set. Zero values leave the
// local setting alone. Intervals and timeouts are in seconds.
type RemoteConfig struct {
	Subnets                []string `json:"subnets,omitempty"`
	PollingInterval        int      `json:"polling_interval,omitempty"`
	DiscoveryInterval      int      `json:"discovery_interval,omitempty"`
	SNMPCommunity          string   `json:"snmp_community,omitempty"`
	SNMPTimeout            int      `json:"snmp_timeout,omitempty"`
	AgentVersionConstraint string   `json:"agent_version_constraint,omitempty"`
}

// Validate rejects the whole document if any field is malformed.
func (rc *RemoteConfig) Validate() error {
	for _, s := range rc.Subnets {
		s = strings.TrimSpace(s)
		if _, err := netip.ParsePrefix(s); err != nil {
			if _, err := netip.ParseAddr(s); err != nil {
				return fmt.Errorf("subnet %q: %w", s, err)
			}
		}
	}
	if rc.PollingInterval < 0 || (rc.PollingInterval > 0 && rc.PollingInterval < 10) {
		return fmt.Errorf("polling_interval %d: must be at least 10 seconds", rc.PollingInterval)
	}
	if rc.DiscoveryInterval < 0 || (rc.DiscoveryInterval > 0 && rc.DiscoveryInterval < 60) {
		return fmt.Errorf("discovery_interval %d: must be at least 60 seconds", rc.DiscoveryInterval)
	}
	if rc.SNMPTimeout < 0 || rc.SNMPTimeout > 60 {
		return fmt.Errorf("snmp_timeout %d: must be between 1 and 60 seconds", rc.SNMPTimeout)
	}
	if rc.AgentVersionConstraint != "" {
		if _, err := semver.NewConstraint(rc.AgentVersionConstraint); err != nil {
			return fmt.Errorf("agent_version_constraint %q: %w", rc.AgentVersionConstraint, err)
		}
	}
	return nil
}

// Apply returns base with the overrides applied. Development builds ("dev" or
// empty version) accept any version constraint.
func (rc *RemoteConfig) Apply(base Settings, version string) (Settings, error) {
	if err := rc.Validate(); err != nil {
		return base, err
	}
	if rc.AgentVersionConstraint != "" && version != "" && version != "dev" {
		v, err := semver.NewVersion(version)
		if err != nil {
			return base, fmt.Errorf("agent version %q: %w", version, err)
		}
		c, _ := semver.NewConstraint(rc.AgentVersionConstraint)
		if !c.Check(v) {
			return base, fmt.Errorf("%w: %s not in %s", ErrVersionExcluded, version, rc.AgentVersionConstraint)
		}
	}

	out := base.Clone()
	if len(rc.Subnets) > 0 {
		out.Subnets = make([]string, 0, len(rc.Subnets))
		for _, s := range rc.Subnets {
			out.Subnets = append(out.Subnets, strings.TrimSpace(s))
		}
	}
	if rc.PollingInterval > 0 {
		out.PollingInterval = time.Duration(rc.PollingInterval) * time.Second
	}
	if rc.DiscoveryInterval > 0 {
		out.DiscoveryInterval = time.Duration(rc.DiscoveryInterval) * time.Second
	}
	if rc.SNMPCommunity != "" {
		out.SNMP.Community = rc.SNMPCommunity
	}
	if rc.SNMPTimeout > 0 {
		out.SNMP.Timeout = time.Duration(rc.SNMPTimeout) * time.Second
	}
	return out, nil
}

// ConfigFetcher pulls remote config for an agent.
type ConfigFetcher interface {
	FetchConfig(ctx context.Context, credential, agentID string) (*RemoteConfig, error)
}

// Identity is what the config puller needs to authenticate.
type Identity interface {
	AgentID() string
	Credential() string
	MarkCredentialRejected()
}

// ConfigPuller applies aggregator-managed settings on top of the local base.
type ConfigPuller struct {
	fetcher  ConfigFetcher
	identity Identity
	state    storage.IdentityStore
	holder   *SettingsHolder
	base     Settings
	version  string
	log      Logger

	// OnChange, when set, runs after new settings are published.
	OnChange func(prev, next Settings)
}

// NewConfigPuller builds a puller; base is the locally configured settings the
// overrides are layered on.
func NewConfigPuller(fetcher ConfigFetcher, identity Identity, state storage.IdentityStore, holder *SettingsHolder, base Settings, version string, log Logger) *ConfigPuller {
	return &ConfigPuller{
		fetcher:  fetcher,
		identity: identity,
		state:    state,
		holder:   holder,
		base:     base.Clone(),
		version:  version,
		log:      orNop(log),
	}
}

// Restore re-applies the last remote config saved by Refresh, if any.
func (p *ConfigPuller) Restore(ctx context.Context) error {
	var rc RemoteConfig
	ok, err := p.state.GetStateValue(ctx, remoteConfigStateKey, &rc)
	if err != nil || !ok {
		return err
	}
	next, err := rc.Apply(p.base, p.version)
	if err != nil {
		p.log.Warn("Stored remote config no longer applies", "error", err)
		return nil
	}
	p.publish(next)
	return nil
}

// Refresh fetches remote config and publishes it. Any failure leaves the
// current settings untouched.
func (p *ConfigPuller) Refresh(ctx context.Context) error {
	credential := p.identity.Credential()
	if credential == "" {
		return fmt.Errorf("%w: no delivery credential", ErrUnauthenticated)
	}
	rc, err := p.fetcher.FetchConfig(ctx, credential, p.identity.AgentID())
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			p.identity.MarkCredentialRejected()
		}
		return fmt.Errorf("fetch remote config: %w", err)
	}
	next, err := rc.Apply(p.base, p.version)
	if err != nil {
		return fmt.Errorf("apply remote config: %w", err)
	}
	if err := p.state.SetStateValue(ctx, remoteConfigStateKey, rc); err != nil {
		p.log.Warn("Could not persist remote config", "error", err)
	}
	p.publish(next)
	return nil
}

func (p *ConfigPuller) publish(next Settings) {
	prev := p.holder.Load()
	p.holder.Store(next)
	p.log.Info("Remote config applied", "subnets", strings.Join(next.Subnets, ","),
		"polling_interval", next.PollingInterval, "discovery_interval", next.DiscoveryInterval)
	if p.OnChange != nil {
		p.OnChange(prev, next)
	}
}
