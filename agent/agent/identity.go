package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"printrelay/agent/storage"
	"printrelay/common/util"
)

// RegistrationState tracks where the agent is in the registration handshake.
type RegistrationState int

const (
	Unregistered RegistrationState = iota
	Registering
	Registered
)

func (s RegistrationState) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	}
	return fmt.Sprintf("RegistrationState(%d)", int(s))
}

// Registrar is the aggregator call the identity manager drives.
type Registrar interface {
	Register(ctx context.Context, credential string, req RegisterRequest) (*RegisterResponse, error)
}

// IdentityOptions carries the configured identity inputs.
type IdentityOptions struct {
	// Seed is used as the agent id on first start. Ignored once an id is stored.
	Seed        string
	DisplayName string
	Version     string
}

// IdentityManager owns the agent id and the delivery credential.
type IdentityManager struct {
	store     storage.IdentityStore
	client    Registrar
	opts      IdentityOptions
	log       Logger
	telemetry *Telemetry
	sysinfo   func() util.SystemInfo

	regMu sync.Mutex // serializes Register

	mu            sync.RWMutex
	agentID       string
	credential    string
	remoteAgentID string
	state         RegistrationState
}

// NewIdentityManager loads the persisted identity, generating and storing the
// agent id on first start.
func NewIdentityManager(ctx context.Context, store storage.IdentityStore, client Registrar, opts IdentityOptions, log Logger) (*IdentityManager, error) {
	log = orNop(log)
	ident, err := store.LoadIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	candidate := strings.TrimSpace(opts.Seed)
	if candidate == "" {
		candidate = uuid.NewString()
	}
	agentID, err := store.EnsureAgentID(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("persist agent id: %w", err)
	}
	if ident.AgentID != "" && opts.Seed != "" && opts.Seed != agentID {
		log.Warn("Configured agent id ignored, installation already has one", "configured", opts.Seed, "agent_id", agentID)
	}

	m := &IdentityManager{
		store:         store,
		client:        client,
		opts:          opts,
		log:           log,
		sysinfo:       util.GetSystemInfo,
		agentID:       agentID,
		credential:    ident.Credential,
		remoteAgentID: ident.RemoteAgentID,
		state:         Unregistered,
	}
	if !ident.RegisteredAt.IsZero() && ident.Credential != "" {
		m.state = Registered
	}
	return m, nil
}

// SetTelemetry attaches counters for registration attempts.
func (m *IdentityManager) SetTelemetry(t *Telemetry) { m.telemetry = t }

func (m *IdentityManager) AgentID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agentID
}

// Credential returns the active delivery credential, or "" before one is issued.
func (m *IdentityManager) Credential() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.credential
}

func (m *IdentityManager) State() RegistrationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// MarkCredentialRejected moves a registered agent back to Registering so the
// next pass registers again. The stored credential is kept until replaced.
func (m *IdentityManager) MarkCredentialRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Registered {
		m.log.Warn("Aggregator rejected delivery credential, will re-register", "agent_id", m.agentID)
	}
	m.state = Registering
}

// EnsureRegistered registers unless the agent is already registered with a
// credential on file.
func (m *IdentityManager) EnsureRegistered(ctx context.Context) error {
	if m.State() == Registered && m.Credential() != "" {
		return nil
	}
	return m.Register(ctx)
}

// Register announces the agent to the aggregator. A returned credential is
// persisted before it becomes active; a success without one keeps the stored
// credential. A success that leaves the agent with no credential at all fails
// with ErrUnauthenticated. On failure the previous state is restored.
func (m *IdentityManager) Register(ctx context.Context) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	m.mu.Lock()
	prev := m.state
	m.state = Registering
	agentID, credential := m.agentID, m.credential
	m.mu.Unlock()

	fail := func(err error) error {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()
		m.telemetry.Registration(false)
		return err
	}

	info := m.sysinfo()
	name := m.opts.DisplayName
	if name == "" {
		name = info.Hostname
	}
	req := RegisterRequest{
		AgentID:   agentID,
		Name:      name,
		Hostname:  info.Hostname,
		IPAddress: util.LocalIP(),
		Platform:  info.Platform(),
		OSInfo:    info.OSVersion,
		Version:   m.opts.Version,
	}

	resp, err := m.client.Register(ctx, credential, req)
	if err != nil {
		m.log.Warn("Registration failed", "agent_id", agentID, "error", err)
		return fail(err)
	}

	token := strings.TrimSpace(resp.Token)
	if token != "" && token != credential {
		if err := m.store.SaveCredential(ctx, token); err != nil {
			return fail(fmt.Errorf("persist credential: %w", err))
		}
		credential = token
	}
	if credential == "" {
		m.log.Warn("Aggregator accepted registration without issuing a credential", "agent_id", agentID)
		return fail(fmt.Errorf("%w: registration returned no credential", ErrUnauthenticated))
	}
	if err := m.store.SaveRegistration(ctx, resp.AgentID); err != nil {
		return fail(fmt.Errorf("persist registration: %w", err))
	}

	m.mu.Lock()
	m.credential = credential
	if resp.AgentID != "" {
		m.remoteAgentID = resp.AgentID
	}
	m.state = Registered
	m.mu.Unlock()

	m.telemetry.Registration(true)
	m.log.Info("Registered with aggregator", "agent_id", agentID, "credential_issued", token != "")
	return nil
}
