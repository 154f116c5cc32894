package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"printrelay/agent/agent"
	"printrelay/agent/scheduler"
	"printrelay/agent/storage"
	"printrelay/common/config"
	"printrelay/common/logger"
)

const (
	taskDiscovery     = "discovery"
	taskCollect       = "collect"
	taskSync          = "sync"
	taskConfigRefresh = "config_refresh"
)

// pipeline holds every long-lived component of a running agent.
type pipeline struct {
	cfg        *AgentConfig
	log        *logger.Logger
	store      *storage.SQLiteStore
	client     *agent.ServerClient
	identity   *agent.IdentityManager
	settings   *agent.SettingsHolder
	envelopes  *agent.EnvelopeFactory
	discoverer *agent.Discoverer
	collector  *agent.Collector
	syncer     *agent.SyncEngine
	puller     *agent.ConfigPuller
	telemetry  *agent.Telemetry
}

// resolveDatabasePath returns database.path, or the default file in the data directory.
func resolveDatabasePath(cfg *AgentConfig, isService bool) (string, error) {
	if cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	dataDir := cfg.Agent.DataDir
	if dataDir == "" {
		var err error
		if dataDir, err = config.GetDataDirectory(isService); err != nil {
			return "", err
		}
	}
	return filepath.Join(dataDir, "printrelay.db"), nil
}

// newPipeline opens the store and wires the components. Only a store failure
// is fatal; everything else degrades to logged errors at run time.
func newPipeline(ctx context.Context, cfg *AgentConfig, log *logger.Logger, isService bool) (*pipeline, error) {
	settings, err := cfg.ToSettings()
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	dbPath, err := resolveDatabasePath(cfg, isService)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	store, err := storage.NewSQLiteStore(dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", dbPath, err)
	}
	log.Info("Store opened", "path", dbPath)

	client, err := agent.NewServerClient(cfg.Server.URL, cfg.Server.CAPath, cfg.Server.InsecureSkipVerify,
		time.Duration(cfg.Server.TimeoutSeconds)*time.Second, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("aggregator client: %w", err)
	}
	client.UserAgent = "printrelay-agent/" + Version

	identity, err := agent.NewIdentityManager(ctx, store, client, agent.IdentityOptions{
		Seed:        cfg.Agent.ID,
		DisplayName: cfg.Agent.Name,
		Version:     Version,
	}, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	p := &pipeline{
		cfg:       cfg,
		log:       log,
		store:     store,
		client:    client,
		identity:  identity,
		settings:  agent.NewSettingsHolder(settings),
		envelopes: agent.NewEnvelopeFactory(identity.AgentID),
		telemetry: agent.NewTelemetry(),
	}
	p.discoverer = agent.NewDiscoverer(store, p.settings, p.envelopes, log)
	p.collector = agent.NewCollector(store, p.settings, p.envelopes, log)
	p.syncer = agent.NewSyncEngine(store, store, client, identity, settings.SyncBatchSize, log)
	p.puller = agent.NewConfigPuller(client, identity, store, p.settings, settings, Version, log)

	identity.SetTelemetry(p.telemetry)
	p.discoverer.SetTelemetry(p.telemetry)
	p.collector.SetTelemetry(p.telemetry)
	p.syncer.SetTelemetry(p.telemetry)

	if err := p.puller.Restore(ctx); err != nil {
		log.Warn("Could not restore remote config", "error", err)
	}

	log.Info("Agent identity loaded", "agent_id", identity.AgentID(), "state", identity.State().String())
	return p, nil
}

func (p *pipeline) Close() error {
	return p.store.Close()
}

func (p *pipeline) runDiscovery(ctx context.Context) error {
	_, err := p.discoverer.Run(ctx)
	return err
}

func (p *pipeline) runCollect(ctx context.Context) error {
	_, err := p.collector.Run(ctx)
	return err
}

// runSync treats a missing credential or an unacknowledged envelope as an
// expected outcome; the envelope stays queued for the next pass.
func (p *pipeline) runSync(ctx context.Context) error {
	res, err := p.syncer.RunPass(ctx)
	switch {
	case errors.Is(err, agent.ErrUnauthenticated):
		p.log.WarnRateLimited("sync-unauthenticated", 10*time.Minute, "Sync skipped, agent has no accepted credential", "error", err)
		return nil
	case errors.Is(err, agent.ErrDeliveryFailed):
		p.log.WarnRateLimited("sync-delivery", 5*time.Minute, "Sync pass stopped early", "delivered", res.Delivered, "remaining", res.Remaining, "error", err)
		return nil
	}
	return err
}

func (p *pipeline) runConfigRefresh(ctx context.Context) error {
	if err := p.puller.Refresh(ctx); err != nil {
		p.log.WarnRateLimited("config-refresh", 30*time.Minute, "Remote config not applied", "error", err)
	}
	return nil
}

// schedule builds the scheduler with one task per recurring pass and keeps
// task intervals in step with remote config.
func (p *pipeline) schedule() (*scheduler.Scheduler, error) {
	s := p.settings.Load()
	sched := scheduler.New(p.log)
	sched.OnComplete = func(name string, took time.Duration, _ error) {
		p.telemetry.ObservePass(name, took)
	}

	tasks := []scheduler.Task{
		{Name: taskDiscovery, Interval: s.DiscoveryInterval, Run: p.runDiscovery},
		{Name: taskCollect, Interval: s.PollingInterval, Run: p.runCollect},
		{Name: taskSync, Interval: s.SyncInterval, Run: p.runSync},
		{Name: taskConfigRefresh, Interval: s.ConfigRefreshInterval, Run: p.runConfigRefresh},
	}
	for _, t := range tasks {
		if err := sched.Add(t); err != nil {
			return nil, err
		}
	}

	p.puller.OnChange = func(prev, next agent.Settings) {
		if next.PollingInterval != prev.PollingInterval {
			if err := sched.Reschedule(taskCollect, next.PollingInterval); err != nil {
				p.log.Error("Could not reschedule collection", "error", err)
			}
		}
		if next.DiscoveryInterval != prev.DiscoveryInterval {
			if err := sched.Reschedule(taskDiscovery, next.DiscoveryInterval); err != nil {
				p.log.Error("Could not reschedule discovery", "error", err)
			}
		}
	}
	return sched, nil
}

// serveMetrics exposes the telemetry registry until ctx is done.
func (p *pipeline) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.telemetry.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	p.log.Info("Metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		p.log.Error("Metrics endpoint failed", "error", err)
	}
}
