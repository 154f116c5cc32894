package agent

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"printrelay/agent/storage"
)

// CollectResult summarizes one collection pass.
type CollectResult struct {
	Devices     int
	Collected   int
	Unreachable int
}

// MetricsSink is the part of the store a collection pass writes to.
type MetricsSink interface {
	ListDevices(ctx context.Context) ([]*storage.Device, error)
	StoreMetricsAtomic(ctx context.Context, rec *storage.MetricsRecord, build storage.EnvelopeBuilder) error
}

// Collector polls every registered device for metrics.
type Collector struct {
	store     MetricsSink
	settings  *SettingsHolder
	envelopes *EnvelopeFactory
	log       Logger
	telemetry *Telemetry
	newClient ClientFactory
	now       func() time.Time
}

// NewCollector builds a Collector reading its settings from holder at the start of each pass.
func NewCollector(store MetricsSink, holder *SettingsHolder, envelopes *EnvelopeFactory, log Logger) *Collector {
	return &Collector{
		store:     store,
		settings:  holder,
		envelopes: envelopes,
		log:       orNop(log),
		newClient: NewSNMPClient,
		now:       time.Now,
	}
}

// SetTelemetry attaches collection counters.
func (c *Collector) SetTelemetry(t *Telemetry) { c.telemetry = t }

type extraction struct {
	device *storage.Device
	rec    *storage.MetricsRecord
	err    error
}

// Run extracts metrics from a snapshot of the registry with bounded
// concurrency, then stores each sample and its envelope sequentially.
// Unreachable devices are logged and skipped.
func (c *Collector) Run(ctx context.Context) (CollectResult, error) {
	s := c.settings.Load()
	var res CollectResult

	devices, err := c.store.ListDevices(ctx)
	if err != nil {
		return res, err
	}
	res.Devices = len(devices)
	if len(devices) == 0 {
		return res, nil
	}

	extractor := &Extractor{cfg: s.SNMP, newClient: c.newClient, now: c.now, log: c.log}
	workers := s.CollectWorkers
	if workers <= 0 {
		workers = 1
	}

	results := make([]extraction, len(devices))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, dev := range devices {
		if ctx.Err() != nil {
			break
		}
		results[i].device = dev
		g.Go(func() error {
			results[i].rec, results[i].err = extractor.Extract(ctx, dev)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if ctx.Err() != nil {
			c.log.Info("Collection interrupted", "collected", res.Collected)
			return res, nil
		}
		if r.device == nil {
			continue
		}
		if r.err != nil {
			res.Unreachable++
			c.telemetry.ExtractionFailed()
			c.log.Warn("Metrics extraction failed", "ip", r.device.Address, "error", r.err)
			continue
		}
		if err := c.store.StoreMetricsAtomic(ctx, r.rec, c.envelopes.Metrics(r.rec)); err != nil {
			if errors.Is(err, storage.ErrStoreUnavailable) {
				return res, err
			}
			c.log.Warn("Could not store metrics", "ip", r.device.Address, "error", err)
			continue
		}
		res.Collected++
		c.telemetry.MetricsCollected()
		c.log.Debug("Metrics stored", "ip", r.device.Address, "status", r.rec.Status)
	}

	c.log.Info("Collection finished", "devices", res.Devices, "collected", res.Collected, "unreachable", res.Unreachable)
	return res, nil
}
