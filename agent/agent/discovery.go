package agent

import (
	"context"
	"errors"
	"net/netip"
	"sort"
	"time"

	"printrelay/agent/scanner"
	"printrelay/agent/storage"
)

// DiscoveryResult summarizes one discovery pass.
type DiscoveryResult struct {
	Candidates     int
	Printers       int
	Stored         int
	SkippedSubnets []string
}

// Discoverer scans the configured subnets and records the printers it finds.
type Discoverer struct {
	registry  storage.DeviceRegistry
	settings  *SettingsHolder
	envelopes *EnvelopeFactory
	log       Logger
	telemetry *Telemetry
	newClient ClientFactory
	browse    func(ctx context.Context, timeout time.Duration, log Logger) []string
}

// NewDiscoverer builds a Discoverer reading its settings from holder at the start of each pass.
func NewDiscoverer(registry storage.DeviceRegistry, holder *SettingsHolder, envelopes *EnvelopeFactory, log Logger) *Discoverer {
	return &Discoverer{
		registry:  registry,
		settings:  holder,
		envelopes: envelopes,
		log:       orNop(log),
		newClient: NewSNMPClient,
		browse:    BrowseMDNS,
	}
}

// SetTelemetry attaches discovery counters.
func (d *Discoverer) SetTelemetry(t *Telemetry) { d.telemetry = t }

// Candidates expands the configured subnets, plus mDNS advertisers when
// enabled. Subnets that are invalid or larger than the host ceiling are
// skipped with a warning.
func (d *Discoverer) Candidates(ctx context.Context, s Settings) (ips []string, skipped []string) {
	for _, subnet := range s.Subnets {
		hosts, err := ExpandSubnet(subnet, s.MaxHostsPerSubnet)
		if err != nil {
			if errors.Is(err, ErrSubnetTooLarge) {
				d.log.Warn("Skipping subnet larger than host ceiling", "subnet", subnet, "max_hosts", s.MaxHostsPerSubnet)
			} else {
				d.log.Warn("Skipping invalid subnet", "subnet", subnet, "error", err)
			}
			skipped = append(skipped, subnet)
			continue
		}
		ips = append(ips, hosts...)
	}
	if s.MDNSEnabled && d.browse != nil {
		found := d.browse(ctx, s.MDNSBrowseTimeout, d.log)
		if len(found) > 0 {
			d.log.Debug("mDNS candidates", "count", len(found))
		}
		ips = append(ips, found...)
	}
	return ips, skipped
}

// Run probes every candidate concurrently, then persists the printers one at
// a time. Each printer is upserted with its discovery envelope in a single
// transaction. Cancellation is checked between hosts.
func (d *Discoverer) Run(ctx context.Context) (DiscoveryResult, error) {
	s := d.settings.Load()
	var res DiscoveryResult

	candidates, skipped := d.Candidates(ctx, s)
	res.Candidates = len(candidates)
	res.SkippedSubnets = skipped
	if len(candidates) == 0 {
		d.log.Info("Discovery found no candidate addresses")
		return res, nil
	}

	prober := &Prober{cfg: s.SNMP, classify: KeywordClassifier(s.Keywords), newClient: d.newClient, log: d.log}
	deepWorkers := s.ProbeWorkers / 4
	if deepWorkers < 1 {
		deepWorkers = 1
	}
	cfg := scanner.ScannerConfig{
		DetectionWorkers: s.ProbeWorkers,
		DetectFunc: func(ctx context.Context, job scanner.ScanJob) (interface{}, bool) {
			d.telemetry.HostProbed()
			return prober.Probe(ctx, job.IP)
		},
		DeepScanWorkers: deepWorkers,
		DeepScanFunc: func(ctx context.Context, dr scanner.DetectionResult) (interface{}, error) {
			return prober.Describe(ctx, dr.Job.IP)
		},
	}

	d.log.Info("Discovery started", "candidates", len(candidates), "subnets", len(s.Subnets)-len(skipped))
	found := scanner.Scan(ctx, cfg, candidates, "discovery")
	sortByAddress(found)
	res.Printers = len(found)

	build := d.envelopes.Discovery()
	for _, r := range found {
		if ctx.Err() != nil {
			d.log.Info("Discovery interrupted", "stored", res.Stored, "remaining", res.Printers-res.Stored)
			return res, nil
		}
		probe, _ := r.Detection.Info.(ProbeResult)
		info, _ := r.Info.(DeviceInfo)
		if r.Err != nil {
			d.log.Debug("Describe incomplete", "ip", probe.Address, "error", r.Err)
		}

		dev, err := d.registry.StoreDiscoveryAtomic(ctx, r.Detection.Job.IP, storage.DeviceFields{
			Model:      info.Model,
			Name:       info.Name,
			Serial:     info.Serial,
			Descriptor: probe.Descriptor,
		}, build)
		if err != nil {
			if errors.Is(err, storage.ErrStoreUnavailable) {
				return res, err
			}
			d.log.Warn("Could not record printer", "ip", r.Detection.Job.IP, "error", err)
			continue
		}
		res.Stored++
		d.telemetry.PrinterDiscovered()
		d.log.Info("Printer discovered", "ip", dev.Address, "model", dev.Model, "serial", dev.Serial, "id", dev.ID)
	}

	d.log.Info("Discovery finished", "candidates", res.Candidates, "printers", res.Printers, "stored", res.Stored)
	return res, nil
}

func sortByAddress(results []scanner.DeepScanResult) {
	sort.Slice(results, func(i, j int) bool {
		a, errA := netip.ParseAddr(results[i].Detection.Job.IP)
		b, errB := netip.ParseAddr(results[j].Detection.Job.IP)
		if errA != nil || errB != nil {
			return results[i].Detection.Job.IP < results[j].Detection.Job.IP
		}
		return a.Less(b)
	})
}
