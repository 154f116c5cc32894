// Command printerprobe runs the agent's classification and metrics queries
// against one host and prints what the agent would record, as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gosnmp/gosnmp"

	"printrelay/agent/agent"
	"printrelay/agent/storage"
	"printrelay/common/logger"
	"printrelay/common/util"
)

// ProbeReport is the printed result.
type ProbeReport struct {
	Target     string                 `json:"target"`
	Timestamp  time.Time              `json:"timestamp"`
	Descriptor string                 `json:"descriptor,omitempty"`
	IsPrinter  bool                   `json:"is_printer"`
	Device     *agent.DeviceInfo      `json:"device,omitempty"`
	Metrics    *storage.MetricsRecord `json:"metrics,omitempty"`
	Walk       []WalkEntry            `json:"walk,omitempty"`
	Errors     []string               `json:"errors,omitempty"`
}

// WalkEntry is one varbind from -walk.
type WalkEntry struct {
	OID   string      `json:"oid"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

func main() {
	target := flag.String("target", "", "Host to probe")
	community := flag.String("community", "public", "SNMP community")
	version := flag.String("version", "2c", "SNMP version (1 or 2c)")
	timeout := flag.Duration("timeout", 2*time.Second, "Per query timeout")
	walkRoot := flag.String("walk", "", "Also walk this OID subtree")
	verbose := flag.Bool("v", false, "Log each query")
	flag.Parse()

	if *target == "" {
		fmt.Fprintln(os.Stderr, "usage: printerprobe -target HOST [-community C] [-version 2c] [-walk OID]")
		os.Exit(2)
	}
	snmpVersion, err := agent.ParseSNMPVersion(*version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := logger.WARN
	if *verbose {
		level = logger.DEBUG
	}
	log := logger.New(level, "", 100)
	log.SetConsole(os.Stderr)

	cfg := agent.DefaultSNMPConfig()
	cfg.Community = *community
	cfg.Version = snmpVersion
	cfg.Timeout = *timeout

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report := probe(ctx, cfg, *target, *walkRoot, log)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !report.IsPrinter {
		os.Exit(3)
	}
}

func probe(ctx context.Context, cfg agent.SNMPConfig, target, walkRoot string, log agent.Logger) ProbeReport {
	report := ProbeReport{Target: target, Timestamp: time.Now().UTC()}

	prober := agent.NewProber(cfg, agent.KeywordClassifier(nil), log)
	res, ok := prober.Probe(ctx, target)
	report.Descriptor = res.Descriptor
	report.IsPrinter = ok
	if !ok {
		report.Errors = append(report.Errors, "descriptor query failed or did not classify as a printer")
		return report
	}

	if info, err := prober.Describe(ctx, target); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("describe: %v", err))
	} else {
		report.Device = &info
	}

	extractor := agent.NewExtractor(cfg, log)
	rec, err := extractor.Extract(ctx, &storage.Device{Address: target})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("extract: %v", err))
	} else {
		report.Metrics = rec
	}

	if walkRoot != "" {
		entries, err := walk(cfg, target, walkRoot)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("walk %s: %v", walkRoot, err))
		}
		report.Walk = entries
	}
	return report
}

func walk(cfg agent.SNMPConfig, target, root string) ([]WalkEntry, error) {
	client, err := agent.NewSNMPClient(cfg, target)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var entries []WalkEntry
	err = client.Walk(root, func(pdu gosnmp.SnmpPDU) error {
		value := pdu.Value
		if b, ok := value.([]byte); ok {
			value = util.DecodeOctetString(b)
		}
		entries = append(entries, WalkEntry{OID: pdu.Name, Type: pdu.Type.String(), Value: value})
		return nil
	})
	return entries, err
}
