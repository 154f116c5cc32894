package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"printrelay/agent/supplies"
	"printrelay/common/snmp/oids"
	"printrelay/common/storage"
	"printrelay/common/util"
)

// Extractor reads one metrics sample from a registered device.
type Extractor struct {
	cfg       SNMPConfig
	newClient ClientFactory
	now       func() time.Time
	log       Logger
}

// NewExtractor builds an Extractor using the production SNMP client.
func NewExtractor(cfg SNMPConfig, log Logger) *Extractor {
	return &Extractor{cfg: cfg, newClient: NewSNMPClient, now: time.Now, log: orNop(log)}
}

// Extract queries device and assembles a MetricsRecord. Each scalar is read on
// its own; a query that fails leaves its field absent. ErrUnreachable is
// returned only when the device answered nothing at all.
func (e *Extractor) Extract(ctx context.Context, device *storage.Device) (*storage.MetricsRecord, error) {
	if device == nil {
		return nil, fmt.Errorf("device is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := e.newClient(e.cfg, device.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, device.Address, err)
	}
	defer closeQuietly(client)

	rec := &storage.MetricsRecord{
		SchemaVersion: storage.MetricsSchemaVersion,
		DeviceID:      device.ID,
		Address:       device.Address,
		Timestamp:     e.now().UTC(),
		Status:        storage.StatusUnknown,
		Raw:           map[string]interface{}{},
	}
	responded := false
	scalar := func(oid string) (gosnmp.SnmpPDU, bool) {
		pdu, answered, ok := getScalar(client, oid)
		responded = responded || answered
		return pdu, ok
	}

	if pdu, ok := scalar(oids.SysUpTime); ok {
		if ticks, ok := util.CoerceToInt(pdu.Value); ok {
			rec.Raw["uptime_seconds"] = ticks / 100
		}
	}
	if pdu, ok := scalar(oids.PrtMarkerLifeCount); ok {
		if count, ok := util.CoerceToInt(pdu.Value); ok && count >= 0 {
			rec.PageCount = &count
			rec.Raw["page_count"] = count
		}
	}
	if pdu, ok := scalar(oids.HrPrinterStatus); ok {
		if code, ok := util.CoerceToInt(pdu.Value); ok {
			rec.Status = StatusFromCode(code)
			rec.Raw["status_code"] = code
		}
	}
	if pdu, ok := scalar(oids.HrPrinterDetectedErrorState); ok {
		if b, isBytes := pdu.Value.([]byte); isBytes {
			if names := DecodeDetectedErrors(b); len(names) > 0 {
				rec.Raw["detected_errors"] = names
			}
		}
	}
	if pdu, ok := scalar(oids.PrtConsoleDisplayBuffer); ok {
		if text := pduString(pdu); text != "" {
			rec.Raw["console_display"] = text
		}
	}

	levels, keys, walked := e.readSupplies(client)
	responded = responded || walked
	if len(levels) > 0 {
		rec.SupplyLevels = levels
		rec.Raw["supply_keys"] = keys
	}

	if rec.Status == storage.StatusError {
		if pdu, ok := scalar(oids.PrtAlertDescription); ok {
			rec.ErrorDetail = pduString(pdu)
		}
	}

	if !responded {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, device.Address)
	}
	rec.Raw["status"] = string(rec.Status)
	if len(rec.Raw) == 1 {
		e.log.Debug("Device answered without metrics", "ip", device.Address)
	}
	return rec, nil
}

// readSupplies walks the supply description and level columns and joins them
// on the row index. Rows whose description does not name a consumable are
// dropped. walked reports whether either walk returned anything.
func (e *Extractor) readSupplies(client SNMPClient) (levels map[string]int64, keys map[string]string, walked bool) {
	descs := e.walkColumn(client, oids.PrtMarkerSuppliesDesc)
	values := e.walkColumn(client, oids.PrtMarkerSuppliesLevel)
	walked = len(descs) > 0 || len(values) > 0
	if len(descs) == 0 || len(values) == 0 {
		return nil, nil, walked
	}

	indexes := make([]string, 0, len(descs))
	for idx := range descs {
		indexes = append(indexes, idx)
	}
	sort.Strings(indexes)

	levels = map[string]int64{}
	keys = map[string]string{}
	for _, idx := range indexes {
		desc := pduString(descs[idx])
		if desc == "" || !supplies.IsSupplyName(desc) {
			continue
		}
		pdu, ok := values[idx]
		if !ok {
			continue
		}
		level, ok := util.CoerceToInt(pdu.Value)
		if !ok {
			continue
		}
		name := desc
		if _, dup := levels[name]; dup {
			name = fmt.Sprintf("%s #%s", desc, idx)
		}
		levels[name] = level
		if key := supplies.NormalizeDescription(desc); key != "" {
			keys[name] = key
		}
	}
	return levels, keys, walked
}

// walkColumn returns the present varbinds under root keyed by the OID suffix
// after root. A walk that errors part way keeps what it collected.
func (e *Extractor) walkColumn(client SNMPClient, root string) map[string]gosnmp.SnmpPDU {
	out := map[string]gosnmp.SnmpPDU{}
	prefix := root + "."
	err := client.Walk(root, func(p gosnmp.SnmpPDU) error {
		if !pduPresent(p) {
			return nil
		}
		name := strings.TrimPrefix(p.Name, ".")
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		out[strings.TrimPrefix(name, prefix)] = p
		return nil
	})
	if err != nil {
		e.log.Debug("Supply walk incomplete", "oid", root, "error", err)
	}
	return out
}
