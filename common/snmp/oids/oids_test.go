package oids

import (
	"strconv"
	"strings"
	"testing"
)

func TestOIDsAreValidFormat(t *testing.T) {
	t.Parallel()

	all := map[string]string{
		"SysDescr":                    SysDescr,
		"SysUpTime":                   SysUpTime,
		"SysName":                     SysName,
		"HrDeviceDescr":               HrDeviceDescr,
		"HrPrinterStatus":             HrPrinterStatus,
		"HrPrinterDetectedErrorState": HrPrinterDetectedErrorState,
		"PrtGeneralSerialNumber":      PrtGeneralSerialNumber,
		"PrtMarkerLifeCount":          PrtMarkerLifeCount,
		"PrtConsoleDisplayBuffer":     PrtConsoleDisplayBuffer,
		"PrtAlertDescription":         PrtAlertDescription,
		"PrtMarkerSuppliesDesc":       PrtMarkerSuppliesDesc,
		"PrtMarkerSuppliesLevel":      PrtMarkerSuppliesLevel,
	}

	for name, oid := range all {
		if !strings.HasPrefix(oid, "1.3.6.1.") {
			t.Errorf("%s = %q: expected 1.3.6.1 prefix", name, oid)
		}
		for _, part := range strings.Split(oid, ".") {
			if _, err := strconv.Atoi(part); err != nil {
				t.Errorf("%s = %q: non-numeric arc %q", name, oid, part)
			}
		}
	}
}

func TestSupplyColumnsShareEntry(t *testing.T) {
	t.Parallel()

	entry := "1.3.6.1.2.1.43.11.1.1."
	if !strings.HasPrefix(PrtMarkerSuppliesDesc, entry) || !strings.HasPrefix(PrtMarkerSuppliesLevel, entry) {
		t.Errorf("supply columns must sit under prtMarkerSuppliesEntry")
	}
}
