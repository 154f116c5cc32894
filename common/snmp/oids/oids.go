package oids

// OIDs queried by the probe and the metrics extractor. Scalars carry their
// instance suffix; table roots do not and are walked.

const (
	// --- MIB-II system group ---

	// SysDescr is the descriptor text the classifier inspects.
	SysDescr = "1.3.6.1.2.1.1.1.0"
	// SysUpTime doubles as the liveness query of the metrics battery.
	SysUpTime = "1.3.6.1.2.1.1.3.0"
	SysName   = "1.3.6.1.2.1.1.5.0"

	// --- Host Resources MIB (RFC 2790) ---

	// HrDeviceDescr is hrDeviceDescr.1, the model string on most printers.
	HrDeviceDescr = "1.3.6.1.2.1.25.3.2.1.3.1"
	// HrPrinterStatus is hrPrinterStatus.1.
	HrPrinterStatus = "1.3.6.1.2.1.25.3.5.1.1.1"
	// HrPrinterDetectedErrorState is hrPrinterDetectedErrorState.1, an octet bitmask.
	HrPrinterDetectedErrorState = "1.3.6.1.2.1.25.3.5.1.2.1"
)

const (
	// --- Printer MIB (RFC 3805) ---

	PrtGeneralSerialNumber = "1.3.6.1.2.1.43.5.1.1.17.1"
	// PrtMarkerLifeCount is prtMarkerLifeCount.1.1, the lifetime page counter.
	PrtMarkerLifeCount = "1.3.6.1.2.1.43.10.2.1.4.1.1"
	// PrtConsoleDisplayBuffer is the first line of the front panel display.
	PrtConsoleDisplayBuffer = "1.3.6.1.2.1.43.16.5.1.2.1.1"
	// PrtAlertDescription is the description of the first alert table row.
	PrtAlertDescription = "1.3.6.1.2.1.43.18.1.1.8.1.1"

	// Supply table columns, walked and joined on the trailing index.
	PrtMarkerSuppliesDesc  = "1.3.6.1.2.1.43.11.1.1.6"
	PrtMarkerSuppliesLevel = "1.3.6.1.2.1.43.11.1.1.9"
)
