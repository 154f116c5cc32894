package agent

import "printrelay/common/storage"

var statusByCode = map[int64]storage.DeviceStatus{
	1: storage.StatusOther,
	2: storage.StatusUnknown,
	3: storage.StatusIdle,
	4: storage.StatusPrinting,
	5: storage.StatusWarmup,
	6: storage.StatusError,
}

// StatusFromCode maps an hrPrinterStatus value. Codes outside the table are unknown.
func StatusFromCode(code int64) storage.DeviceStatus {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return storage.StatusUnknown
}

// Bits of hrPrinterDetectedErrorState, most significant bit of the first octet first.
var detectedErrorBits = [][]string{
	{"lowPaper", "noPaper", "lowToner", "noToner", "doorOpen", "jammed", "offline", "serviceRequested"},
	{"inputTrayMissing", "outputTrayMissing", "markerSupplyMissing", "outputNearFull", "outputFull", "inputTrayEmpty", "overduePreventMaint", ""},
}

// DecodeDetectedErrors names the conditions set in an hrPrinterDetectedErrorState value.
func DecodeDetectedErrors(b []byte) []string {
	var out []string
	for i, octet := range b {
		if i >= len(detectedErrorBits) {
			break
		}
		for bit, name := range detectedErrorBits[i] {
			if name != "" && octet&(0x80>>uint(bit)) != 0 {
				out = append(out, name)
			}
		}
	}
	return out
}
