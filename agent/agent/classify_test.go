package agent

import "testing"

func TestKeywordClassifier_Defaults(t *testing.T) {
	t.Parallel()

	classify := KeywordClassifier(nil)
	tests := []struct {
		descriptor string
		want       bool
	}{
		{"Laser Printer Model X", true},
		{"HP ETHERNET MULTI-ENVIRONMENT,ROM none,JETDIRECT,JD153", true},
		{"Brother NC-8300w, Firmware Ver.1.05", true},
		{"KYOCERA Document Solutions Printing System", true},
		{"Linux gateway 5.15.0-91-generic #101-Ubuntu SMP x86_64", false},
		{"Cisco IOS Software, C2960 Software", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := classify(tt.descriptor); got != tt.want {
			t.Errorf("classify(%q) = %v, want %v", tt.descriptor, got, tt.want)
		}
	}
}

func TestKeywordClassifier_CustomKeywords(t *testing.T) {
	t.Parallel()

	classify := KeywordClassifier([]string{"  Plotter ", ""})
	if !classify("DesignJet PLOTTER T830") {
		t.Error("custom keyword should match case-insensitively")
	}
	if classify("Laser Printer Model X") {
		t.Error("custom keyword list should replace the defaults")
	}
}

func TestKeywordClassifier_BlankListFallsBack(t *testing.T) {
	t.Parallel()

	if !KeywordClassifier([]string{" ", ""})("Xerox WorkCentre 6515") {
		t.Error("blank keyword list should fall back to defaults")
	}
}
