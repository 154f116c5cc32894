package supplies

import "testing"

func TestNormalizeDescription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"   ", ""},
		{"Black Toner", TonerBlack},
		{"BK Cartridge", TonerBlack},
		{"Noir", TonerBlack},
		{"Cyan Ink", TonerCyan},
		{"MG Cartridge", TonerMagenta},
		{"Gelb", TonerYellow},
		{"k", TonerBlack},
		{"TK-8517K", TonerBlack},
		{"TK-8517C", TonerCyan},
		{"Supply TK-8517M", TonerMagenta},
		{"TN-760", TonerBlack},
		{"Drum Unit", Drum},
		{"Imaging Unit", Drum},
		{"Black Drum", Drum},
		{"Cyan Drum", ""},
		{"Waste Toner Box", WasteToner},
		{"Fuser Unit", Fuser},
		{"Transfer Belt", TransferBelt},
		{"Maintenance Kit", Maintenance},
		{"Staple Cartridge", Staples},
		{"Tray 2", ""},
	}

	for _, tt := range tests {
		if got := NormalizeDescription(tt.input); got != tt.want {
			t.Errorf("NormalizeDescription(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsSupplyName(t *testing.T) {
	t.Parallel()

	supplies := []string{"Black Toner Cartridge HP CF410A", "Cyan Ink", "Drum Unit", "Waste Toner Box", "TK-3182", "Fuser Kit"}
	for _, s := range supplies {
		if !IsSupplyName(s) {
			t.Errorf("IsSupplyName(%q) = false, want true", s)
		}
	}

	others := []string{"", "Tray 1", "Output Bin", "Manual Feed"}
	for _, s := range others {
		if IsSupplyName(s) {
			t.Errorf("IsSupplyName(%q) = true, want false", s)
		}
	}
}
