package agent

import (
	"reflect"
	"testing"

	"printrelay/common/storage"
)

func TestStatusFromCode(t *testing.T) {
	t.Parallel()

	tests := map[int64]storage.DeviceStatus{
		1:  storage.StatusOther,
		2:  storage.StatusUnknown,
		3:  storage.StatusIdle,
		4:  storage.StatusPrinting,
		5:  storage.StatusWarmup,
		6:  storage.StatusError,
		0:  storage.StatusUnknown,
		7:  storage.StatusUnknown,
		-1: storage.StatusUnknown,
	}
	for code, want := range tests {
		if got := StatusFromCode(code); got != want {
			t.Errorf("StatusFromCode(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestDecodeDetectedErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   []byte
		want []string
	}{
		{nil, nil},
		{[]byte{0x00}, nil},
		{[]byte{0x80}, []string{"lowPaper"}},
		{[]byte{0x30, 0x00}, []string{"lowToner", "noToner"}},
		{[]byte{0x01, 0x82}, []string{"serviceRequested", "inputTrayMissing", "overduePreventMaint"}},
		{[]byte{0x00, 0x01, 0xff}, nil},
	}
	for _, tt := range tests {
		if got := DecodeDetectedErrors(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("DecodeDetectedErrors(%x) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
