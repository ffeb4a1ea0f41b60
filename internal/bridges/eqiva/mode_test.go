package eqiva

import "testing"

func TestModeLabels(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		want []string
	}{
		{"auto", 0x00, []string{LabelAuto}},
		{"manual is not labelled", 0x01, nil},
		{"manual boost", 0x05, []string{LabelBoost}},
		{"auto dst", 0x08, []string{LabelAuto, LabelDST}},
		{"manual vacation", 0x03, []string{LabelVacation}},
		{"auto locked battery", 0xa0, []string{LabelAuto, LabelLocked, LabelBatteryLow}},
		{"open window", 0x10, []string{LabelAuto, LabelOpenWindow}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.mode.Labels()
			if len(got) != len(tt.want) {
				t.Fatalf("Labels(%#02x) = %v, want %v", byte(tt.mode), got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Labels(%#02x)[%d] = %q, want %q", byte(tt.mode), i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestModeHas(t *testing.T) {
	m := ModeManual | ModeBoost
	if m.Has(ModeAuto) {
		t.Error("manual mode reports AUTO")
	}
	if !m.Has(ModeBoost) {
		t.Error("BOOST bit not reported")
	}
	if !Mode(0).Has(ModeAuto) {
		t.Error("zero mode is not AUTO")
	}
}
