package packet

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecode_RawFrame(t *testing.T) {
	p, err := Decode([]byte(`{"rawEeg":-123}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	raw, ok := p.Raw()
	if !ok || raw != -123 {
		t.Errorf("Raw() = %d, %v; want -123, true", raw, ok)
	}
	if _, ok := p.Blink(); ok {
		t.Error("raw frame should not carry a blink")
	}
	if p.IsSummary() {
		t.Error("raw frame should not be a summary")
	}
}

func TestDecode_ZeroRawIsPresent(t *testing.T) {
	p, err := Decode([]byte(`{"rawEeg":0}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	raw, ok := p.Raw()
	if !ok || raw != 0 {
		t.Errorf("Raw() = %d, %v; want 0, true", raw, ok)
	}
}

func TestDecode_SummaryFrame(t *testing.T) {
	line := `{"eSense":{"attention":53,"meditation":61},` +
		`"eegPower":{"delta":1464645,"theta":63830,"lowAlpha":8746,"highAlpha":15401,` +
		`"lowBeta":5234,"highBeta":11080,"lowGamma":3442,"highGamma":1882},"poorSignalLevel":0}`

	p, err := Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !p.IsSummary() {
		t.Fatal("expected summary frame")
	}
	if p.ESense.Attention != 53 || p.ESense.Meditation != 61 {
		t.Errorf("eSense = %+v", *p.ESense)
	}
	if p.EEGPower == nil || p.EEGPower.Delta != 1464645 || p.EEGPower.HighGamma != 1882 {
		t.Errorf("eegPower = %+v", p.EEGPower)
	}
	if lvl, ok := p.SignalLevel(); !ok || lvl != 0 {
		t.Errorf("SignalLevel() = %d, %v; want 0, true", lvl, ok)
	}
	if _, ok := p.Raw(); ok {
		t.Error("summary frame should not carry a raw sample")
	}
}

func TestDecode_UnknownFieldsIgnored(t *testing.T) {
	p, err := Decode([]byte(`{"blinkStrength":87,"mentalEffort":0.4,"familiarity":12}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if b, ok := p.Blink(); !ok || b != 87 {
		t.Errorf("Blink() = %d, %v; want 87, true", b, ok)
	}
}

func TestDecode_StatusFrame(t *testing.T) {
	p, err := Decode([]byte(`{"poorSignalLevel":200,"status":"scanning"}` + "\r\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Status != "scanning" {
		t.Errorf("Status = %q, want scanning", p.Status)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not json", "NOT JSON"},
		{"truncated", `{"rawEeg":5`},
		{"split tail", `eg":5}`},
		{"null", "null"},
		{"array", "[1,2,3]"},
		{"wrong type", `{"rawEeg":"five"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line))
			if err == nil {
				t.Fatal("expected error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error %T is not *DecodeError", err)
			}
		})
	}
}

func TestDecode_OutOfRange(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"poor signal high", `{"poorSignalLevel":201}`},
		{"poor signal negative", `{"poorSignalLevel":-1}`},
		{"blink high", `{"blinkStrength":256}`},
		{"attention high", `{"eSense":{"attention":101,"meditation":0}}`},
		{"meditation negative", `{"eSense":{"attention":0,"meditation":-4}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line))
			if !errors.Is(err, ErrOutOfRange) {
				t.Errorf("err = %v, want ErrOutOfRange", err)
			}
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		p    Packet
	}{
		{"all absent", Packet{}},
		{"raw only", Packet{RawEEG: Int(512)}},
		{"raw zero", Packet{RawEEG: Int(0)}},
		{"raw negative", Packet{RawEEG: Int(-2048)}},
		{"blink", Packet{BlinkStrength: Int(0)}},
		{"signal", Packet{PoorSignalLevel: Int(200), Status: "scanning"}},
		{"summary", Packet{
			PoorSignalLevel: Int(26),
			ESense:          &ESense{Attention: 100, Meditation: 0},
			EEGPower: &EEGPower{
				Delta: 1, Theta: 2, LowAlpha: 3, HighAlpha: 4,
				LowBeta: 5, HighBeta: 6, LowGamma: 7, HighGamma: 16777215,
			},
		}},
		{"everything", Packet{
			PoorSignalLevel: Int(0),
			RawEEG:          Int(2047),
			BlinkStrength:   Int(255),
			ESense:          &ESense{Attention: 1, Meditation: 99},
			EEGPower:        &EEGPower{},
			Status:          "notscanning",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Encode(tt.p)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if line[len(line)-1] != '\n' {
				t.Error("encoded line must end with a newline")
			}
			got, err := Decode(line)
			if err != nil {
				t.Fatalf("Decode(%q): %v", line, err)
			}
			if !reflect.DeepEqual(got, tt.p) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, tt.p)
			}
		})
	}
}
