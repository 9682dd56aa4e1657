// Package packet defines the telemetry frame emitted by the ThinkGear
// connector service and the line codec used on the wire. Each line on the
// socket is one JSON object; every field is independently optional.
package packet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Field ranges reported by the connector.
const (
	MaxPoorSignal    = 200 // no electrode contact
	MaxBlinkStrength = 255
	MaxESense        = 100
)

// ErrOutOfRange is wrapped by Validate when a field falls outside the range
// the connector documents.
var ErrOutOfRange = errors.New("field out of range")

var errNotObject = errors.New("line is not a JSON object")

// Packet is one decoded telemetry frame. Pointer fields are nil when the
// frame did not carry them, so a zero blink strength is distinguishable from
// a frame with no blink at all.
type Packet struct {
	PoorSignalLevel *int      `json:"poorSignalLevel,omitempty"`
	RawEEG          *int      `json:"rawEeg,omitempty"`
	BlinkStrength   *int      `json:"blinkStrength,omitempty"`
	ESense          *ESense   `json:"eSense,omitempty"`
	EEGPower        *EEGPower `json:"eegPower,omitempty"`

	// Status is "scanning" or "notscanning" while the connector is
	// searching for a headset.
	Status string `json:"status,omitempty"`
}

// ESense holds the connector's 0-100 attention and meditation metrics. It is
// only present on the roughly 1 Hz summary frames.
type ESense struct {
	Attention  int `json:"attention"`
	Meditation int `json:"meditation"`
}

// EEGPower holds the eight band-power estimates that accompany eSense.
type EEGPower struct {
	Delta     uint32 `json:"delta"`
	Theta     uint32 `json:"theta"`
	LowAlpha  uint32 `json:"lowAlpha"`
	HighAlpha uint32 `json:"highAlpha"`
	LowBeta   uint32 `json:"lowBeta"`
	HighBeta  uint32 `json:"highBeta"`
	LowGamma  uint32 `json:"lowGamma"`
	HighGamma uint32 `json:"highGamma"`
}

// Raw returns the raw sample and whether the frame carried one.
func (p Packet) Raw() (int, bool) {
	if p.RawEEG == nil {
		return 0, false
	}
	return *p.RawEEG, true
}

// Blink returns the blink strength and whether the frame carried one.
func (p Packet) Blink() (int, bool) {
	if p.BlinkStrength == nil {
		return 0, false
	}
	return *p.BlinkStrength, true
}

// SignalLevel returns the poor-signal level and whether the frame carried one.
func (p Packet) SignalLevel() (int, bool) {
	if p.PoorSignalLevel == nil {
		return 0, false
	}
	return *p.PoorSignalLevel, true
}

// IsSummary reports whether this is an eSense summary frame.
func (p Packet) IsSummary() bool {
	return p.ESense != nil
}

// Validate checks every present field against its documented range.
func (p Packet) Validate() error {
	if v, ok := p.SignalLevel(); ok && (v < 0 || v > MaxPoorSignal) {
		return fmt.Errorf("poorSignalLevel %d: %w", v, ErrOutOfRange)
	}
	if v, ok := p.Blink(); ok && (v < 0 || v > MaxBlinkStrength) {
		return fmt.Errorf("blinkStrength %d: %w", v, ErrOutOfRange)
	}
	if p.ESense != nil {
		if v := p.ESense.Attention; v < 0 || v > MaxESense {
			return fmt.Errorf("attention %d: %w", v, ErrOutOfRange)
		}
		if v := p.ESense.Meditation; v < 0 || v > MaxESense {
			return fmt.Errorf("meditation %d: %w", v, ErrOutOfRange)
		}
	}
	return nil
}

// DecodeError reports a line that could not be turned into a Packet.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "packet: decode: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one wire line. Unknown fields are ignored. A line that is
// not a JSON object, or that carries an out-of-range value, yields a
// *DecodeError.
func Decode(line []byte) (Packet, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Packet{}, &DecodeError{Err: errNotObject}
	}
	var p Packet
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Packet{}, &DecodeError{Err: err}
	}
	if err := p.Validate(); err != nil {
		return Packet{}, &DecodeError{Err: err}
	}
	return p, nil
}

// Encode renders p as a single newline-terminated wire line.
func Encode(p Packet) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Int returns a pointer to v, for building packets in literals.
func Int(v int) *int { return &v }
