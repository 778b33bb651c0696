package playback

import (
	"encoding/binary"
	"math"
)

// TransportState holds the user's transport controls. Setters take deltas
// and floor the result at zero. It performs no I/O and cannot fail.
type TransportState struct {
	paused bool
	speed  float64
	volume float64
	muted  bool

	onPause func(paused bool)
}

// NewTransportState returns playing state at speed 1 and full volume.
func NewTransportState() *TransportState {
	return &TransportState{speed: 1, volume: 1}
}

// TogglePause flips the paused flag.
func (t *TransportState) TogglePause() {
	t.paused = !t.paused
	if t.onPause != nil {
		t.onPause(t.paused)
	}
}

// SetSpeed adds delta to the speed multiplier. Speed never goes below 0.
func (t *TransportState) SetSpeed(delta float64) {
	t.speed = clampNonNegative(t.speed + delta)
}

// SetVolume adds delta to the volume. Volume never goes below 0.
func (t *TransportState) SetVolume(delta float64) {
	t.volume = clampNonNegative(t.volume + delta)
}

// ToggleMute flips the muted flag.
func (t *TransportState) ToggleMute() { t.muted = !t.muted }

// Paused reports whether playback is paused.
func (t *TransportState) Paused() bool { return t.paused }

// Speed returns the playback speed multiplier.
func (t *TransportState) Speed() float64 { return t.speed }

// Volume returns the volume, independent of mute.
func (t *TransportState) Volume() float64 { return t.volume }

// Muted reports whether audio is muted.
func (t *TransportState) Muted() bool { return t.muted }

// EffectiveVolume is the gain a sink should apply: 0 when muted.
func (t *TransportState) EffectiveVolume() float64 {
	if t.muted {
		return 0
	}
	return t.volume
}

// Gain returns a copy of span scaled by EffectiveVolume, saturating at the
// int16 range. Sinks that apply volume themselves do not need it.
func (t *TransportState) Gain(span *AudioSpan) *AudioSpan {
	g := t.EffectiveVolume()
	out := make([]byte, len(span.data))
	if g != 0 {
		for i := 0; i+1 < len(span.data); i += 2 {
			v := float64(int16(binary.LittleEndian.Uint16(span.data[i:]))) * g
			binary.LittleEndian.PutUint16(out[i:], uint16(saturate16(v)))
		}
	}
	cp := *span
	cp.data = out
	return &cp
}

func clampNonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

func saturate16(v float64) int16 {
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}
