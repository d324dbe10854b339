// Package synth renders the continuous-synthesis instrument voices. Each
// voice is a small polyphonic engine registered with the output mixer; notes
// are queued against output frames and played back as the mixer pulls audio.
package synth

import (
	"math"

	"github.com/cbegin/webdaw-go/internal/song"
)

// Waveform selects the oscillator of a patch.
type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Saw
	Pulse
	Noise
	// FM is a two-operator sine pair, modulator into carrier.
	FM
	// Kit maps the note frequency to a kick, snare or hi-hat generator.
	Kit
)

// Modulation is an LFO setting. Depth is in semitones for vibrato and a
// 0..1 amplitude fraction for tremolo.
type Modulation struct {
	Rate  float64
	Depth float64
	Delay float64 // seconds after the attack before the LFO starts
}

// Patch describes one instrument family.
type Patch struct {
	Wave     Waveform
	Duty     float64 // pulse width, 0..1
	SubLevel float64 // sine one octave down, mixed in
	FMRatio  float64 // modulator frequency / carrier frequency
	FMIndex  float64 // peak modulation index, scaled by the envelope

	Attack, Decay, Sustain, Release float64 // seconds, except Sustain 0..1

	Cutoff    float64 // per-note lowpass in Hz, 0 disables
	Polyphony int
	Gain      float64
	Detune    float64 // cents

	Vibrato Modulation
	Tremolo Modulation

	Reverb     float64 // wet 0..1
	Chorus     float64 // wet 0..1
	Distortion float64 // drive 0..1, 0 disables
}

var patches = map[song.InstrumentType]Patch{
	song.Synth: {
		Wave: Saw, Attack: 0.005, Decay: 0.2, Sustain: 0.6, Release: 0.3,
		Cutoff: 6000, Polyphony: 8, Gain: 0.3,
	},
	song.Pad: {
		Wave: Sine, SubLevel: 0.2, Attack: 0.6, Decay: 0.5, Sustain: 0.8, Release: 1.5,
		Polyphony: 8, Gain: 0.35,
		Vibrato: Modulation{Rate: 5, Depth: 0.1, Delay: 0.3},
		Reverb:  0.35,
	},
	song.Bass: {
		Wave: Triangle, SubLevel: 0.5, Attack: 0.005, Decay: 0.15, Sustain: 0.8, Release: 0.15,
		Cutoff: 2000, Polyphony: 4, Gain: 0.5,
	},
	song.Drum: {
		Wave: Kit, Attack: 0.001, Sustain: 1, Release: 0.05,
		Polyphony: 8, Gain: 0.6,
	},
	song.Piano: {
		Wave: FM, FMRatio: 1, FMIndex: 1.4, Attack: 0.002, Decay: 1.5, Sustain: 0.1, Release: 0.4,
		Polyphony: 12, Gain: 0.35,
	},
	song.ElectricPiano: {
		Wave: FM, FMRatio: 1, FMIndex: 2.2, Attack: 0.002, Decay: 1.2, Sustain: 0.25, Release: 0.5,
		Polyphony: 12, Gain: 0.35,
		Tremolo: Modulation{Rate: 4, Depth: 0.2},
	},
	song.Guitar: {
		Wave: Pulse, Duty: 0.3, Attack: 0.002, Decay: 1.0, Sustain: 0, Release: 0.2,
		Cutoff: 3500, Polyphony: 6, Gain: 0.3,
	},
	song.Strings: {
		Wave: Saw, Attack: 0.25, Decay: 0.3, Sustain: 0.85, Release: 0.6,
		Cutoff: 5000, Polyphony: 8, Gain: 0.25,
		Chorus: 0.5,
	},
	song.DistortionGuitar: {
		Wave: Saw, Attack: 0.005, Decay: 0.3, Sustain: 0.7, Release: 0.2,
		Cutoff: 4000, Polyphony: 6, Gain: 0.3,
		Distortion: 0.7,
	},
	song.Trombone: {
		Wave: Saw, Attack: 0.06, Decay: 0.2, Sustain: 0.75, Release: 0.2,
		Cutoff: 1500, Polyphony: 4, Gain: 0.35,
		Vibrato: Modulation{Rate: 5, Depth: 0.05, Delay: 0.25},
	},
	song.Choir: {
		Wave: Triangle, Attack: 0.35, Decay: 0.3, Sustain: 0.8, Release: 0.8,
		Polyphony: 8, Gain: 0.3,
		Vibrato: Modulation{Rate: 5.5, Depth: 0.12, Delay: 0.2},
		Chorus:  0.4,
		Reverb:  0.3,
	},
}

// PatchFor returns the patch of an instrument family. Unknown families get
// the synth lead.
func PatchFor(t song.InstrumentType) Patch {
	if p, ok := patches[t]; ok {
		return p
	}
	return patches[song.Synth]
}

// Tuned applies the per-instrument settings: detune in cents (-100..100),
// decay 0..100 scaling the release (50 leaves it unchanged) and a reverb
// send 0..100 that overrides the patch's own when non-zero.
func (p Patch) Tuned(detune, decay, reverb int) Patch {
	p.Detune = float64(max(-100, min(100, detune)))
	d := float64(max(0, min(100, decay)))
	p.Release *= 0.2 + 1.6*d/100
	if reverb > 0 {
		p.Reverb = float64(min(100, reverb)) / 100
	}
	return p
}

func (p Patch) detuneRatio() float64 {
	if p.Detune == 0 {
		return 1
	}
	return math.Pow(2, p.Detune/1200)
}
