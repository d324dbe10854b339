// Package lfo provides low-frequency oscillators for vibrato, tremolo and
// modulated delays.
package lfo

import "math"

type Shape int

const (
	Sine Shape = iota
	Triangle
)

// LFO produces one modulation value per sample in [-depth, +depth].
// The zero value is silent.
type LFO struct {
	shape Shape
	depth float64
	step  float64 // phase increment per sample
	phase float64 // [0, 1)
	delay int     // samples to hold at zero before starting
	held  int
}

// New returns an LFO running at rateHz for a stream at sampleRate.
func New(sampleRate int, shape Shape, rateHz, depth float64) LFO {
	l := LFO{shape: shape, depth: depth}
	if sampleRate > 0 && rateHz > 0 {
		l.step = rateHz / float64(sampleRate)
	}
	return l
}

// WithDelay holds the LFO at zero for the first seconds after a Reset, so
// vibrato fades in after the attack.
func (l LFO) WithDelay(sampleRate int, seconds float64) LFO {
	l.delay = int(seconds * float64(sampleRate))
	return l
}

// WithPhase starts the LFO part way through its cycle.
func (l LFO) WithPhase(phase float64) LFO {
	l.phase = phase - math.Floor(phase)
	return l
}

func (l *LFO) Active() bool { return l.depth != 0 && l.step != 0 }

// Next advances one sample.
func (l *LFO) Next() float64 {
	if !l.Active() {
		return 0
	}
	if l.held < l.delay {
		l.held++
		return 0
	}
	var v float64
	switch l.shape {
	case Triangle:
		v = 1 - 4*math.Abs(l.phase-0.5)
	default:
		v = math.Sin(2 * math.Pi * l.phase)
	}
	l.phase += l.step
	if l.phase >= 1 {
		l.phase -= math.Floor(l.phase)
	}
	return v * l.depth
}

// Reset restarts the delay and the cycle.
func (l *LFO) Reset() {
	l.phase = 0
	l.held = 0
}
