package synth

import (
	"math"

	"github.com/cbegin/webdaw-go/internal/lfo"
)

const twoPi = math.Pi * 2

type stage int

const (
	stageAttack stage = iota
	stageDecay
	stageSustain
	stageRelease
	stageOff
)

// drum pads of the Kit waveform, split by the pitch they are written at
// (C3 kick, D3 snare, E3 hi-hat).
type pad int

const (
	kick pad = iota
	snare
	hat
)

func padFor(freq float64) pad {
	switch {
	case freq < 138.6:
		return kick
	case freq < 155.6:
		return snare
	}
	return hat
}

type note struct {
	active   bool
	id       uint64
	age      int64
	pitch    float64 // requested frequency, before detune
	freq     float64
	velocity float64

	stage       stage
	level       float64
	releaseStep float64

	phase, subPhase, modPhase float64
	elapsed                   float64 // seconds since attack
	lfsr                      uint16
	lp, hp                    float64
	pad                       pad

	vibrato, tremolo lfo.LFO
}

func (n *note) start(p *Patch, sampleRate int, id uint64, freq, velocity float64) {
	lfsr := n.lfsr
	if lfsr == 0 {
		lfsr = 0xACE1
	}
	*n = note{
		active:   true,
		id:       id,
		pitch:    freq,
		freq:     freq * p.detuneRatio(),
		velocity: velocity,
		lfsr:     lfsr,
		pad:      padFor(freq),
	}
	if p.Vibrato.Depth != 0 {
		n.vibrato = lfo.New(sampleRate, lfo.Sine, p.Vibrato.Rate, p.Vibrato.Depth).
			WithDelay(sampleRate, p.Vibrato.Delay)
	}
	if p.Tremolo.Depth != 0 {
		n.tremolo = lfo.New(sampleRate, lfo.Sine, p.Tremolo.Rate, p.Tremolo.Depth).
			WithDelay(sampleRate, p.Tremolo.Delay)
	}
}

func (n *note) release(p *Patch, sr float64) {
	if !n.active || n.stage >= stageRelease {
		return
	}
	n.stage = stageRelease
	n.releaseStep = n.level / math.Max(1, p.Release*sr)
}

func (n *note) releasing() bool { return n.stage >= stageRelease }

func (n *note) envelope(p *Patch, sr float64) float64 {
	switch n.stage {
	case stageAttack:
		n.level += 1 / math.Max(1, p.Attack*sr)
		if n.level >= 1 {
			n.level = 1
			n.stage = stageDecay
		}
	case stageDecay:
		n.level -= (1 - p.Sustain) / math.Max(1, p.Decay*sr)
		if n.level <= p.Sustain {
			n.level = p.Sustain
			n.stage = stageSustain
		}
	case stageSustain:
		if p.Sustain <= 0 {
			n.stage = stageOff
		}
	case stageRelease:
		n.level -= n.releaseStep
		if n.level <= 0.0001 {
			n.stage = stageOff
		}
	}
	if n.stage == stageOff {
		n.level = 0
		n.active = false
	}
	return n.level
}

// next renders one mono sample.
func (n *note) next(p *Patch, sr, lpAlpha float64) float64 {
	env := n.envelope(p, sr)
	if !n.active {
		return 0
	}
	freq := n.freq
	if vib := n.vibrato.Next(); vib != 0 {
		freq *= math.Pow(2, vib/12)
	}
	dt := freq / sr
	var s float64
	switch p.Wave {
	case Sine:
		s = math.Sin(twoPi * n.phase)
	case Triangle:
		s = 2*math.Abs(2*n.phase-1) - 1
	case Saw:
		s = 2*n.phase - 1 - polyBLEP(n.phase, dt)
	case Pulse:
		duty := p.Duty
		if duty <= 0 || duty >= 1 {
			duty = 0.5
		}
		s = -1
		if n.phase < duty {
			s = 1
		}
		s += polyBLEP(n.phase, dt)
		s -= polyBLEP(math.Mod(n.phase-duty+1, 1), dt)
	case Noise:
		s = n.noise()
	case FM:
		mod := math.Sin(twoPi*n.modPhase) * p.FMIndex * env
		s = math.Sin(twoPi*n.phase + mod)
		n.modPhase = wrap(n.modPhase + dt*p.FMRatio)
	case Kit:
		s = n.drum(sr)
	}
	n.phase = wrap(n.phase + dt)
	if p.SubLevel > 0 {
		s += math.Sin(twoPi*n.subPhase) * p.SubLevel
		n.subPhase = wrap(n.subPhase + dt/2)
	}
	if lpAlpha > 0 {
		n.lp += lpAlpha * (s - n.lp)
		s = n.lp
	}
	amp := env * n.velocity
	if trem := n.tremolo.Next(); trem != 0 {
		amp *= 1 - p.Tremolo.Depth/2 + trem/2
	}
	n.elapsed += 1 / sr
	n.age++
	return s * amp
}

// drum renders the pad picked at attack time. Each pad decays on its own
// curve and ends the note when it has faded out.
func (n *note) drum(sr float64) float64 {
	t := n.elapsed
	var s, decay float64
	switch n.pad {
	case kick:
		f := 50 + 120*math.Exp(-t*35)
		n.subPhase = wrap(n.subPhase + f/sr)
		s = math.Sin(twoPi * n.subPhase)
		decay = 0.35
	case snare:
		s = 0.6*n.noise() + 0.4*math.Sin(twoPi*180*t)
		decay = 0.18
	case hat:
		x := n.noise()
		n.hp += 0.3 * (x - n.hp)
		s = (x - n.hp) * 0.7
		decay = 0.05
	}
	if t > decay*9 {
		n.stage = stageOff
	}
	return s * math.Exp(-t/decay)
}

func (n *note) noise() float64 {
	bit := (n.lfsr ^ (n.lfsr >> 1)) & 1
	n.lfsr = (n.lfsr >> 1) | (bit << 15)
	if n.lfsr&1 == 1 {
		return 1
	}
	return -1
}

// polyBLEP reduces aliasing at waveform discontinuities.
// t is the phase position [0,1), dt is the phase increment per sample.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func wrap(phase float64) float64 {
	if phase >= 1 {
		phase -= math.Floor(phase)
	}
	return phase
}

func onePoleAlpha(cutoff float64, sampleRate int) float64 {
	if cutoff <= 0 || cutoff >= float64(sampleRate)/2 {
		return 0
	}
	rc := 1 / (twoPi * cutoff)
	dt := 1 / float64(sampleRate)
	return dt / (rc + dt)
}
