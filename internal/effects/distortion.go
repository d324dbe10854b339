package effects

import "math"

// Distortion is an overdrive: gain into an asymmetric soft clipper, then a
// one-pole tone filter and an output level.
type Distortion struct {
	drive float32
	level float32
	alpha float32
	lpL   float32
	lpR   float32
}

// NewDistortion builds an overdrive. drive is 0..1 (mapped to 1x..40x gain),
// tone 0..1 sweeps the filter from 800 Hz to 12 kHz, level is output gain.
func NewDistortion(sampleRate int, drive, tone, level float32) *Distortion {
	cutoff := 800 + 11200*float64(clamp(tone, 0, 1))
	cutoff = math.Min(cutoff, float64(sampleRate)*0.45)
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / float64(sampleRate)
	return &Distortion{
		drive: 1 + 39*clamp(drive, 0, 1),
		level: level,
		alpha: float32(dt / (rc + dt)),
	}
}

func (d *Distortion) Process(l, r float32) (float32, float32) {
	l = shape(l * d.drive)
	r = shape(r * d.drive)
	d.lpL += d.alpha * (l - d.lpL)
	d.lpR += d.alpha * (r - d.lpR)
	return d.lpL * d.level, d.lpR * d.level
}

// shape clips positive swings harder than negative ones, which adds even
// harmonics.
func shape(x float32) float32 {
	if x >= 0 {
		return float32(math.Tanh(float64(x)))
	}
	return float32(math.Tanh(float64(x)*0.7) * 0.85)
}

func (d *Distortion) Reset() {
	d.lpL, d.lpR = 0, 0
}
