package effects

import "math"

// Compressor is a stereo-linked peak compressor with a soft knee. Both
// channels get the same gain so the image does not shift.
type Compressor struct {
	thresholdDB float64
	ratio       float64
	kneeDB      float64
	attack      float64 // smoothing coefficients
	release     float64
	makeup      float32
	envDB       float64
}

const compressorKneeDB = 6

// NewCompressor builds a compressor. Times are in milliseconds; threshold
// and makeup are in dB.
func NewCompressor(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float32) *Compressor {
	sr := float64(sampleRate)
	coef := func(ms float32) float64 {
		if ms <= 0 {
			return 0
		}
		return math.Exp(-1 / (float64(ms) * sr / 1000))
	}
	return &Compressor{
		thresholdDB: float64(thresholdDB),
		ratio:       math.Max(1, float64(ratio)),
		kneeDB:      compressorKneeDB,
		attack:      coef(attackMs),
		release:     coef(releaseMs),
		makeup:      float32(math.Pow(10, float64(makeupDB)/20)),
		envDB:       -120,
	}
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	peak := math.Max(math.Abs(float64(l)), math.Abs(float64(r)))
	level := -120.0
	if peak > 1e-6 {
		level = 20 * math.Log10(peak)
	}
	k := c.release
	if level > c.envDB {
		k = c.attack
	}
	c.envDB = level + k*(c.envDB-level)
	g := float32(math.Pow(10, c.reduction(c.envDB)/20)) * c.makeup
	return l * g, r * g
}

// reduction returns the gain change in dB (<= 0) for an input level.
func (c *Compressor) reduction(in float64) float64 {
	over := in - c.thresholdDB
	slope := 1/c.ratio - 1
	switch {
	case 2*over <= -c.kneeDB:
		return 0
	case 2*math.Abs(over) < c.kneeDB:
		x := over + c.kneeDB/2
		return slope * x * x / (2 * c.kneeDB)
	default:
		return slope * over
	}
}

// GainReductionDB reports the current gain reduction, for metering.
func (c *Compressor) GainReductionDB() float64 {
	return c.reduction(c.envDB)
}

func (c *Compressor) Reset() {
	c.envDB = -120
}
