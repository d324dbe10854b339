package effects

import "github.com/cbegin/webdaw-go/internal/lfo"

// Chorus is a stereo modulated delay. The two channels are swept a quarter
// cycle apart, which widens string and pad voices.
type Chorus struct {
	bufL, bufR []float32
	pos        int
	base       float32 // centre delay in samples
	modL, modR lfo.LFO
	wet        float32
}

// NewChorus builds a chorus with a centre delay and sweep depth in
// milliseconds, a sweep rate in Hz and a wet mix 0..1.
func NewChorus(sampleRate int, delayMs, depthMs, rateHz, wet float32) *Chorus {
	base := delayMs * float32(sampleRate) / 1000
	depth := depthMs * float32(sampleRate) / 1000
	depth = min(depth, base-1)
	size := int(base+depth) + 3
	mod := lfo.New(sampleRate, lfo.Sine, float64(rateHz), float64(max(0, depth)))
	return &Chorus{
		bufL: make([]float32, size),
		bufR: make([]float32, size),
		base: base,
		modL: mod,
		modR: mod.WithPhase(0.25),
		wet:  clamp(wet, 0, 1),
	}
}

func (c *Chorus) Process(l, r float32) (float32, float32) {
	c.bufL[c.pos] = l
	c.bufR[c.pos] = r
	dl := c.read(c.bufL, c.base+float32(c.modL.Next()))
	dr := c.read(c.bufR, c.base+float32(c.modR.Next()))
	if c.pos++; c.pos >= len(c.bufL) {
		c.pos = 0
	}
	dry := 1 - c.wet
	return l*dry + dl*c.wet, r*dry + dr*c.wet
}

// read returns the sample delay frames behind the write head, linearly
// interpolated.
func (c *Chorus) read(buf []float32, delay float32) float32 {
	n := float32(len(buf))
	p := float32(c.pos) - delay
	for p < 0 {
		p += n
	}
	i := int(p)
	frac := p - float32(i)
	j := i + 1
	if j >= len(buf) {
		j = 0
	}
	return buf[i]*(1-frac) + buf[j]*frac
}

func (c *Chorus) Reset() {
	clear(c.bufL)
	clear(c.bufR)
	c.pos = 0
	c.modL.Reset()
	c.modR.Reset()
	c.modR = c.modR.WithPhase(0.25)
}
