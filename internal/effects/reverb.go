package effects

// Reverb is a small Freeverb-style room: parallel damped combs per channel
// feeding series allpasses. The right channel's delay lines are offset to
// decorrelate the tail.
type Reverb struct {
	left, right reverbChannel
	wet         float32
	dry         float32
}

type reverbChannel struct {
	combs   [4]dampedComb
	allpass [2]allpass
}

type dampedComb struct {
	buf      []float32
	pos      int
	feedback float32
	damp     float32
	store    float32
}

type allpass struct {
	buf []float32
	pos int
}

// Comb and allpass lengths at 44.1 kHz, from the Freeverb tuning.
var (
	combTuning    = [4]int{1116, 1188, 1277, 1356}
	allpassTuning = [2]int{556, 441}
)

const stereoSpread = 23

// NewReverb builds a reverb. roomSize and damping are 0..1; wet is the
// send level 0..1 and the dry signal is kept at unity minus half the wet.
func NewReverb(sampleRate int, roomSize, damping, wet float32) *Reverb {
	scale := float32(sampleRate) / 44100
	fb := 0.7 + 0.28*clamp(roomSize, 0, 1)
	damp := 0.4 * clamp(damping, 0, 1)
	r := &Reverb{}
	r.SetWet(wet)
	r.left.init(scale, 0, fb, damp)
	r.right.init(scale, stereoSpread, fb, damp)
	return r
}

func (c *reverbChannel) init(scale float32, spread int, fb, damp float32) {
	for i := range c.combs {
		n := max(1, int(float32(combTuning[i]+spread)*scale))
		c.combs[i] = dampedComb{buf: make([]float32, n), feedback: fb, damp: damp}
	}
	for i := range c.allpass {
		n := max(1, int(float32(allpassTuning[i]+spread)*scale))
		c.allpass[i] = allpass{buf: make([]float32, n)}
	}
}

// SetWet changes the send level.
func (r *Reverb) SetWet(wet float32) {
	r.wet = clamp(wet, 0, 1)
	r.dry = 1 - r.wet*0.5
}

func (r *Reverb) Wet() float32 { return r.wet }

func (r *Reverb) Process(l, rr float32) (float32, float32) {
	if r.wet == 0 {
		return l, rr
	}
	in := (l + rr) * 0.015
	ol := r.left.process(in)
	or := r.right.process(in)
	return l*r.dry + ol*r.wet, rr*r.dry + or*r.wet
}

func (c *reverbChannel) process(in float32) float32 {
	var out float32
	for i := range c.combs {
		out += c.combs[i].process(in)
	}
	for i := range c.allpass {
		out = c.allpass[i].process(out)
	}
	return out
}

func (c *dampedComb) process(in float32) float32 {
	out := c.buf[c.pos]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = in + c.store*c.feedback
	if c.pos++; c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (a *allpass) process(in float32) float32 {
	buffered := a.buf[a.pos]
	a.buf[a.pos] = in + buffered*0.5
	if a.pos++; a.pos >= len(a.buf) {
		a.pos = 0
	}
	return buffered - in
}

func (r *Reverb) Reset() {
	for _, c := range []*reverbChannel{&r.left, &r.right} {
		for i := range c.combs {
			clear(c.combs[i].buf)
			c.combs[i].pos = 0
			c.combs[i].store = 0
		}
		for i := range c.allpass {
			clear(c.allpass[i].buf)
			c.allpass[i].pos = 0
		}
	}
}
