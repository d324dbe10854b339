// Package effects holds the stereo processors used on instrument voices and
// on the master bus.
package effects

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies effects in order. An empty chain passes audio through.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	c := &Chain{}
	for _, e := range effects {
		c.Add(e)
	}
	return c
}

// Add appends e; nil effects are ignored so optional stages can be passed
// straight through.
func (c *Chain) Add(e Effector) {
	if e != nil {
		c.effects = append(c.effects, e)
	}
}

func (c *Chain) Len() int { return len(c.effects) }

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func clamp(v, lo, hi float32) float32 {
	return min(hi, max(lo, v))
}
