package audio

import (
	"sync"
	"sync/atomic"

	"github.com/cbegin/webdaw-go/internal/effects"
)

// Renderer adds its output to dst, an interleaved stereo buffer whose first
// frame is output frame start.
type Renderer interface {
	Render(dst []float32, start int64)
}

// Mixer sums registered renderers into one stereo stream. The number of
// frames it has produced is the output clock every voice schedules against.
type Mixer struct {
	sampleRate int
	frames     atomic.Int64

	mu        sync.Mutex
	renderers []Renderer
	scratch   []Renderer
	master    effects.Effector
	gain      float32
	tap       func([]float32)
}

type MixerOption func(*Mixer)

// WithMaster replaces the master bus processor (a limiting compressor by
// default). nil disables it.
func WithMaster(e effects.Effector) MixerOption {
	return func(m *Mixer) {
		m.master = e
	}
}

// WithTap installs a callback invoked with each mixed buffer. It runs on the
// audio thread.
func WithTap(tap func([]float32)) MixerOption {
	return func(m *Mixer) {
		m.tap = tap
	}
}

func NewMixer(sampleRate int, opts ...MixerOption) *Mixer {
	m := &Mixer{
		sampleRate: sampleRate,
		gain:       1,
		master:     effects.NewCompressor(sampleRate, -6, 4, 2, 120, 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mixer) SampleRate() int { return m.sampleRate }

// Frame is the index of the next frame to be rendered.
func (m *Mixer) Frame() int64 { return m.frames.Load() }

// Now is the output clock in seconds.
func (m *Mixer) Now() float64 {
	return float64(m.frames.Load()) / float64(m.sampleRate)
}

// FrameAt converts an output clock time to a frame index.
func (m *Mixer) FrameAt(seconds float64) int64 {
	return int64(seconds*float64(m.sampleRate) + 0.5)
}

func (m *Mixer) Add(r Renderer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renderers = append(m.renderers, r)
}

// Remove unregisters r. It reports whether r was registered.
func (m *Mixer) Remove(r Renderer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.renderers {
		if x == r {
			m.renderers = append(m.renderers[:i], m.renderers[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports how many renderers are registered.
func (m *Mixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.renderers)
}

// SetGain sets the master output gain.
func (m *Mixer) SetGain(g float32) {
	m.mu.Lock()
	m.gain = max(0, g)
	m.mu.Unlock()
}

// Process renders len(dst)/2 frames and advances the clock.
func (m *Mixer) Process(dst []float32) {
	clear(dst)
	m.mu.Lock()
	m.scratch = append(m.scratch[:0], m.renderers...)
	master, gain, tap := m.master, m.gain, m.tap
	m.mu.Unlock()

	start := m.frames.Load()
	for _, r := range m.scratch {
		r.Render(dst, start)
	}
	for i := 0; i+1 < len(dst); i += 2 {
		l, r := dst[i]*gain, dst[i+1]*gain
		if master != nil {
			l, r = master.Process(l, r)
		}
		dst[i], dst[i+1] = clamp(l), clamp(r)
	}
	if tap != nil {
		tap(dst)
	}
	m.frames.Add(int64(len(dst) / 2))
}

func clamp(v float32) float32 {
	return min(1, max(-1, v))
}
