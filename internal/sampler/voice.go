package sampler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"sync"

	"github.com/cbegin/webdaw-go/internal/audio"
	"github.com/cbegin/webdaw-go/internal/pitch"
)

var ErrNotLoaded = errors.New("sampler: samples not loaded")

const (
	// maxSounding caps how many hits play at once; queued hits that have not
	// started yet are never dropped.
	maxSounding = 32
	// releaseFade is the fade applied when a pitched note's duration ends.
	releaseFade = 0.3
	// stopFade is the fade applied by ReleaseAll.
	stopFade = 0.05
)

type hit struct {
	buf     *Buffer
	start   int64
	end     int64 // frame the release fade starts; <0 plays to the end
	pos     float64
	rate    float64
	gain    float64
	fade    float64 // per-frame fade step once fading
	level   float64
	fading  bool
	started bool
}

// Voice plays a sample set through the mixer. It is usable as soon as it is
// built; samples load in the background and Wait reports completion.
// Triggers that arrive before the samples are loaded are dropped.
type Voice struct {
	mixer *audio.Mixer
	set   Set
	log   *slog.Logger

	loaded chan struct{}
	bank   *Bank
	err    error

	mu       sync.Mutex
	hits     []hit
	disposed bool
}

type Option func(*Voice)

func WithLogger(l *slog.Logger) Option {
	return func(v *Voice) {
		if l != nil {
			v.log = l
		}
	}
}

// New builds a voice for set and starts loading it from fsys. Cancelling
// ctx abandons the load.
func New(ctx context.Context, m *audio.Mixer, fsys fs.FS, set Set, opts ...Option) *Voice {
	v := &Voice{
		mixer:  m,
		set:    set,
		log:    slog.New(slog.DiscardHandler),
		loaded: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	go func() {
		defer close(v.loaded)
		bank, err := Load(ctx, fsys, set)
		if err != nil {
			v.err = fmt.Errorf("%w: %w", ErrNotLoaded, err)
			v.log.Warn("sample set failed to load", "set", set.Name, "err", err)
			return
		}
		v.bank = bank
		v.log.Debug("sample set loaded", "set", set.Name, "buffers", len(v.bank.Buffers))
	}()
	m.Add(v)
	return v
}

func (v *Voice) Set() Set { return v.set }

// Wait blocks until the set has loaded or failed to.
func (v *Voice) Wait(ctx context.Context) error {
	select {
	case <-v.loaded:
		return v.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loaded reports whether the samples are ready to play.
func (v *Voice) Loaded() bool {
	select {
	case <-v.loaded:
		return v.err == nil
	default:
		return false
	}
}

// TriggerAttackRelease plays note at when for dur seconds at a linear gain.
// Kit hits ignore dur and play to the end of their sample.
func (v *Voice) TriggerAttackRelease(note string, dur, when, gain float64) {
	if !v.Loaded() {
		v.log.Debug("trigger before load dropped", "set", v.set.Name, "note", note)
		return
	}
	midi, err := pitch.Parse(note)
	if err != nil {
		v.log.Debug("unplayable note", "set", v.set.Name, "note", note, "err", err)
		return
	}
	buf, offset := v.bank.nearest(midi)
	if buf == nil {
		return
	}
	h := hit{
		buf:   buf,
		start: v.mixer.FrameAt(when),
		end:   -1,
		gain:  max(0, gain),
		level: 1,
		rate:  float64(buf.SampleRate) / float64(v.mixer.SampleRate()),
	}
	if !v.set.Kit {
		h.rate *= math.Pow(2, float64(offset)/12)
		h.end = v.mixer.FrameAt(when + math.Max(0, dur))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	v.hits = append(v.hits, h)
}

// ReleaseAll fades out every sounding hit and drops the ones that have not
// started yet.
func (v *Voice) ReleaseAll() {
	now := v.mixer.Frame()
	step := 1 / (stopFade * float64(v.mixer.SampleRate()))
	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.hits[:0]
	for _, h := range v.hits {
		if h.start >= now && !h.started {
			continue
		}
		if !h.fading || h.fade < step {
			h.fading, h.fade = true, step
		}
		kept = append(kept, h)
	}
	v.hits = kept
}

// Dispose unregisters the voice and drops its hits.
func (v *Voice) Dispose() {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.disposed = true
	v.hits = nil
	v.mu.Unlock()
	v.mixer.Remove(v)
}

// Hits reports how many hits are queued or sounding.
func (v *Voice) Hits() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.hits)
}

func (v *Voice) Render(dst []float32, start int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed || len(v.hits) == 0 {
		return
	}
	fadeStep := 1 / (releaseFade * float64(v.mixer.SampleRate()))
	frames := int64(len(dst) / 2)
	kept := v.hits[:0]
	for _, h := range v.hits {
		if h.render(dst, start, frames, fadeStep) {
			kept = append(kept, h)
		}
	}
	clear(v.hits[len(kept):])
	v.hits = kept
	v.steal()
}

// steal fades the oldest sounding hits while more than maxSounding play.
func (v *Voice) steal() {
	step := 1 / (stopFade * float64(v.mixer.SampleRate()))
	for {
		sounding, oldest := 0, -1
		for i := range v.hits {
			h := &v.hits[i]
			if !h.started || h.fading {
				continue
			}
			sounding++
			if oldest < 0 || h.start < v.hits[oldest].start {
				oldest = i
			}
		}
		if sounding <= maxSounding {
			return
		}
		v.hits[oldest].fading, v.hits[oldest].fade = true, step
	}
}

// render adds the hit into dst and reports whether it is still alive.
func (h *hit) render(dst []float32, start, frames int64, fadeStep float64) bool {
	data := h.buf.Data
	first := max(0, h.start-start)
	if first >= frames {
		return true
	}
	h.started = true
	for f := first; f < frames; f++ {
		if h.end >= 0 && start+f >= h.end && !h.fading {
			h.fading, h.fade = true, fadeStep
		}
		if h.fading {
			h.level -= h.fade
			if h.level <= 0 {
				return false
			}
		}
		i := int(h.pos)
		if i+1 >= len(data) {
			return false
		}
		frac := float32(h.pos - float64(i))
		s := (data[i]*(1-frac) + data[i+1]*frac) * float32(h.gain*h.level)
		dst[2*f] += s
		dst[2*f+1] += s
		h.pos += h.rate
	}
	return true
}
