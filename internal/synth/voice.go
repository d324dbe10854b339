package synth

import (
	"math"
	"sort"
	"sync"

	"github.com/cbegin/webdaw-go/internal/audio"
	"github.com/cbegin/webdaw-go/internal/effects"
)

type eventKind int

const (
	eventAttack eventKind = iota
	eventRelease
)

type event struct {
	frame    int64
	kind     eventKind
	id       uint64 // note id; zero on a release matches by freq
	freq     float64
	velocity float64
}

// Voice is one polyphonic instrument voice. It registers itself with the
// mixer on construction and stays there until Dispose.
type Voice struct {
	mixer      *audio.Mixer
	patch      Patch
	sampleRate float64
	lpAlpha    float64

	mu       sync.Mutex
	events   []event
	notes    []note
	nextID   uint64
	fx       *effects.Chain
	disposed bool

	gain       float64
	gainTarget float64
	gainStep   float64
	gainFrames int64
}

// New builds a voice playing p and registers it with m.
func New(m *audio.Mixer, p Patch) *Voice {
	if p.Polyphony <= 0 {
		p.Polyphony = 8
	}
	sr := m.SampleRate()
	v := &Voice{
		mixer:      m,
		patch:      p,
		sampleRate: float64(sr),
		lpAlpha:    onePoleAlpha(p.Cutoff, sr),
		notes:      make([]note, p.Polyphony),
		fx:         effects.NewChain(),
		gain:       1,
		gainTarget: 1,
	}
	if p.Distortion > 0 {
		v.fx.Add(effects.NewDistortion(sr, float32(p.Distortion), 0.6, 0.5))
	}
	if p.Chorus > 0 {
		v.fx.Add(effects.NewChorus(sr, 18, 4, 0.8, float32(p.Chorus)))
	}
	if p.Reverb > 0 {
		v.fx.Add(effects.NewReverb(sr, 0.7, 0.4, float32(p.Reverb)))
	}
	m.Add(v)
	return v
}

func (v *Voice) Patch() Patch { return v.patch }

// TriggerAttackRelease plays freq for dur seconds starting at when, both on
// the output clock.
func (v *Voice) TriggerAttackRelease(freq, dur, when float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	v.nextID++
	id := v.nextID
	v.schedule(event{frame: v.mixer.FrameAt(when), kind: eventAttack, id: id, freq: freq, velocity: 1})
	v.schedule(event{frame: v.mixer.FrameAt(when + math.Max(0, dur)), kind: eventRelease, id: id})
}

func (v *Voice) TriggerAttack(freq, when, velocity float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	v.nextID++
	v.schedule(event{
		frame:    v.mixer.FrameAt(when),
		kind:     eventAttack,
		id:       v.nextID,
		freq:     freq,
		velocity: max(0, min(1, velocity)),
	})
}

// TriggerRelease releases the oldest held note at freq.
func (v *Voice) TriggerRelease(freq, when float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	v.schedule(event{frame: v.mixer.FrameAt(when), kind: eventRelease, freq: freq})
}

// schedule inserts e after every event at or before its frame, so events at
// the same frame apply in the order they were scheduled.
func (v *Voice) schedule(e event) {
	i := sort.Search(len(v.events), func(i int) bool { return v.events[i].frame > e.frame })
	v.events = append(v.events, event{})
	copy(v.events[i+1:], v.events[i:])
	v.events[i] = e
}

// RampGain moves the output gain to db over seconds. Levels at or below
// -100 dB are silence.
func (v *Voice) RampGain(db, seconds float64) {
	target := 0.0
	if db > -100 {
		target = math.Pow(10, db/20)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	frames := int64(seconds * v.sampleRate)
	v.gainTarget = target
	if frames <= 0 {
		v.gain, v.gainFrames, v.gainStep = target, 0, 0
		return
	}
	v.gainFrames = frames
	v.gainStep = (target - v.gain) / float64(frames)
}

// Gain is the current output gain, linear.
func (v *Voice) Gain() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gain
}

// ReleaseAll moves every sounding note into its release. Notes scheduled
// for later are left queued.
func (v *Voice) ReleaseAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.notes {
		v.notes[i].release(&v.patch, v.sampleRate)
	}
}

// Dispose drops every note and queued event and unregisters the voice. A
// disposed voice ignores further triggers.
func (v *Voice) Dispose() {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.disposed = true
	v.events = nil
	clear(v.notes)
	v.mu.Unlock()
	v.mixer.Remove(v)
}

// Pending reports how many events are queued.
func (v *Voice) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.events)
}

// Active reports how many notes are sounding, releases included.
func (v *Voice) Active() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for i := range v.notes {
		if v.notes[i].active {
			n++
		}
	}
	return n
}

// Render adds the voice's output for the frames starting at start. Events
// that fell behind the stream are applied at the first frame.
func (v *Voice) Render(dst []float32, start int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	p := &v.patch
	for i := 0; i+1 < len(dst); i += 2 {
		frame := start + int64(i/2)
		for len(v.events) > 0 && v.events[0].frame <= frame {
			v.apply(v.events[0])
			v.events = v.events[1:]
		}
		var s float64
		for j := range v.notes {
			if v.notes[j].active {
				s += v.notes[j].next(p, v.sampleRate, v.lpAlpha)
			}
		}
		if v.gainFrames > 0 {
			v.gain += v.gainStep
			if v.gainFrames--; v.gainFrames == 0 {
				v.gain = v.gainTarget
			}
		}
		out := float32(s * p.Gain * v.gain)
		l, r := v.fx.Process(out, out)
		dst[i] += l
		dst[i+1] += r
	}
	if len(v.events) == 0 {
		v.events = nil
	}
}

func (v *Voice) apply(e event) {
	switch e.kind {
	case eventAttack:
		slot := v.steal()
		v.notes[slot].start(&v.patch, int(v.sampleRate), e.id, e.freq, e.velocity)
	case eventRelease:
		if n := v.find(e); n != nil {
			n.release(&v.patch, v.sampleRate)
		}
	}
}

func (v *Voice) find(e event) *note {
	var found *note
	for i := range v.notes {
		n := &v.notes[i]
		if !n.active || n.releasing() {
			continue
		}
		if e.id != 0 {
			if n.id == e.id {
				return n
			}
			continue
		}
		if math.Abs(n.pitch-e.freq) < 1e-6 && (found == nil || n.age > found.age) {
			found = n
		}
	}
	return found
}

// steal picks a slot for a new note: a free one, else the oldest releasing
// note, else the oldest note.
func (v *Voice) steal() int {
	for i := range v.notes {
		if !v.notes[i].active {
			return i
		}
	}
	oldestRelease, oldestActive := -1, 0
	for i := range v.notes {
		n := &v.notes[i]
		if n.releasing() && (oldestRelease < 0 || n.age > v.notes[oldestRelease].age) {
			oldestRelease = i
		}
		if n.age > v.notes[oldestActive].age {
			oldestActive = i
		}
	}
	if oldestRelease >= 0 {
		return oldestRelease
	}
	return oldestActive
}
