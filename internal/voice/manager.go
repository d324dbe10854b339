package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cbegin/webdaw-go/internal/pitch"
	"github.com/cbegin/webdaw-go/internal/session"
)

var (
	ErrNoProvider       = errors.New("voice: no provider configured")
	ErrAudioUnavailable = errors.New("voice: audio output unavailable")
	ErrInvalidVoice     = errors.New("voice: provider returned an invalid voice")
)

// AuditionDuration is how long a sampler rings for a NoteOn.
const AuditionDuration = 1.0

type entry struct {
	voice Voice
	req   Request
}

// Manager maps instrument ids to live voices. All cache mutation goes
// through its methods; there is exactly one voice per id at any time.
type Manager struct {
	provider Provider
	output   Output
	gate     *session.Gate
	log      *slog.Logger

	mu     sync.Mutex
	voices map[string]*entry
	ready  bool

	builds  singleflight.Group
	resumes singleflight.Group
}

type Option func(*Manager)

// WithGate shares a session gate with the scheduler.
func WithGate(g *session.Gate) Option {
	return func(m *Manager) {
		m.gate = g
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func NewManager(p Provider, out Output, opts ...Option) *Manager {
	m := &Manager{
		provider: p,
		output:   out,
		voices:   make(map[string]*entry),
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.gate == nil {
		m.gate = &session.Gate{}
	}
	return m
}

func (m *Manager) Gate() *session.Gate { return m.gate }

// Now reads the output clock; without an output the clock stays at zero.
func (m *Manager) Now() float64 {
	if m.output == nil {
		return 0
	}
	return m.output.Now()
}

// EnsureAudioReady brings the output online once. Concurrent callers share
// the first caller's Resume and all observe its result.
func (m *Manager) EnsureAudioReady(ctx context.Context) error {
	if m.isReady() {
		return nil
	}
	if m.output == nil {
		return ErrAudioUnavailable
	}
	ch := m.resumes.DoChan("resume", func() (any, error) {
		if m.isReady() {
			return nil, nil
		}
		if err := m.output.Resume(context.WithoutCancel(ctx)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAudioUnavailable, err)
		}
		m.mu.Lock()
		m.ready = true
		m.mu.Unlock()
		m.log.Debug("audio output ready")
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) isReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// GetOrCreate returns the cached voice for req.ID, building it on first use.
// Concurrent calls for the same unseen id share one construction.
func (m *Manager) GetOrCreate(ctx context.Context, req Request) (Voice, error) {
	if v, ok := m.Voice(req.ID); ok {
		return v, nil
	}
	if m.provider == nil {
		return Voice{}, ErrNoProvider
	}
	ch := m.builds.DoChan(req.ID, func() (any, error) {
		// A build for this id may have finished between the cache miss and
		// joining the flight.
		if v, ok := m.Voice(req.ID); ok {
			return v, nil
		}
		v, err := m.provider.NewVoice(context.WithoutCancel(ctx), req)
		if err != nil {
			return nil, fmt.Errorf("build voice %s (%s): %w", req.ID, req.Type, err)
		}
		if !v.valid() {
			return nil, fmt.Errorf("%w: %s (%s)", ErrInvalidVoice, req.ID, req.Type)
		}
		m.mu.Lock()
		m.voices[req.ID] = &entry{voice: v, req: req}
		m.mu.Unlock()
		m.log.Debug("voice created", "id", req.ID, "type", string(req.Type), "kind", v.Kind.String())
		return v, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Voice{}, res.Err
		}
		return res.Val.(Voice), nil
	case <-ctx.Done():
		return Voice{}, ctx.Err()
	}
}

// Preload makes sure every listed voice is cached and fully loaded. Cached
// ids are not rebuilt, but their loading is still awaited. A voice whose
// loading fails is evicted so a later Preload can retry it.
func (m *Manager) Preload(ctx context.Context, reqs []Request) error {
	g, ctx := errgroup.WithContext(ctx)
	seen := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		if _, dup := seen[req.ID]; dup {
			continue
		}
		seen[req.ID] = struct{}{}
		g.Go(func() error {
			v, err := m.GetOrCreate(ctx, req)
			if err != nil {
				return err
			}
			if err := v.Wait(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					// a voice that failed to load is rebuilt on the next call
					m.Forget(req.ID)
				}
				return fmt.Errorf("load voice %s: %w", req.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// SetVolume applies an instrument volume to a synth voice: the family
// correction, a dB conversion and a short gain ramp. Sampler gain is applied
// per trigger instead, so samplers are left alone.
func (m *Manager) SetVolume(id string, linear float64) {
	e, ok := m.lookup(id)
	if !ok {
		m.log.Debug("set volume: no voice", "id", id)
		return
	}
	if e.voice.Kind != KindSynth {
		return
	}
	e.voice.Synth.RampGain(VolumeDB(e.req.Type, linear), GainRamp.Seconds())
}

// Trigger schedules one note. It never blocks and reports whether the note
// was handed to a voice. Notes at or after an active stop timestamp are
// dropped, as are notes for ids without a cached voice.
func (m *Manager) Trigger(id string, p Pitch, when, dur, linear float64) bool {
	if !m.gate.Allows(when) {
		return false
	}
	e, ok := m.lookup(id)
	if !ok {
		m.log.Debug("trigger dropped: no voice", "id", id, "when", when)
		return false
	}
	gain := CorrectedGain(e.req.Type, linear)
	dur = max(dur, MinDuration)
	switch e.voice.Kind {
	case KindSampler:
		name, err := samplerNote(p)
		if err != nil {
			m.log.Debug("trigger dropped: bad pitch", "id", id, "err", err)
			return false
		}
		e.voice.Sampler.TriggerAttackRelease(name, dur, when, gain)
	case KindSynth:
		freq, err := synthFreq(p)
		if err != nil {
			m.log.Debug("trigger dropped: bad pitch", "id", id, "err", err)
			return false
		}
		e.voice.Synth.TriggerAttackRelease(freq, dur, when)
	default:
		return false
	}
	return true
}

// NoteOn starts a live note at the current output time. Synths hold it until
// NoteOff; samplers play a fixed-length hit.
func (m *Manager) NoteOn(id string, p Pitch, velocity float64) bool {
	e, ok := m.lookup(id)
	if !ok {
		m.log.Debug("note on: no voice", "id", id)
		return false
	}
	now := m.Now()
	switch e.voice.Kind {
	case KindSampler:
		name, err := samplerNote(p)
		if err != nil {
			return false
		}
		e.voice.Sampler.TriggerAttackRelease(name, AuditionDuration, now, CorrectedGain(e.req.Type, velocity))
	case KindSynth:
		freq, err := synthFreq(p)
		if err != nil {
			return false
		}
		e.voice.Synth.TriggerAttack(freq, now, velocity)
	}
	return true
}

// NoteOff releases a live note started with NoteOn.
func (m *Manager) NoteOff(id string, p Pitch) {
	e, ok := m.lookup(id)
	if !ok || e.voice.Kind != KindSynth {
		return
	}
	if freq, err := synthFreq(p); err == nil {
		e.voice.Synth.TriggerRelease(freq, m.Now())
	}
}

// StopAll releases every voice. Without dispose it records the current
// output time as the stop timestamp. With dispose it tears down every synth
// voice and rebuilds it before returning; samplers are kept.
func (m *Manager) StopAll(ctx context.Context, dispose bool) error {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.voices))
	for _, e := range m.voices {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.voice.ReleaseAll()
	}
	if !dispose {
		m.gate.MarkStopped(m.Now())
		return nil
	}

	var rebuild []Request
	for _, e := range entries {
		if e.voice.Kind != KindSynth {
			continue
		}
		if m.drop(e) {
			e.voice.Synth.Dispose()
			rebuild = append(rebuild, e.req)
		}
	}
	if len(rebuild) == 0 {
		return nil
	}
	m.log.Debug("rebuilding synth voices", "count", len(rebuild))
	return m.Preload(ctx, rebuild)
}

// Forget disposes and uncaches the voice for id, if any. Used when an
// instrument leaves the song or changes type, and after a failed load.
func (m *Manager) Forget(id string) {
	e, ok := m.lookup(id)
	if !ok || !m.drop(e) {
		return
	}
	m.log.Debug("voice forgotten", "id", id)
	dispose(e.voice)
}

// Retain forgets every cached voice whose id is not in ids.
func (m *Manager) Retain(ids []string) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	for _, req := range m.Cached() {
		if _, ok := keep[req.ID]; !ok {
			m.Forget(req.ID)
		}
	}
}

// Voice returns the cached voice for id.
func (m *Manager) Voice(id string) (Voice, bool) {
	e, ok := m.lookup(id)
	if !ok {
		return Voice{}, false
	}
	return e.voice, true
}

// Cached lists the requests behind every cached voice, ordered by id.
func (m *Manager) Cached() []Request {
	m.mu.Lock()
	out := make([]Request, 0, len(m.voices))
	for _, e := range m.voices {
		out = append(out, e.req)
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b Request) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Request returns the request the cached voice for id was built from.
func (m *Manager) Request(id string) (Request, bool) {
	e, ok := m.lookup(id)
	if !ok {
		return Request{}, false
	}
	return e.req, true
}

// Close disposes every voice and empties the cache.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := m.voices
	m.voices = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range entries {
		dispose(e.voice)
	}
}

// dispose silences v and frees it. Samplers are disposed only if they
// support it.
func dispose(v Voice) {
	v.ReleaseAll()
	switch v.Kind {
	case KindSynth:
		v.Synth.Dispose()
	case KindSampler:
		if d, ok := v.Sampler.(interface{ Dispose() }); ok {
			d.Dispose()
		}
	}
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.voices[id]
	return e, ok
}

// drop removes e from the cache if it is still the entry for its id.
func (m *Manager) drop(e *entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.voices[e.req.ID] != e {
		return false
	}
	delete(m.voices, e.req.ID)
	return true
}

func samplerNote(p Pitch) (string, error) {
	if p.Note != "" {
		return p.Note, nil
	}
	if p.Name != "" {
		return pitch.Canonical(p.Name)
	}
	if p.Freq > 0 {
		return pitch.Name(pitch.FreqToMIDI(p.Freq)), nil
	}
	return "", pitch.ErrInvalid
}

func synthFreq(p Pitch) (float64, error) {
	if p.Freq > 0 {
		return p.Freq, nil
	}
	return pitch.Frequency(p.Name)
}
