// Package scheduler turns a song into timed voice triggers and runs one
// playback session at a time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cbegin/webdaw-go/internal/session"
	"github.com/cbegin/webdaw-go/internal/song"
	"github.com/cbegin/webdaw-go/internal/voice"
)

type State int

const (
	Idle State = iota
	Priming
	Ready
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Priming:
		return "priming"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	}
	return "unknown"
}

// Change reports a state transition. Err is set when priming failed.
type Change struct {
	From, To State
	Session  uint64
	Err      error
}

const (
	DefaultLatency = 0.1
	DefaultMinHold = 2 * time.Second
	DefaultTail    = 500 * time.Millisecond
)

var ErrNoSong = errors.New("scheduler: no song")

type Option func(*Scheduler)

// WithLatency sets how far ahead of the output clock a session starts.
func WithLatency(seconds float64) Option {
	return func(s *Scheduler) {
		if seconds >= 0 {
			s.latency = seconds
		}
	}
}

// WithHold sets the minimum Playing time and the tail added after the last
// note before the session returns to Ready.
func WithHold(min, tail time.Duration) Option {
	return func(s *Scheduler) {
		s.minHold = min
		s.tail = tail
	}
}

// WithNotify installs a callback for state changes. It runs synchronously;
// keep it brief and non-blocking.
func WithNotify(fn func(Change)) Option {
	return func(s *Scheduler) {
		s.notify = fn
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

type Scheduler struct {
	voices *voice.Manager
	gate   *session.Gate
	done   session.Deferred
	log    *slog.Logger

	latency float64
	minHold time.Duration
	tail    time.Duration
	notify  func(Change)

	// run serializes Prime, Play and Stop. Stop supersedes the session
	// before taking it so a scheduling walk bails out early.
	run sync.Mutex

	mu      sync.Mutex
	song    *song.Song
	state   State
	primed  bool
	pitches map[string]voice.Pitch
	session uint64
	base    float64
}

func New(voices *voice.Manager, s *song.Song, opts ...Option) *Scheduler {
	sc := &Scheduler{
		voices:  voices,
		gate:    voices.Gate(),
		log:     slog.New(slog.DiscardHandler),
		latency: DefaultLatency,
		minHold: DefaultMinHold,
		tail:    DefaultTail,
	}
	if s != nil {
		sc.song = s.Clone()
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Song returns a copy of the song being played.
func (s *Scheduler) Song() *song.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.song == nil {
		return nil
	}
	return s.song.Clone()
}

// SetSong replaces the song. The next Play primes again.
func (s *Scheduler) SetSong(sg *song.Song) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sg == nil {
		s.song = nil
	} else {
		s.song = sg.Clone()
	}
	s.primed = false
}

// SetBPM changes the tempo used by the next Play.
func (s *Scheduler) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.song != nil {
		s.song.BPM = bpm
	}
}

// SetVolume updates an instrument's volume (0..100) in the song and on its
// voice.
func (s *Scheduler) SetVolume(instrumentID string, volume int) bool {
	s.mu.Lock()
	var inst *song.Instrument
	if s.song != nil {
		inst = s.song.Instrument(instrumentID)
	}
	if inst != nil {
		inst.Volume = min(100, max(0, volume))
		volume = inst.Volume
	}
	s.mu.Unlock()
	if inst == nil {
		return false
	}
	s.voices.SetVolume(instrumentID, float64(volume)/100)
	return true
}

// Prime gets the output and every instrument voice ready and resolves the
// song's pitches once. On failure the scheduler returns to Idle.
func (s *Scheduler) Prime(ctx context.Context) error {
	s.run.Lock()
	defer s.run.Unlock()
	return s.prime(ctx)
}

func (s *Scheduler) prime(ctx context.Context) error {
	s.mu.Lock()
	if s.song == nil {
		s.mu.Unlock()
		return ErrNoSong
	}
	sg := s.song.Clone()
	prev := s.state
	s.mu.Unlock()

	playing := prev == Playing
	if !playing {
		s.transition(Priming, nil)
	}
	err := s.load(ctx, sg)
	s.mu.Lock()
	if err != nil {
		s.primed = false
	} else {
		s.primed = true
		s.pitches = PitchTable(sg)
	}
	s.mu.Unlock()
	switch {
	case err != nil:
		s.log.Warn("prime failed", "err", err)
		if !playing {
			s.transition(Idle, err)
		}
	case !playing:
		s.transition(Ready, nil)
	}
	return err
}

func (s *Scheduler) load(ctx context.Context, sg *song.Song) error {
	if err := s.voices.EnsureAudioReady(ctx); err != nil {
		return err
	}
	reqs := make([]voice.Request, 0, len(sg.Instruments))
	ids := make([]string, 0, len(sg.Instruments))
	for _, in := range sg.Instruments {
		ids = append(ids, in.ID)
	}
	s.voices.Retain(ids)
	for i := range sg.Instruments {
		req := voice.RequestFor(&sg.Instruments[i])
		// Voices built for an older version of the instrument are rebuilt.
		if cached, ok := s.voices.Request(req.ID); ok && cached != req {
			s.voices.Forget(req.ID)
		}
		reqs = append(reqs, req)
	}
	if err := s.voices.Preload(ctx, reqs); err != nil {
		return err
	}
	for _, in := range sg.Instruments {
		s.voices.SetVolume(in.ID, float64(in.Volume)/100)
	}
	return nil
}

// Play starts a new session from the top of the sequence, priming first if
// needed.
func (s *Scheduler) Play(ctx context.Context) error {
	s.run.Lock()
	defer s.run.Unlock()

	s.mu.Lock()
	primed := s.primed
	s.mu.Unlock()
	if !primed {
		if err := s.prime(ctx); err != nil {
			return err
		}
	}

	s.done.Cancel()
	id := s.gate.Begin()
	if err := s.voices.StopAll(ctx, true); err != nil {
		s.mu.Lock()
		s.primed = false
		s.mu.Unlock()
		s.transition(Idle, err)
		return err
	}

	s.mu.Lock()
	plan := Build(s.song, s.pitches)
	s.mu.Unlock()

	base := s.voices.Now() + s.latency
	for _, ev := range plan.Events {
		if !s.gate.IsCurrent(id) {
			s.log.Debug("session superseded while scheduling", "session", id)
			return nil
		}
		s.voices.Trigger(ev.InstrumentID, ev.Pitch, base+ev.When, ev.Dur, ev.Volume)
	}

	s.mu.Lock()
	s.session = id
	s.base = base
	s.mu.Unlock()
	s.transition(Playing, nil)

	hold := s.holdFor(plan, base)
	s.log.Debug("playing", "session", id, "notes", len(plan.Events), "hold", hold)
	s.done.Arm(hold, id, s.finish)
	return nil
}

func (s *Scheduler) holdFor(plan Plan, base float64) time.Duration {
	remaining := seconds(base+plan.End-s.voices.Now()) + s.tail
	if len(plan.Events) == 0 {
		return max(0, remaining)
	}
	return max(s.minHold, remaining)
}

func (s *Scheduler) finish(id uint64) {
	if !s.gate.IsCurrent(id) {
		return
	}
	s.mu.Lock()
	playing := s.state == Playing && s.session == id
	s.mu.Unlock()
	if playing {
		s.transition(Ready, nil)
	}
}

// Stop ends the current session: every voice is released, synth voices are
// rebuilt, and the pending return to Ready is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.gate.Supersede()
	s.run.Lock()
	defer s.run.Unlock()

	s.done.Cancel()
	err := s.voices.StopAll(ctx, true)
	s.mu.Lock()
	primed := s.primed
	state := s.state
	s.mu.Unlock()
	if primed && state != Ready {
		s.transition(Ready, nil)
	}
	return err
}

// TogglePlay stops a playing session or starts a new one.
func (s *Scheduler) TogglePlay(ctx context.Context) error {
	if s.State() == Playing {
		return s.Stop(ctx)
	}
	return s.Play(ctx)
}

// Base returns the schedule base of the most recent session.
func (s *Scheduler) Base() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// Plan expands the current song without playing it.
func (s *Scheduler) Plan() Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.song == nil {
		return Plan{}
	}
	return Build(s.song, s.pitches)
}

func (s *Scheduler) transition(to State, err error) {
	s.mu.Lock()
	from := s.state
	s.state = to
	id := s.session
	notify := s.notify
	s.mu.Unlock()
	if from == to && err == nil {
		return
	}
	s.log.Debug("state", "from", from.String(), "to", to.String())
	if notify != nil {
		notify(Change{From: from, To: to, Session: id, Err: err})
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
