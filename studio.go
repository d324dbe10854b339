// Package webdaw is a multi-track step sequencer: a song of instruments and
// patterns, scheduled against an audio output clock and played through
// sampled or synthesized voices.
package webdaw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	intaudio "github.com/cbegin/webdaw-go/internal/audio"
	intbackend "github.com/cbegin/webdaw-go/internal/backend"
	intmidi "github.com/cbegin/webdaw-go/internal/midifile"
	intscale "github.com/cbegin/webdaw-go/internal/scale"
	intsched "github.com/cbegin/webdaw-go/internal/scheduler"
	intsong "github.com/cbegin/webdaw-go/internal/song"
	intvoice "github.com/cbegin/webdaw-go/internal/voice"
)

type State = intsched.State

const (
	StateIdle    = intsched.Idle
	StatePriming = intsched.Priming
	StateReady   = intsched.Ready
	StatePlaying = intsched.Playing
)

// Event reports a transport state change from Watch.
type Event struct {
	From, To State
	Session  uint64
	// Err is set when priming failed and the studio fell back to Idle.
	Err error
}

var (
	ErrNoStore       = errors.New("webdaw: no song store configured")
	ErrNoInstrument  = errors.New("webdaw: no such instrument")
	ErrBadSampleRate = errors.New("webdaw: sample rate must be positive")
)

type Option func(*studioConfig)

type studioConfig struct {
	sampleRate    int
	bpm           float64
	latency       float64
	samples       fs.FS
	synthFallback bool
	store         intsong.Store
	storageKey    string
	logger        *slog.Logger
	output        intvoice.Output
	provider      intvoice.Provider
	minHold, tail time.Duration
}

func defaultStudioConfig() studioConfig {
	return studioConfig{
		sampleRate: 48000,
		latency:    intsched.DefaultLatency,
		storageKey: intsong.DefaultKey,
		minHold:    intsched.DefaultMinHold,
		tail:       intsched.DefaultTail,
	}
}

func WithSampleRate(hz int) Option {
	return func(cfg *studioConfig) {
		cfg.sampleRate = hz
	}
}

// WithBPM overrides the tempo of the initial song.
func WithBPM(bpm float64) Option {
	return func(cfg *studioConfig) {
		cfg.bpm = bpm
	}
}

// WithLatency sets how far ahead of the output clock playback starts, in
// seconds.
func WithLatency(seconds float64) Option {
	return func(cfg *studioConfig) {
		cfg.latency = seconds
	}
}

// WithSampleFS sets where sample sets are loaded from. Without it every
// instrument is synthesized.
func WithSampleFS(fsys fs.FS) Option {
	return func(cfg *studioConfig) {
		cfg.samples = fsys
	}
}

// WithSynthFallback synthesizes sample families even when samples exist.
func WithSynthFallback(on bool) Option {
	return func(cfg *studioConfig) {
		cfg.synthFallback = on
	}
}

// WithStore persists the song in store under key. An empty key uses the
// default storage key.
func WithStore(store intsong.Store, key string) Option {
	return func(cfg *studioConfig) {
		cfg.store = store
		if key != "" {
			cfg.storageKey = key
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *studioConfig) {
		cfg.logger = l
	}
}

// WithOutput replaces the audio device. If out exposes its mixer, voices
// render into it.
func WithOutput(out intvoice.Output) Option {
	return func(cfg *studioConfig) {
		cfg.output = out
	}
}

// WithProvider replaces the voice backend.
func WithProvider(p intvoice.Provider) Option {
	return func(cfg *studioConfig) {
		cfg.provider = p
	}
}

// WithTiming sets the minimum time a session stays Playing and the tail
// after its last note.
func WithTiming(minHold, tail time.Duration) Option {
	return func(cfg *studioConfig) {
		cfg.minHold = minHold
		cfg.tail = tail
	}
}

type mixerOutput interface {
	Mixer() *intaudio.Mixer
}

type Studio struct {
	cfg    studioConfig
	log    *slog.Logger
	mixer  *intaudio.Mixer
	output intvoice.Output
	voices *intvoice.Manager
	sched  *intsched.Scheduler

	eventCh   chan Event
	eventChMu sync.Mutex
	closeOnce sync.Once
}

// New builds a studio. The initial song comes from the store when one is
// configured and holds a song, and is the starter song otherwise.
func New(opts ...Option) (*Studio, error) {
	cfg := defaultStudioConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, ErrBadSampleRate
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Studio{cfg: cfg, log: log, output: cfg.output}
	if mo, ok := s.output.(mixerOutput); ok {
		s.mixer = mo.Mixer()
	} else {
		s.mixer = intaudio.NewMixer(cfg.sampleRate)
	}
	if s.output == nil {
		s.output = intaudio.NewOutput(s.mixer)
	}
	provider := cfg.provider
	if provider == nil {
		provider = intbackend.New(s.mixer,
			intbackend.WithSamples(cfg.samples),
			intbackend.WithSynthFallback(cfg.synthFallback),
			intbackend.WithLogger(log),
		)
	}

	initial, err := s.initialSong()
	if err != nil {
		return nil, err
	}
	s.voices = intvoice.NewManager(provider, s.output, intvoice.WithLogger(log))
	s.sched = intsched.New(s.voices, initial,
		intsched.WithLatency(cfg.latency),
		intsched.WithHold(cfg.minHold, cfg.tail),
		intsched.WithLogger(log),
		intsched.WithNotify(s.sendEvent),
	)
	return s, nil
}

func (s *Studio) initialSong() (*intsong.Song, error) {
	sg := intsong.Default()
	if s.cfg.store != nil {
		loaded, err := s.cfg.store.Load(s.cfg.storageKey)
		switch {
		case err == nil:
			sg = loaded
		case !errors.Is(err, intsong.ErrNotFound):
			return nil, fmt.Errorf("webdaw: loading song: %w", err)
		}
	}
	if s.cfg.bpm > 0 {
		sg.BPM = s.cfg.bpm
	}
	return sg, nil
}

// Prime readies the audio output and every instrument voice.
func (s *Studio) Prime(ctx context.Context) error { return s.sched.Prime(ctx) }

// Play starts the arrangement from the top. A running session is replaced.
func (s *Studio) Play(ctx context.Context) error { return s.sched.Play(ctx) }

// Stop silences playback and returns to Ready.
func (s *Studio) Stop(ctx context.Context) error { return s.sched.Stop(ctx) }

func (s *Studio) TogglePlay(ctx context.Context) error { return s.sched.TogglePlay(ctx) }

func (s *Studio) State() State { return s.sched.State() }

// Now is the output clock in seconds.
func (s *Studio) Now() float64 { return s.output.Now() }

// Watch returns a channel that receives state changes. The channel is
// buffered (cap 8) and events are dropped when it is full. Only the most
// recent Watch channel receives events.
func (s *Studio) Watch() <-chan Event {
	ch := make(chan Event, 8)
	s.eventChMu.Lock()
	s.eventCh = ch
	s.eventChMu.Unlock()
	return ch
}

func (s *Studio) sendEvent(c intsched.Change) {
	s.eventChMu.Lock()
	ch := s.eventCh
	s.eventChMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- Event{From: c.From, To: c.To, Session: c.Session, Err: c.Err}:
	default:
	}
}

// Song returns a copy of the current song.
func (s *Studio) Song() *intsong.Song { return s.sched.Song() }

// SetSong replaces the song with a normalized copy of sg. Voices are
// reconciled on the next Play or Prime.
func (s *Studio) SetSong(sg *intsong.Song) {
	c := sg.Clone()
	c.Normalize()
	s.sched.SetSong(c)
}

// LoadSong replaces the song with the stored one.
func (s *Studio) LoadSong() error {
	if s.cfg.store == nil {
		return ErrNoStore
	}
	sg, err := s.cfg.store.Load(s.cfg.storageKey)
	if err != nil {
		return err
	}
	s.SetSong(sg)
	return nil
}

// SaveSong writes the current song to the store.
func (s *Studio) SaveSong() error {
	if s.cfg.store == nil {
		return ErrNoStore
	}
	return s.cfg.store.Save(s.cfg.storageKey, s.sched.Song())
}

// Plan expands the arrangement into timed notes without playing it.
func (s *Studio) Plan() intsched.Plan { return s.sched.Plan() }

func (s *Studio) SetBPM(bpm float64) { s.sched.SetBPM(bpm) }

// SetInstrumentVolume sets an instrument's volume (0..100) in the song and
// on its live voice.
func (s *Studio) SetInstrumentVolume(id string, volume int) bool {
	return s.sched.SetVolume(id, volume)
}

// IsPitchAllowed reports whether p belongs to the song's key and scale.
func (s *Studio) IsPitchAllowed(p string) bool {
	sg := s.sched.Song()
	return intscale.IsAllowed(p, sg.RootKey, sg.Scale)
}

// NoteOn auditions p on an instrument right away, building its voice first
// if needed. Synth notes hold until NoteOff; sampler notes are one-shots.
func (s *Studio) NoteOn(ctx context.Context, instrumentID, p string) error {
	in := s.sched.Song().Instrument(instrumentID)
	if in == nil {
		return fmt.Errorf("%w: %s", ErrNoInstrument, instrumentID)
	}
	if err := s.voices.EnsureAudioReady(ctx); err != nil {
		return err
	}
	if err := s.voices.Preload(ctx, []intvoice.Request{intvoice.RequestFor(in)}); err != nil {
		return err
	}
	v, ok := s.voices.Voice(in.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoInstrument, instrumentID)
	}
	// synths carry the volume in their output gain, samplers per hit
	level := float64(in.Volume) / 100
	s.voices.SetVolume(in.ID, level)
	if v.Kind == intvoice.KindSynth {
		level = 1
	}
	s.voices.NoteOn(in.ID, intvoice.Pitch{Name: p}, level)
	return nil
}

func (s *Studio) NoteOff(instrumentID, p string) {
	s.voices.NoteOff(instrumentID, intvoice.Pitch{Name: p})
}

// ExportMIDI writes the arrangement to w as a Standard MIDI File.
func (s *Studio) ExportMIDI(w io.Writer) error {
	return intmidi.Export(w, s.sched.Song())
}

// Close stops playback, frees every voice and closes the output if it can
// be closed.
func (s *Studio) Close() error {
	var err error
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if s.sched.State() == StatePlaying {
			err = s.sched.Stop(ctx)
		}
		s.voices.Close()
		if c, ok := s.output.(io.Closer); ok {
			if cerr := c.Close(); err == nil {
				err = cerr
			}
		}
		s.eventChMu.Lock()
		s.eventCh = nil
		s.eventChMu.Unlock()
	})
	return err
}
