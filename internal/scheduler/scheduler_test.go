package scheduler

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cbegin/webdaw-go/internal/scale"
	"github.com/cbegin/webdaw-go/internal/song"
	"github.com/cbegin/webdaw-go/internal/voice"
)

type clock struct {
	mu  sync.Mutex
	now float64
	err error
}

func (c *clock) Resume(context.Context) error { return c.err }

func (c *clock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) set(now float64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

type note struct {
	name      string
	freq      float64
	when, dur float64
}

// fakeSynth keeps its scheduled notes the way a real synth does: they vanish
// when it is disposed.
type fakeSynth struct {
	mu        sync.Mutex
	notes     []note
	gains     []float64
	disposed  bool
	onTrigger func()
}

func (s *fakeSynth) TriggerAttackRelease(freq, dur, when float64) {
	s.mu.Lock()
	s.notes = append(s.notes, note{freq: freq, when: when, dur: dur})
	hook := s.onTrigger
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}
func (s *fakeSynth) TriggerAttack(freq, when, velocity float64) {}
func (s *fakeSynth) TriggerRelease(freq, when float64)          {}
func (s *fakeSynth) RampGain(db, seconds float64) {
	s.mu.Lock()
	s.gains = append(s.gains, db)
	s.mu.Unlock()
}
func (s *fakeSynth) ReleaseAll() {}
func (s *fakeSynth) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.notes = nil
	s.mu.Unlock()
}

// fakeSampler drops scheduled hits on release.
type fakeSampler struct {
	mu   sync.Mutex
	hits []note
}

func (s *fakeSampler) TriggerAttackRelease(name string, dur, when, gain float64) {
	s.mu.Lock()
	s.hits = append(s.hits, note{name: name, when: when, dur: dur})
	s.mu.Unlock()
}
func (s *fakeSampler) ReleaseAll() {
	s.mu.Lock()
	s.hits = nil
	s.mu.Unlock()
}
func (s *fakeSampler) Wait(context.Context) error { return nil }

type provider struct {
	mu       sync.Mutex
	builds   map[string]int
	synths   []*fakeSynth
	samplers []*fakeSampler

	onTrigger func()
}

func (p *provider) NewVoice(ctx context.Context, req voice.Request) (voice.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.builds == nil {
		p.builds = make(map[string]int)
	}
	p.builds[req.ID]++
	if req.Type == song.Drum {
		s := &fakeSampler{}
		p.samplers = append(p.samplers, s)
		return voice.SamplerVoice(s), nil
	}
	s := &fakeSynth{onTrigger: p.onTrigger}
	p.synths = append(p.synths, s)
	return voice.SynthVoice(s), nil
}

// audible returns every note still scheduled on a live voice.
func (p *provider) audible() []note {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []note
	for _, s := range p.synths {
		s.mu.Lock()
		if !s.disposed {
			out = append(out, s.notes...)
		}
		s.mu.Unlock()
	}
	for _, s := range p.samplers {
		s.mu.Lock()
		out = append(out, s.hits...)
		s.mu.Unlock()
	}
	return out
}

func (p *provider) liveSynths() []*fakeSynth {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*fakeSynth
	for _, s := range p.synths {
		if !s.disposed {
			out = append(out, s)
		}
	}
	return out
}

type recorder struct {
	mu      sync.Mutex
	changes []Change
	ch      chan Change
}

func newRecorder() *recorder { return &recorder{ch: make(chan Change, 64)} }

func (r *recorder) notify(c Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
	r.ch <- c
}

func (r *recorder) waitFor(t *testing.T, to State, within time.Duration) Change {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case c := <-r.ch:
			if c.To == to {
				return c
			}
		case <-deadline:
			t.Fatalf("no transition to %s within %v", to, within)
		}
	}
}

func (r *recorder) count(to State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.changes {
		if c.To == to {
			n++
		}
	}
	return n
}

type harness struct {
	sched *Scheduler
	prov  *provider
	clock *clock
	rec   *recorder
	voice *voice.Manager
}

func newHarness(sg *song.Song, opts ...Option) *harness {
	h := &harness{prov: &provider{}, clock: &clock{}, rec: newRecorder()}
	h.voice = voice.NewManager(h.prov, h.clock)
	opts = append([]Option{WithNotify(h.rec.notify)}, opts...)
	h.sched = New(h.voice, sg, opts...)
	return h
}

func singleNoteSong() *song.Song {
	in := song.NewInstrument(song.Synth, 1)
	in.Patterns[0].Notes = []song.Note{{Pitch: "C4", Start: 0, Duration: 4}}
	return &song.Song{
		BPM:         120,
		Scale:       scale.Major,
		Instruments: []song.Instrument{in},
		Sequence:    song.Sequence{{{InstrumentID: in.ID, PatternID: "p1"}}},
	}
}

func busySong() *song.Song {
	s := song.Default()
	synth := s.Instrument("synth-1")
	synth.Patterns[0].Notes = []song.Note{{Pitch: "C4", Start: 0, Duration: 4}, {Pitch: "E4", Start: 8, Duration: 4}, {Pitch: "G4", Start: 16, Duration: 8}}
	s.Instrument("drum-1").Patterns[0].Notes = []song.Note{{Pitch: "C3", Start: 0, Duration: 1}, {Pitch: "D3", Start: 4, Duration: 1}, {Pitch: "E3", Start: 8, Duration: 1}}
	s.Sequence = append(s.Sequence, slices.Clone(s.Sequence[0]))
	return s
}

func TestSingleNoteEndToEnd(t *testing.T) {
	h := newHarness(singleNoteSong())
	h.clock.set(5)
	if err := h.sched.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := h.sched.State(); st != Playing {
		t.Fatalf("state = %s", st)
	}
	base := h.sched.Base()
	if math.Abs(base-5.1) > 1e-9 {
		t.Fatalf("base = %v", base)
	}
	got := h.prov.audible()
	if len(got) != 1 {
		t.Fatalf("notes = %+v, want exactly one", got)
	}
	n := got[0]
	if math.Abs(n.when-base) > 1e-9 || math.Abs(n.dur-0.5) > 1e-9 || math.Abs(n.freq-261.63) > 0.01 {
		t.Fatalf("note = %+v", n)
	}
	if st := h.sched.Stop(context.Background()); st != nil {
		t.Fatal(st)
	}
}

func TestPrimeAppliesVolumesAndCachesFrequencies(t *testing.T) {
	h := newHarness(busySong())
	if err := h.sched.Prime(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := h.sched.State(); st != Ready {
		t.Fatalf("state = %s", st)
	}
	live := h.prov.liveSynths()
	if len(live) != 1 || len(live[0].gains) != 1 {
		t.Fatalf("synth gains = %+v", live)
	}
	if want := voice.VolumeDB(song.Synth, 0.8); live[0].gains[0] != want {
		t.Fatalf("gain = %v, want %v", live[0].gains[0], want)
	}
	if len(h.sched.pitches) != 6 {
		t.Fatalf("pitch table = %v", h.sched.pitches)
	}
	if h.rec.count(Priming) != 1 || h.rec.count(Ready) != 1 {
		t.Fatalf("changes = %+v", h.rec.changes)
	}
}

func TestPrimeFailureReturnsToIdle(t *testing.T) {
	h := newHarness(busySong())
	h.clock.err = errors.New("gesture required")
	err := h.sched.Play(context.Background())
	if !errors.Is(err, voice.ErrAudioUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if st := h.sched.State(); st != Idle {
		t.Fatalf("state = %s", st)
	}
	c := h.rec.waitFor(t, Idle, time.Second)
	if c.Err == nil {
		t.Fatal("idle transition should carry the error")
	}
	h.clock.err = nil
	if err := h.sched.Play(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if err := h.sched.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestEmptySequenceReturnsToReady(t *testing.T) {
	sg := busySong()
	sg.Sequence = nil
	h := newHarness(sg)
	if err := h.sched.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := h.sched.State(); st != Playing {
		t.Fatalf("state = %s", st)
	}
	if n := len(h.prov.audible()); n != 0 {
		t.Fatalf("scheduled %d notes", n)
	}
	h.rec.waitFor(t, Playing, time.Second)
	h.rec.waitFor(t, Ready, 1200*time.Millisecond)
	if st := h.sched.State(); st != Ready {
		t.Fatalf("state = %s", st)
	}
}

func TestPlayStopPlayLeavesOnlySecondSession(t *testing.T) {
	h := newHarness(busySong())
	ctx := context.Background()
	if err := h.sched.Play(ctx); err != nil {
		t.Fatal(err)
	}
	first := len(h.prov.audible())
	if first != 12 {
		t.Fatalf("first session scheduled %d notes", first)
	}
	if err := h.sched.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if st := h.sched.State(); st != Ready {
		t.Fatalf("state after stop = %s", st)
	}
	h.clock.set(0.2)
	if err := h.sched.Play(ctx); err != nil {
		t.Fatal(err)
	}
	base := h.sched.Base()
	got := h.prov.audible()
	if len(got) != 12 {
		t.Fatalf("audible notes = %d, want 12 from the second session only", len(got))
	}
	for _, n := range got {
		if n.when < base {
			t.Fatalf("note from the first session survived: %+v (base %v)", n, base)
		}
	}
	if err := h.sched.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestRestartWhilePlayingSupersedesSession(t *testing.T) {
	h := newHarness(busySong())
	ctx := context.Background()
	if err := h.sched.Play(ctx); err != nil {
		t.Fatal(err)
	}
	h.clock.set(1)
	if err := h.sched.Play(ctx); err != nil {
		t.Fatal(err)
	}
	base := h.sched.Base()
	for _, n := range h.prov.audible() {
		if n.when < base {
			t.Fatalf("stale note %+v", n)
		}
	}
	if len(h.prov.audible()) != 12 {
		t.Fatalf("audible = %d", len(h.prov.audible()))
	}
	_ = h.sched.Stop(ctx)
}

func TestSupersededWalkStopsScheduling(t *testing.T) {
	sg := singleNoteSong()
	sg.Instruments[0].Patterns[0].Notes = []song.Note{{Pitch: "C4", Start: 0, Duration: 1}, {Pitch: "D4", Start: 1, Duration: 1}, {Pitch: "E4", Start: 2, Duration: 1}}
	h := newHarness(sg)
	gate := h.voice.Gate()
	triggered := 0
	// Every synth the provider builds supersedes the session on its first
	// note, as a concurrent Stop would.
	h.prov.onTrigger = func() {
		triggered++
		gate.Supersede()
	}
	if err := h.sched.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if triggered != 1 {
		t.Fatalf("triggered %d notes, want the walk to stop after 1", triggered)
	}
	if st := h.sched.State(); st == Playing {
		t.Fatal("superseded session must not enter Playing")
	}
}

func TestDeferredFromOldSessionIsIgnored(t *testing.T) {
	sg := busySong()
	sg.Sequence = nil
	h := newHarness(sg, WithLatency(0), WithHold(0, 30*time.Millisecond))
	ctx := context.Background()
	if err := h.sched.Play(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.sched.Play(ctx); err != nil {
		t.Fatal(err)
	}
	h.rec.waitFor(t, Playing, time.Second)
	h.rec.waitFor(t, Ready, time.Second)
	time.Sleep(60 * time.Millisecond)
	// One Ready from priming and one from the second session's timer.
	if n := h.rec.count(Ready); n != 2 {
		t.Fatalf("ready transitions = %d", n)
	}
}

func TestStopCancelsDeferredTransition(t *testing.T) {
	sg := busySong()
	sg.Sequence = nil
	h := newHarness(sg, WithLatency(0), WithHold(0, 30*time.Millisecond))
	ctx := context.Background()
	if err := h.sched.Play(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.sched.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.sched.Play(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.sched.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if st := h.sched.State(); st != Ready {
		t.Fatalf("state = %s", st)
	}
	if _, pending := h.sched.done.Pending(); pending {
		t.Fatal("deferred transition still armed")
	}
}

func TestTogglePlay(t *testing.T) {
	h := newHarness(busySong())
	ctx := context.Background()
	if err := h.sched.TogglePlay(ctx); err != nil {
		t.Fatal(err)
	}
	if st := h.sched.State(); st != Playing {
		t.Fatalf("state = %s", st)
	}
	if err := h.sched.TogglePlay(ctx); err != nil {
		t.Fatal(err)
	}
	if st := h.sched.State(); st != Ready {
		t.Fatalf("state = %s", st)
	}
}

func TestSetSongRebuildsChangedInstruments(t *testing.T) {
	h := newHarness(busySong())
	ctx := context.Background()
	if err := h.sched.Prime(ctx); err != nil {
		t.Fatal(err)
	}
	sg := busySong()
	sg.Instrument("synth-1").Type = song.Pad
	h.sched.SetSong(sg)
	if err := h.sched.Prime(ctx); err != nil {
		t.Fatal(err)
	}
	if h.prov.builds["synth-1"] != 2 || h.prov.builds["drum-1"] != 1 {
		t.Fatalf("builds = %v", h.prov.builds)
	}
	if req, _ := h.voice.Request("synth-1"); req.Type != song.Pad {
		t.Fatalf("cached type = %s", req.Type)
	}
}

func TestPrimeForgetsRemovedInstruments(t *testing.T) {
	h := newHarness(busySong())
	ctx := context.Background()
	if err := h.sched.Prime(ctx); err != nil {
		t.Fatal(err)
	}
	before := len(h.prov.liveSynths())

	sg := busySong()
	sg.Instruments = slices.DeleteFunc(sg.Instruments, func(in song.Instrument) bool { return in.ID == "synth-1" })
	for i, step := range sg.Sequence {
		sg.Sequence[i] = slices.DeleteFunc(step, func(it song.Item) bool { return it.InstrumentID == "synth-1" })
	}
	h.sched.SetSong(sg)
	if err := h.sched.Prime(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.voice.Voice("synth-1"); ok {
		t.Fatal("removed instrument still has a voice")
	}
	if got := len(h.prov.liveSynths()); got != before-1 {
		t.Fatalf("live synths = %d, want %d", got, before-1)
	}
	if len(h.voice.Cached()) != len(sg.Instruments) {
		t.Fatalf("cached = %+v", h.voice.Cached())
	}
}

func TestSetVolumeAndBPM(t *testing.T) {
	h := newHarness(singleNoteSong())
	ctx := context.Background()
	if err := h.sched.Prime(ctx); err != nil {
		t.Fatal(err)
	}
	if !h.sched.SetVolume("synth-1", 150) {
		t.Fatal("known instrument rejected")
	}
	if h.sched.SetVolume("ghost", 10) {
		t.Fatal("unknown instrument accepted")
	}
	if got := h.sched.Song().Instrument("synth-1").Volume; got != 100 {
		t.Fatalf("volume = %d", got)
	}
	gains := h.prov.liveSynths()[0].gains
	if gains[len(gains)-1] != 0 {
		t.Fatalf("last gain = %v dB", gains[len(gains)-1])
	}
	h.sched.SetBPM(60)
	if got := h.sched.Plan().Events[0].Dur; math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("dur at 60 bpm = %v", got)
	}
}

func TestPlayWithoutSong(t *testing.T) {
	h := newHarness(nil)
	if err := h.sched.Play(context.Background()); !errors.Is(err, ErrNoSong) {
		t.Fatalf("err = %v", err)
	}
}
