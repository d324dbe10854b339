package webdaw

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"
	"testing/fstest"
	"time"

	"github.com/youpy/go-wav"
	"gitlab.com/gomidi/midi/v2/smf"

	intsampler "github.com/cbegin/webdaw-go/internal/sampler"
	intsong "github.com/cbegin/webdaw-go/internal/song"
	intvoice "github.com/cbegin/webdaw-go/internal/voice"
)

func shortSong() *intsong.Song {
	s := intsong.Default()
	s.BPM = 240
	s.Instrument("synth-1").Pattern("p1").Notes = []intsong.Note{{Pitch: "C4", Start: 0, Duration: 1}}
	s.Instrument("drum-1").Pattern("p1").Notes = []intsong.Note{{Pitch: "C3", Start: 0, Duration: 1}}
	return s
}

func newOfflineStudio(t *testing.T, opts ...Option) (*Studio, *OfflineOutput) {
	t.Helper()
	out := NewOfflineOutput(8000)
	opts = append([]Option{
		WithSampleRate(8000),
		WithOutput(out),
		WithLatency(0),
		WithTiming(0, 10*time.Millisecond),
	}, opts...)
	st, err := New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st, out
}

func waitFor(t *testing.T, events <-chan Event, to State) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.To == to {
				return ev
			}
		case <-timeout:
			t.Fatalf("no transition to %v", to)
		}
	}
}

func TestNewRejectsBadSampleRate(t *testing.T) {
	if _, err := New(WithSampleRate(0)); !errors.Is(err, ErrBadSampleRate) {
		t.Fatalf("err = %v", err)
	}
}

func TestPlayRunsToReady(t *testing.T) {
	st, out := newOfflineStudio(t)
	st.SetSong(shortSong())
	events := st.Watch()

	if err := st.Play(t.Context()); err != nil {
		t.Fatal(err)
	}
	if st.State() != StatePlaying {
		t.Fatalf("state = %v", st.State())
	}
	playing := waitFor(t, events, StatePlaying)
	if len(st.Plan().Events) != 2 {
		t.Fatalf("plan = %+v", st.Plan())
	}

	loud := false
	for _, s := range out.Advance(0.1) {
		if s != 0 {
			loud = true
			break
		}
	}
	if !loud {
		t.Fatal("playback rendered silence")
	}
	ready := waitFor(t, events, StateReady)
	if ready.Session != playing.Session || ready.From != StatePlaying {
		t.Fatalf("ready = %+v, playing = %+v", ready, playing)
	}
}

func TestStopReturnsToReady(t *testing.T) {
	st, _ := newOfflineStudio(t, WithTiming(time.Minute, 0))
	if err := st.TogglePlay(t.Context()); err != nil {
		t.Fatal(err)
	}
	if st.State() != StatePlaying {
		t.Fatalf("state = %v", st.State())
	}
	if err := st.TogglePlay(t.Context()); err != nil {
		t.Fatal(err)
	}
	if st.State() != StateReady {
		t.Fatalf("state = %v", st.State())
	}
}

type mutedOutput struct{ *OfflineOutput }

func (mutedOutput) Resume(context.Context) error { return errors.New("no device") }

func TestPrimeFailsWhenOutputCannotResume(t *testing.T) {
	st, _ := newOfflineStudio(t, WithOutput(mutedOutput{NewOfflineOutput(8000)}))
	events := st.Watch()
	if err := st.Prime(t.Context()); !errors.Is(err, intvoice.ErrAudioUnavailable) {
		t.Fatalf("err = %v", err)
	}
	ev := waitFor(t, events, StateIdle)
	if ev.Err == nil || st.State() != StateIdle {
		t.Fatalf("event = %+v, state = %v", ev, st.State())
	}
}

func TestSaveAndLoadSong(t *testing.T) {
	store := intsong.NewMemoryStore()
	st, _ := newOfflineStudio(t, WithStore(store, "tune"), WithBPM(100))
	if st.Song().BPM != 100 {
		t.Fatalf("bpm = %v", st.Song().BPM)
	}
	st.SetBPM(133)
	if err := st.SaveSong(); err != nil {
		t.Fatal(err)
	}

	again, _ := newOfflineStudio(t, WithStore(store, "tune"))
	if again.Song().BPM != 133 {
		t.Fatalf("loaded bpm = %v", again.Song().BPM)
	}
	again.SetBPM(90)
	if err := again.LoadSong(); err != nil {
		t.Fatal(err)
	}
	if again.Song().BPM != 133 {
		t.Fatalf("reloaded bpm = %v", again.Song().BPM)
	}
}

func TestStoreRequired(t *testing.T) {
	st, _ := newOfflineStudio(t)
	if err := st.SaveSong(); !errors.Is(err, ErrNoStore) {
		t.Fatalf("save err = %v", err)
	}
	if err := st.LoadSong(); !errors.Is(err, ErrNoStore) {
		t.Fatalf("load err = %v", err)
	}
}

func TestNoteOnAuditions(t *testing.T) {
	st, out := newOfflineStudio(t)
	if err := st.NoteOn(t.Context(), "nope", "C4"); !errors.Is(err, ErrNoInstrument) {
		t.Fatalf("err = %v", err)
	}
	if err := st.NoteOn(t.Context(), "synth-1", "A4"); err != nil {
		t.Fatal(err)
	}
	var peak float32
	for _, s := range out.Advance(0.05) {
		peak = max(peak, s)
	}
	if peak == 0 {
		t.Fatal("audition rendered silence")
	}
	st.NoteOff("synth-1", "A4")
}

func TestInstrumentVolumeAndScale(t *testing.T) {
	st, _ := newOfflineStudio(t)
	if !st.SetInstrumentVolume("synth-1", 40) {
		t.Fatal("known instrument rejected")
	}
	if st.Song().Instrument("synth-1").Volume != 40 {
		t.Fatal("volume not stored")
	}
	if st.SetInstrumentVolume("ghost", 40) {
		t.Fatal("unknown instrument accepted")
	}
	if !st.IsPitchAllowed("E4") || st.IsPitchAllowed("F#4") {
		t.Fatal("C major filter")
	}
}

func TestExportMIDI(t *testing.T) {
	st, _ := newOfflineStudio(t)
	st.SetSong(shortSong())
	var buf bytes.Buffer
	if err := st.ExportMIDI(&buf); err != nil {
		t.Fatal(err)
	}
	file, err := smf.ReadFrom(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(file.Tracks) != 3 {
		t.Fatalf("tracks = %d", len(file.Tracks))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	st, _ := newOfflineStudio(t, WithTiming(time.Minute, 0))
	if err := st.Play(t.Context()); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if st.State() == StatePlaying {
		t.Fatal("close left playback running")
	}
}

// addKit writes a short full-scale hit for every drum file into fsys.
func addKit(t *testing.T, fsys fstest.MapFS) {
	t.Helper()
	const frames = 200
	for _, file := range intsampler.DrumKit.Files {
		var buf bytes.Buffer
		w := wav.NewWriter(&buf, frames, 1, 8000, 16)
		samples := make([]wav.Sample, frames)
		for i := range samples {
			samples[i].Values[0] = 20000
		}
		if err := w.WriteSamples(samples); err != nil {
			t.Fatal(err)
		}
		fsys[file] = &fstest.MapFile{Data: buf.Bytes()}
	}
}

func TestEveryDrumHitRenders(t *testing.T) {
	kit := fstest.MapFS{}
	addKit(t, kit)
	st, out := newOfflineStudio(t, WithSampleFS(kit))

	sg := shortSong()
	sg.Instrument("synth-1").Pattern("p1").Notes = nil
	drums := sg.Instrument("drum-1").Pattern("p1")
	drums.Notes = nil
	for step := range intsong.PatternSteps {
		drums.Notes = append(drums.Notes, intsong.Note{Pitch: "C3", Start: step, Duration: 1})
	}
	sg.Sequence = slices.Repeat(sg.Sequence, 3)
	st.SetSong(sg)

	if err := st.Play(t.Context()); err != nil {
		t.Fatal(err)
	}
	plan := st.Plan()
	if len(plan.Events) != 3*intsong.PatternSteps {
		t.Fatalf("planned %d hits", len(plan.Events))
	}
	// one sixteenth at 240 bpm is 500 frames and each hit lasts 200, so
	// every hit lands in the first half of its step
	half := int(plan.StepDuration * 8000 / 2)
	for i := range plan.Events {
		buf := out.Advance(plan.StepDuration)
		var peak float32
		for _, s := range buf[:2*half] {
			peak = max(peak, s)
		}
		if peak == 0 {
			t.Fatalf("hit %d rendered silence", i)
		}
	}
}

func TestNoteOnRetriesFailedSampleLoad(t *testing.T) {
	kit := fstest.MapFS{}
	st, out := newOfflineStudio(t, WithSampleFS(kit))
	if err := st.NoteOn(t.Context(), "drum-1", "C3"); !errors.Is(err, intsampler.ErrNotLoaded) {
		t.Fatalf("first note = %v", err)
	}
	addKit(t, kit)
	if err := st.NoteOn(t.Context(), "drum-1", "C3"); err != nil {
		t.Fatalf("retry = %v", err)
	}
	var peak float32
	for _, s := range out.Advance(0.02) {
		peak = max(peak, s)
	}
	if peak == 0 {
		t.Fatal("retried hit rendered silence")
	}
}

func TestPrimeReleasesRemovedInstruments(t *testing.T) {
	st, out := newOfflineStudio(t)
	if err := st.Prime(t.Context()); err != nil {
		t.Fatal(err)
	}
	before := out.Mixer().Len()

	sg := intsong.Default()
	sg.Instruments = slices.DeleteFunc(sg.Instruments, func(in intsong.Instrument) bool { return in.ID == "drum-1" })
	for i, step := range sg.Sequence {
		sg.Sequence[i] = slices.DeleteFunc(step, func(it intsong.Item) bool { return it.InstrumentID == "drum-1" })
	}
	st.SetSong(sg)
	if err := st.Prime(t.Context()); err != nil {
		t.Fatal(err)
	}
	if got := out.Mixer().Len(); got != before-1 {
		t.Fatalf("mixer voices = %d, want %d", got, before-1)
	}
}
