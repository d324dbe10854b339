package scheduler

import (
	"github.com/cbegin/webdaw-go/internal/pitch"
	"github.com/cbegin/webdaw-go/internal/song"
	"github.com/cbegin/webdaw-go/internal/voice"
)

// Event is one note of the arrangement. Seconds are relative to the
// schedule base.
type Event struct {
	InstrumentID string
	Step         int // sequence step index
	Start        int // absolute sixteenth: Step*PatternSteps + note start
	Length       int // sixteenths
	Pitch        voice.Pitch
	When         float64
	Dur          float64
	Volume       float64 // linear, 0..1
}

// Plan is the expanded arrangement.
type Plan struct {
	Events       []Event
	StepDuration float64 // one sixteenth in seconds
	PatternSpan  float64 // one sequence step in seconds
	// End is the latest note end, or the whole sequence length when there
	// are no notes.
	End float64
}

// StepDuration is the length of one sixteenth note at bpm.
func StepDuration(bpm float64) float64 {
	if bpm <= 0 {
		bpm = song.DefaultBPM
	}
	return 60 / bpm / 4
}

// PitchTable resolves every distinct pitch of the song once, to its
// frequency and its canonical sampler spelling. Pitches that do not parse
// are left out.
func PitchTable(s *song.Song) map[string]voice.Pitch {
	pitches := s.Pitches()
	out := make(map[string]voice.Pitch, len(pitches))
	for _, p := range pitches {
		if r, ok := resolve(p); ok {
			out[p] = r
		}
	}
	return out
}

func resolve(p string) (voice.Pitch, bool) {
	f, err := pitch.Frequency(p)
	if err != nil {
		return voice.Pitch{}, false
	}
	note, err := pitch.Canonical(p)
	if err != nil {
		return voice.Pitch{}, false
	}
	return voice.Pitch{Name: p, Freq: f, Note: note}, true
}

// Build expands the sequence into events in step order. Items that reference
// a missing instrument or pattern are skipped. pitches may be nil or stale;
// pitches missing from it are resolved on the fly, and notes whose pitch
// cannot be resolved are skipped.
func Build(s *song.Song, pitches map[string]voice.Pitch) Plan {
	stepDur := StepDuration(s.BPM)
	plan := Plan{
		StepDuration: stepDur,
		PatternSpan:  stepDur * song.PatternSteps,
	}
	latest := 0.0
	for i, step := range s.Sequence {
		stepStart := float64(i) * plan.PatternSpan
		for _, item := range step {
			inst, pat := s.Pattern(item.InstrumentID, item.PatternID)
			if pat == nil {
				continue
			}
			vol := float64(inst.Volume) / 100
			for _, n := range pat.Notes {
				p, ok := pitches[n.Pitch]
				if !ok {
					if p, ok = resolve(n.Pitch); !ok {
						continue
					}
				}
				when := stepStart + float64(n.Start)*stepDur
				dur := max(voice.MinDuration, float64(n.Duration)*stepDur)
				plan.Events = append(plan.Events, Event{
					InstrumentID: inst.ID,
					Step:         i,
					Start:        i*song.PatternSteps + n.Start,
					Length:       n.Duration,
					Pitch:        p,
					When:         when,
					Dur:          dur,
					Volume:       vol,
				})
				latest = max(latest, when+dur)
			}
		}
	}
	if len(plan.Events) == 0 {
		latest = float64(len(s.Sequence)) * plan.PatternSpan
	}
	plan.End = latest
	return plan
}
