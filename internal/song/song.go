// Package song holds the sequencer's document model: instruments own
// patterns of notes, and the sequence arranges patterns on a step timeline.
package song

import (
	"slices"

	"github.com/cbegin/webdaw-go/internal/scale"
)

// PatternSteps is the fixed length of every pattern in sixteenth-note steps.
const PatternSteps = 64

const DefaultBPM = 120

type (
	// Song is the whole document. At least one instrument always exists.
	Song struct {
		BPM         float64
		RootKey     int
		Scale       scale.Type
		Instruments []Instrument
		Sequence    Sequence

		// Editor selection, persisted with the document.
		CurrentInstrumentID string
		CurrentPatternID    string
	}

	// Instrument owns at least one pattern. ID is the key used by the
	// sequence and by the voice layer.
	Instrument struct {
		ID       string
		Name     string
		Type     InstrumentType
		Volume   int // 0..100
		Detune   int // cents
		Decay    int // 0..100
		Reverb   int // 0..100
		Patterns []Pattern
	}

	Pattern struct {
		ID        string
		Name      string
		Notes     []Note
		MinOctave int
		MaxOctave int
	}

	// Note is positioned in steps relative to the start of its pattern.
	// Pitch is a note name such as "C4" or a frequency in Hz such as "440".
	Note struct {
		Pitch    string
		Start    int
		Duration int
	}

	// Sequence is the arrangement timeline; step i starts at
	// i*PatternSteps sixteenths.
	Sequence []Step

	// Step holds at most one item per instrument.
	Step []Item

	Item struct {
		InstrumentID string
		PatternID    string
	}
)

// Default returns the starter document: a synth and a drum instrument with
// their first patterns arranged on one step.
func Default() *Song {
	synth := NewInstrument(Synth, 1)
	drum := NewInstrument(Drum, 1)
	return &Song{
		BPM:                 DefaultBPM,
		Scale:               scale.Major,
		Instruments:         []Instrument{synth, drum},
		Sequence:            Sequence{{{synth.ID, "p1"}, {drum.ID, "p1"}}},
		CurrentInstrumentID: synth.ID,
		CurrentPatternID:    "p1",
	}
}

// Instrument returns the instrument with the given id, or nil.
func (s *Song) Instrument(id string) *Instrument {
	for i := range s.Instruments {
		if s.Instruments[i].ID == id {
			return &s.Instruments[i]
		}
	}
	return nil
}

// Pattern resolves a sequence item. Both lookups may fail after deletions.
func (s *Song) Pattern(instrumentID, patternID string) (*Instrument, *Pattern) {
	inst := s.Instrument(instrumentID)
	if inst == nil {
		return nil, nil
	}
	return inst, inst.Pattern(patternID)
}

func (in *Instrument) Pattern(id string) *Pattern {
	for i := range in.Patterns {
		if in.Patterns[i].ID == id {
			return &in.Patterns[i]
		}
	}
	return nil
}

// Pitches returns every distinct pitch string referenced by any note.
func (s *Song) Pitches() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, inst := range s.Instruments {
		for _, p := range inst.Patterns {
			for _, n := range p.Notes {
				if _, ok := seen[n.Pitch]; ok {
					continue
				}
				seen[n.Pitch] = struct{}{}
				out = append(out, n.Pitch)
			}
		}
	}
	return out
}

// NoteCount returns the number of notes the sequence would play.
func (s *Song) NoteCount() int {
	n := 0
	for _, step := range s.Sequence {
		for _, it := range step {
			if _, p := s.Pattern(it.InstrumentID, it.PatternID); p != nil {
				n += len(p.Notes)
			}
		}
	}
	return n
}

// Clone returns a deep copy.
func (s *Song) Clone() *Song {
	out := *s
	out.Instruments = make([]Instrument, len(s.Instruments))
	for i, inst := range s.Instruments {
		out.Instruments[i] = inst.clone()
	}
	out.Sequence = make(Sequence, len(s.Sequence))
	for i, step := range s.Sequence {
		out.Sequence[i] = slices.Clone(step)
	}
	return &out
}

func (in Instrument) clone() Instrument {
	out := in
	out.Patterns = make([]Pattern, len(in.Patterns))
	for i, p := range in.Patterns {
		p.Notes = slices.Clone(p.Notes)
		out.Patterns[i] = p
	}
	return out
}

// Normalize restores the model invariants on a document that may have been
// edited by hand or loaded from an older format.
func (s *Song) Normalize() {
	if s.BPM <= 0 {
		s.BPM = DefaultBPM
	}
	s.RootKey = ((s.RootKey % 12) + 12) % 12
	if !s.Scale.Valid() {
		s.Scale = scale.Major
	}
	if len(s.Instruments) == 0 {
		s.Instruments = []Instrument{NewInstrument(Synth, 1)}
	}
	for i := range s.Instruments {
		s.Instruments[i].normalize()
	}
	for i, step := range s.Sequence {
		s.Sequence[i] = dedupeStep(step)
	}
	if s.Instrument(s.CurrentInstrumentID) == nil {
		s.CurrentInstrumentID = s.Instruments[0].ID
		s.CurrentPatternID = s.Instruments[0].Patterns[0].ID
	} else if s.Instrument(s.CurrentInstrumentID).Pattern(s.CurrentPatternID) == nil {
		s.CurrentPatternID = s.Instrument(s.CurrentInstrumentID).Patterns[0].ID
	}
}

func (in *Instrument) normalize() {
	if !in.Type.Valid() {
		in.Type = Synth
	}
	in.Volume = clampInt(in.Volume, 0, 100)
	in.Decay = clampInt(in.Decay, 0, 100)
	in.Reverb = clampInt(in.Reverb, 0, 100)
	in.Detune = clampInt(in.Detune, -100, 100)
	if len(in.Patterns) == 0 {
		in.Patterns = []Pattern{defaultPattern(in.Type)}
	}
	for i := range in.Patterns {
		p := &in.Patterns[i]
		if p.MinOctave >= p.MaxOctave {
			p.MinOctave, p.MaxOctave = in.Type.OctaveRange()
		}
		p.Prune()
	}
}

// dedupeStep keeps the last item for each instrument.
func dedupeStep(step Step) Step {
	out := make(Step, 0, len(step))
	for _, it := range step {
		replaced := false
		for j := range out {
			if out[j].InstrumentID == it.InstrumentID {
				out[j] = it
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, it)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
