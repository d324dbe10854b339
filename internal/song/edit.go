package song

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cbegin/webdaw-go/internal/pitch"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrUnknownPattern    = errors.New("unknown pattern")
	ErrInvalidNote       = errors.New("invalid note")
)

// Edge selects which side of a note ResizeNote moves.
type Edge int

const (
	EdgeLeft Edge = iota
	EdgeRight
)

// AddInstrument appends a new instrument of type t, numbered after the
// existing instruments of the same type.
func (s *Song) AddInstrument(t InstrumentType) *Instrument {
	count := 0
	for _, in := range s.Instruments {
		if in.Type == t {
			count++
		}
	}
	inst := NewInstrument(t, count+1)
	for idx := count + 2; s.Instrument(inst.ID) != nil; idx++ {
		inst = NewInstrument(t, idx)
	}
	s.Instruments = append(s.Instruments, inst)
	s.CurrentInstrumentID = inst.ID
	s.CurrentPatternID = inst.Patterns[0].ID
	return &s.Instruments[len(s.Instruments)-1]
}

// RemoveInstrument deletes an instrument. Sequence items that referenced it
// are left in place; playback skips them. Removing the last instrument
// replaces it with a fresh synth.
func (s *Song) RemoveInstrument(id string) error {
	idx := -1
	for i := range s.Instruments {
		if s.Instruments[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownInstrument, id)
	}
	s.Instruments = append(s.Instruments[:idx], s.Instruments[idx+1:]...)
	if len(s.Instruments) == 0 {
		s.Instruments = []Instrument{NewInstrument(Synth, 1)}
	}
	if s.CurrentInstrumentID == id {
		s.CurrentInstrumentID = s.Instruments[0].ID
		s.CurrentPatternID = s.Instruments[0].Patterns[0].ID
	}
	return nil
}

// AddPattern appends an empty pattern using the instrument's default octave
// range and returns it.
func (in *Instrument) AddPattern(name string) *Pattern {
	lo, hi := in.Type.OctaveRange()
	p := Pattern{ID: in.nextPatternID(), Name: name, MinOctave: lo, MaxOctave: hi}
	in.Patterns = append(in.Patterns, p)
	return &in.Patterns[len(in.Patterns)-1]
}

func (in *Instrument) nextPatternID() string {
	for n := len(in.Patterns) + 1; ; n++ {
		id := "p" + strconv.Itoa(n)
		if in.Pattern(id) == nil {
			return id
		}
	}
}

// DeletePattern removes a pattern. Deleting the last pattern leaves a fresh
// empty one in its place.
func (in *Instrument) DeletePattern(id string) error {
	for i := range in.Patterns {
		if in.Patterns[i].ID != id {
			continue
		}
		in.Patterns = append(in.Patterns[:i], in.Patterns[i+1:]...)
		if len(in.Patterns) == 0 {
			in.Patterns = []Pattern{defaultPattern(in.Type)}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownPattern, id)
}

// AddNote appends a note after validating it against the pattern bounds.
func (p *Pattern) AddNote(n Note) error {
	if _, err := pitch.Parse(n.Pitch); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNote, err)
	}
	if n.Start < 0 || n.Start >= PatternSteps {
		return fmt.Errorf("%w: start %d outside pattern", ErrInvalidNote, n.Start)
	}
	if n.Duration < 1 {
		return fmt.Errorf("%w: duration %d", ErrInvalidNote, n.Duration)
	}
	p.Notes = append(p.Notes, n)
	return nil
}

// DeleteNote removes the note at index i.
func (p *Pattern) DeleteNote(i int) {
	if i < 0 || i >= len(p.Notes) {
		return
	}
	p.Notes = append(p.Notes[:i], p.Notes[i+1:]...)
}

// ResizeNote drags one edge of note i to step. Moves that would leave the
// note with a non-positive duration or a negative start are ignored.
func (p *Pattern) ResizeNote(i int, edge Edge, step int) {
	if i < 0 || i >= len(p.Notes) {
		return
	}
	n := &p.Notes[i]
	switch edge {
	case EdgeRight:
		if d := step - n.Start; d > 0 {
			n.Duration = d
		}
	case EdgeLeft:
		end := n.Start + n.Duration
		if d := end - step; d > 0 && step >= 0 {
			n.Start = step
			n.Duration = d
		}
	}
}

// Drag updates a note being drawn from anchor to step, letting the user draw
// backwards. A zero-length drag keeps a one-step note.
func (n *Note) Drag(anchor, step int) {
	d := step - anchor
	if d >= 0 {
		n.Start = anchor
		n.Duration = d
		if n.Duration == 0 {
			n.Duration = 1
		}
		return
	}
	n.Start = step
	n.Duration = anchor - step
}

// FinishNote ends an authoring gesture on note i, deleting it when its drawn
// duration is not positive. It reports whether the note was kept.
func (p *Pattern) FinishNote(i int) bool {
	if i < 0 || i >= len(p.Notes) {
		return false
	}
	if p.Notes[i].Duration <= 0 {
		p.DeleteNote(i)
		return false
	}
	return true
}

// Prune drops notes whose duration is not positive.
func (p *Pattern) Prune() {
	out := p.Notes[:0]
	for _, n := range p.Notes {
		if n.Duration > 0 {
			out = append(out, n)
		}
	}
	p.Notes = out
}

// ToggleDrumHit removes a hit of pitch at step, or adds a one-step hit if
// there is none.
func (p *Pattern) ToggleDrumHit(pitchName string, step int) error {
	for i, n := range p.Notes {
		if n.Pitch == pitchName && n.Start == step {
			p.DeleteNote(i)
			return nil
		}
	}
	return p.AddNote(Note{Pitch: pitchName, Start: step, Duration: 1})
}

// SanitizeDrumNotes forces every hit to one step.
func (p *Pattern) SanitizeDrumNotes() {
	for i := range p.Notes {
		p.Notes[i].Duration = 1
	}
}

// PitchRange lists the editable rows of a piano roll from the highest pitch
// in maxOctave down to C of minOctave.
func PitchRange(minOctave, maxOctave int) []string {
	var out []string
	for oct := maxOctave; oct >= minOctave; oct-- {
		for pc := 11; pc >= 0; pc-- {
			n := (oct+1)*12 + pc
			if n < pitch.MinMIDI || n > pitch.MaxMIDI {
				continue
			}
			out = append(out, pitch.Name(n))
		}
	}
	return out
}

// Place puts pattern patternID of an instrument on step index, growing the
// sequence as needed. An instrument plays at most one pattern per step, so
// an existing item for the same instrument is replaced.
func (s *Song) Place(index int, instrumentID, patternID string) error {
	if index < 0 {
		return fmt.Errorf("negative step %d", index)
	}
	if _, p := s.Pattern(instrumentID, patternID); p == nil {
		return fmt.Errorf("%w: %s/%s", ErrUnknownPattern, instrumentID, patternID)
	}
	for len(s.Sequence) <= index {
		s.Sequence = append(s.Sequence, Step{})
	}
	step := s.Sequence[index]
	for i := range step {
		if step[i].InstrumentID == instrumentID {
			step[i].PatternID = patternID
			return nil
		}
	}
	s.Sequence[index] = append(step, Item{InstrumentID: instrumentID, PatternID: patternID})
	return nil
}

// Unplace removes the instrument's item from step index.
func (s *Song) Unplace(index int, instrumentID string) {
	if index < 0 || index >= len(s.Sequence) {
		return
	}
	step := s.Sequence[index]
	for i := range step {
		if step[i].InstrumentID == instrumentID {
			s.Sequence[index] = append(step[:i], step[i+1:]...)
			return
		}
	}
}

// RemoveStep deletes step index from the timeline.
func (s *Song) RemoveStep(index int) {
	if index < 0 || index >= len(s.Sequence) {
		return
	}
	s.Sequence = append(s.Sequence[:index], s.Sequence[index+1:]...)
}
