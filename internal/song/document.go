package song

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/webdaw-go/internal/scale"
)

// Format selects the serialization of a song document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// FormatForPath picks a format from a file extension; anything that is not
// YAML is treated as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// The document mirrors the browser storage layout. Optional fields are
// pointers so that missing values can be told apart from zero.
type (
	document struct {
		Instruments         []docInstrument `json:"instruments" yaml:"instruments"`
		Sequence            [][]docItem     `json:"sequence,omitempty" yaml:"sequence,omitempty"`
		BPM                 *float64        `json:"bpm,omitempty" yaml:"bpm,omitempty"`
		RootKey             *int            `json:"rootKey,omitempty" yaml:"rootKey,omitempty"`
		Scale               string          `json:"scale,omitempty" yaml:"scale,omitempty"`
		CurrentInstrumentID string          `json:"currentInstrumentId,omitempty" yaml:"currentInstrumentId,omitempty"`
		CurrentPatternID    string          `json:"currentPatternId,omitempty" yaml:"currentPatternId,omitempty"`
	}

	docInstrument struct {
		ID       string       `json:"id" yaml:"id"`
		Name     string       `json:"name" yaml:"name"`
		Type     string       `json:"type,omitempty" yaml:"type,omitempty"`
		Volume   *int         `json:"volume,omitempty" yaml:"volume,omitempty"`
		Detune   *int         `json:"detune,omitempty" yaml:"detune,omitempty"`
		Decay    *int         `json:"decay,omitempty" yaml:"decay,omitempty"`
		Reverb   *int         `json:"reverb,omitempty" yaml:"reverb,omitempty"`
		Patterns []docPattern `json:"patterns" yaml:"patterns"`
	}

	docPattern struct {
		ID        string   `json:"id" yaml:"id"`
		Name      string   `json:"name" yaml:"name"`
		Track     docTrack `json:"track" yaml:"track"`
		MinOctave *int     `json:"minOctave,omitempty" yaml:"minOctave,omitempty"`
		MaxOctave *int     `json:"maxOctave,omitempty" yaml:"maxOctave,omitempty"`
	}

	docTrack struct {
		Notes []docNote `json:"notes" yaml:"notes,flow"`
	}

	docNote struct {
		Pitch    docPitch `json:"pitch" yaml:"pitch"`
		Start    int      `json:"start" yaml:"start"`
		Duration int      `json:"duration" yaml:"duration"`
	}

	docItem struct {
		InstrumentID string `json:"instrumentId" yaml:"instrumentId"`
		PatternID    string `json:"patternId" yaml:"patternId"`
	}

	// docPitch accepts both "C4" and 261.63 in JSON.
	docPitch string
)

func (p *docPitch) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = docPitch(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("pitch must be a note name or a frequency: %w", err)
	}
	*p = docPitch(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// Encode serializes s.
func Encode(s *Song, f Format) ([]byte, error) {
	doc := toDocument(s)
	if f == FormatYAML {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a document, applies the defaulting rules (volume 80, root
// key 0, major scale, per-type octave range) and normalizes the result.
func Decode(data []byte, f Format) (*Song, error) {
	var doc document
	var err error
	if f == FormatYAML {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode song: %w", err)
	}
	s := fromDocument(doc)
	s.Normalize()
	return s, nil
}

func toDocument(s *Song) document {
	doc := document{
		Instruments:         make([]docInstrument, len(s.Instruments)),
		BPM:                 ptr(s.BPM),
		RootKey:             ptr(s.RootKey),
		Scale:               string(s.Scale),
		CurrentInstrumentID: s.CurrentInstrumentID,
		CurrentPatternID:    s.CurrentPatternID,
	}
	for i, in := range s.Instruments {
		di := docInstrument{
			ID:       in.ID,
			Name:     in.Name,
			Type:     string(in.Type),
			Volume:   ptr(in.Volume),
			Detune:   ptr(in.Detune),
			Decay:    ptr(in.Decay),
			Reverb:   ptr(in.Reverb),
			Patterns: make([]docPattern, len(in.Patterns)),
		}
		for j, p := range in.Patterns {
			dp := docPattern{
				ID:        p.ID,
				Name:      p.Name,
				MinOctave: ptr(p.MinOctave),
				MaxOctave: ptr(p.MaxOctave),
				Track:     docTrack{Notes: make([]docNote, len(p.Notes))},
			}
			for k, n := range p.Notes {
				dp.Track.Notes[k] = docNote{Pitch: docPitch(n.Pitch), Start: n.Start, Duration: n.Duration}
			}
			di.Patterns[j] = dp
		}
		doc.Instruments[i] = di
	}
	for _, step := range s.Sequence {
		ds := make([]docItem, len(step))
		for i, it := range step {
			ds[i] = docItem{InstrumentID: it.InstrumentID, PatternID: it.PatternID}
		}
		doc.Sequence = append(doc.Sequence, ds)
	}
	return doc
}

func fromDocument(doc document) *Song {
	s := &Song{
		BPM:                 deref(doc.BPM, DefaultBPM),
		RootKey:             deref(doc.RootKey, 0),
		Scale:               scale.Type(doc.Scale),
		CurrentInstrumentID: doc.CurrentInstrumentID,
		CurrentPatternID:    doc.CurrentPatternID,
	}
	if s.Scale == "" {
		s.Scale = scale.Major
	}
	for _, di := range doc.Instruments {
		t := InstrumentType(di.Type)
		if !t.Valid() {
			t = Synth
		}
		lo, hi := t.OctaveRange()
		in := Instrument{
			ID:     di.ID,
			Name:   di.Name,
			Type:   t,
			Volume: deref(di.Volume, DefaultVolume),
			Detune: deref(di.Detune, 0),
			Decay:  deref(di.Decay, DefaultDecay),
			Reverb: deref(di.Reverb, 0),
		}
		for _, dp := range di.Patterns {
			p := Pattern{
				ID:        dp.ID,
				Name:      dp.Name,
				MinOctave: deref(dp.MinOctave, lo),
				MaxOctave: deref(dp.MaxOctave, hi),
			}
			for _, dn := range dp.Track.Notes {
				p.Notes = append(p.Notes, Note{Pitch: string(dn.Pitch), Start: dn.Start, Duration: dn.Duration})
			}
			in.Patterns = append(in.Patterns, p)
		}
		s.Instruments = append(s.Instruments, in)
	}
	for _, ds := range doc.Sequence {
		step := make(Step, 0, len(ds))
		for _, it := range ds {
			step = append(step, Item{InstrumentID: it.InstrumentID, PatternID: it.PatternID})
		}
		s.Sequence = append(s.Sequence, step)
	}
	if len(s.Instruments) == 0 {
		def := Default()
		s.Instruments = def.Instruments
		if len(s.Sequence) == 0 {
			s.Sequence = def.Sequence
		}
	}
	return s
}

func ptr[T any](v T) *T { return &v }

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
