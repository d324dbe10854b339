package song

import (
	"strconv"
	"strings"
)

// InstrumentType is the timbre category of an instrument.
type InstrumentType string

const (
	Synth            InstrumentType = "synth"
	Pad              InstrumentType = "pad"
	Bass             InstrumentType = "bass"
	Drum             InstrumentType = "drum"
	Piano            InstrumentType = "piano"
	ElectricPiano    InstrumentType = "ep"
	Guitar           InstrumentType = "guitar"
	Strings          InstrumentType = "strings"
	DistortionGuitar InstrumentType = "distortion_guitar"
	Trombone         InstrumentType = "trombone"
	Choir            InstrumentType = "choir"
)

// InstrumentTypes lists every category in menu order.
var InstrumentTypes = []InstrumentType{
	Synth, Pad, Bass, Drum, Piano, ElectricPiano, Guitar, Strings,
	DistortionGuitar, Trombone, Choir,
}

var Labels = map[InstrumentType]string{
	Synth:            "Synth",
	Pad:              "Pad",
	Bass:             "Bass",
	Drum:             "Drum",
	Piano:            "Piano",
	ElectricPiano:    "Electric Piano",
	Guitar:           "Guitar",
	Strings:          "Strings",
	DistortionGuitar: "Distortion Guitar",
	Trombone:         "Trombone",
	Choir:            "Choir",
}

// OctaveRanges are the default editable octave ranges per category.
var OctaveRanges = map[InstrumentType][2]int{
	Drum:             {3, 4},
	Bass:             {2, 4},
	Piano:            {3, 6},
	ElectricPiano:    {3, 6},
	Guitar:           {3, 6},
	Strings:          {3, 6},
	Pad:              {3, 7},
	Synth:            {4, 6},
	DistortionGuitar: {3, 6},
	Trombone:         {2, 5},
	Choir:            {3, 6},
}

func (t InstrumentType) Valid() bool {
	_, ok := Labels[t]
	return ok
}

// OctaveRange returns the default range for t, falling back to the synth
// range for unknown categories.
func (t InstrumentType) OctaveRange() (int, int) {
	r, ok := OctaveRanges[t]
	if !ok {
		r = OctaveRanges[Synth]
	}
	return r[0], r[1]
}

const (
	DefaultVolume = 80
	DefaultDecay  = 50
)

// NewInstrument builds an instrument of type t numbered index, with its
// default pattern.
func NewInstrument(t InstrumentType, index int) Instrument {
	if !t.Valid() {
		t = Synth
	}
	return Instrument{
		ID:       string(t) + "-" + strconv.Itoa(index),
		Name:     displayName(t) + " " + strconv.Itoa(index),
		Type:     t,
		Volume:   DefaultVolume,
		Detune:   0,
		Decay:    DefaultDecay,
		Reverb:   0,
		Patterns: []Pattern{defaultPattern(t)},
	}
}

func defaultPattern(t InstrumentType) Pattern {
	lo, hi := t.OctaveRange()
	name := "Pattern 1"
	if t == Drum {
		name = "Beat 1"
	}
	return Pattern{ID: "p1", Name: name, MinOctave: lo, MaxOctave: hi}
}

func displayName(t InstrumentType) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// DrumPad is one row of the drum roll.
type DrumPad struct {
	Pitch string
	Name  string
}

// DrumKit lists the pads top to bottom.
var DrumKit = []DrumPad{
	{Pitch: "E3", Name: "Hi-Hat"},
	{Pitch: "D3", Name: "Snare"},
	{Pitch: "C3", Name: "Kick"},
}
