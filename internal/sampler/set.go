// Package sampler plays instrument families from recorded WAV samples.
package sampler

import (
	"path"
	"sort"
	"strings"

	"github.com/cbegin/webdaw-go/internal/pitch"
	"github.com/cbegin/webdaw-go/internal/song"
)

// Set maps root pitches to sample files inside a sample filesystem.
type Set struct {
	Name string
	// Kit sets play each sample as a one-shot at its own pitch and never
	// repitch it.
	Kit   bool
	Files map[string]string // canonical pitch name -> file path
}

// Roots returns the root pitches of the set, lowest first.
func (s Set) Roots() []string {
	roots := make([]string, 0, len(s.Files))
	for r := range s.Files {
		roots = append(roots, r)
	}
	sort.Slice(roots, func(i, j int) bool {
		a, _ := pitch.Parse(roots[i])
		b, _ := pitch.Parse(roots[j])
		return a < b
	})
	return roots
}

// DrumKit is the fixed kit: C3 kick, D3 snare, E3 hi-hat.
var DrumKit = Set{
	Name: "drums",
	Kit:  true,
	Files: map[string]string{
		"C3": "drums/kick.wav",
		"D3": "drums/snare.wav",
		"E3": "drums/hihat.wav",
	},
}

var sampled = []song.InstrumentType{
	song.Piano, song.ElectricPiano, song.Guitar, song.Strings,
	song.DistortionGuitar, song.Trombone, song.Choir,
}

// SetFor returns the sample set of a family. Synth families have none.
func SetFor(t song.InstrumentType) (Set, bool) {
	if t == song.Drum {
		return DrumKit, true
	}
	for _, s := range sampled {
		if s == t {
			return pitchedSet(t), true
		}
	}
	return Set{}, false
}

// pitchedSet has a root every half octave (C and F#) across the family's
// octave range plus one octave above it. Files are named after the root
// with '#' spelled 's', as in piano/Fs3.wav.
func pitchedSet(t song.InstrumentType) Set {
	lo, hi := t.OctaveRange()
	s := Set{Name: string(t), Files: make(map[string]string)}
	for oct := lo; oct <= hi+1; oct++ {
		for _, pc := range []int{0, 6} {
			name := pitch.Name((oct+1)*12 + pc)
			s.Files[name] = path.Join(s.Name, strings.ReplaceAll(name, "#", "s")+".wav")
		}
	}
	return s
}
