// Package scale restricts authorable pitches to a key and scale.
package scale

import "github.com/cbegin/webdaw-go/internal/pitch"

type Type string

const (
	Major         Type = "major"
	Minor         Type = "minor"
	HarmonicMinor Type = "harmonicMinor"
	Pentatonic    Type = "pentatonic"
	Blues         Type = "blues"
)

// Intervals holds the semitone offsets from the root for every scale.
var Intervals = map[Type][]int{
	Major:         {0, 2, 4, 5, 7, 9, 11},
	Minor:         {0, 2, 3, 5, 7, 8, 10},
	HarmonicMinor: {0, 2, 3, 5, 7, 8, 11},
	Pentatonic:    {0, 3, 5, 7, 10},
	Blues:         {0, 3, 5, 6, 7, 10},
}

// Types lists the scales in display order.
var Types = []Type{Major, Minor, HarmonicMinor, Pentatonic, Blues}

type Key struct {
	Label string
	Value int
}

var Keys = []Key{
	{"C", 0},
	{"C♯/D♭", 1},
	{"D", 2},
	{"D♯/E♭", 3},
	{"E", 4},
	{"F", 5},
	{"F♯/G♭", 6},
	{"G", 7},
	{"G♯/A♭", 8},
	{"A", 9},
	{"A♯/B♭", 10},
	{"B", 11},
}

func (t Type) Valid() bool {
	_, ok := Intervals[t]
	return ok
}

// IsAllowed reports whether p belongs to the scale built on rootKey.
// Unparseable pitches and unknown scales are never allowed.
func IsAllowed(p string, rootKey int, t Type) bool {
	n, err := pitch.Parse(p)
	if err != nil {
		return false
	}
	return ContainsMIDI(n, rootKey, t)
}

// ContainsMIDI is IsAllowed for an already parsed MIDI note number.
func ContainsMIDI(n int, rootKey int, t Type) bool {
	intervals, ok := Intervals[t]
	if !ok {
		return false
	}
	root := ((rootKey % 12) + 12) % 12
	rel := (n%12 - root + 12) % 12
	for _, iv := range intervals {
		if iv == rel {
			return true
		}
	}
	return false
}

// Filter returns the subset of pitches allowed in the scale, keeping order.
func Filter(pitches []string, rootKey int, t Type) []string {
	out := make([]string, 0, len(pitches))
	for _, p := range pitches {
		if IsAllowed(p, rootKey, t) {
			out = append(out, p)
		}
	}
	return out
}
