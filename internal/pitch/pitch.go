package pitch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalid is returned for pitch strings that are neither a note name nor
// a positive frequency.
var ErrInvalid = errors.New("invalid pitch")

const (
	MinMIDI = 0
	MaxMIDI = 127

	refNote = 69
	refFreq = 440.0
)

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Parse converts a pitch to a MIDI note number. Accepted forms are note names
// with an optional accidental and a signed octave ("C4", "F#3", "Db5",
// "A-1") where C4 = 60, and plain frequencies in Hz ("440", "261.63") which
// are rounded to the nearest note.
func Parse(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalid
	}
	if _, ok := noteOffsets[lower(s[0])]; !ok {
		return parseFrequency(s)
	}
	base := noteOffsets[lower(s[0])]
	i, shift := 1, 0
	for i < len(s) {
		switch s[i] {
		case '#', '+':
			shift++
			i++
			continue
		case 'b':
			// "b" only counts as a flat when an octave number follows.
			if i+1 < len(s) && (isDigit(s[i+1]) || s[i+1] == '-') {
				shift--
				i++
				continue
			}
		}
		break
	}
	if i >= len(s) {
		return 0, fmt.Errorf("%w: %q has no octave", ErrInvalid, s)
	}
	oct, err := strconv.Atoi(s[i:])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	n := (oct+1)*12 + base + shift
	if n < MinMIDI || n > MaxMIDI {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalid, s)
	}
	return n, nil
}

func parseFrequency(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	n := FreqToMIDI(f)
	if n < MinMIDI || n > MaxMIDI {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalid, s)
	}
	return n, nil
}

// Frequency returns the frequency in Hz for a pitch string. Numeric pitches
// keep their exact value rather than snapping to the nearest note.
func Frequency(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s != "" {
		if _, ok := noteOffsets[lower(s[0])]; !ok {
			f, err := strconv.ParseFloat(s, 64)
			if err == nil && f > 0 && !math.IsInf(f, 0) {
				return f, nil
			}
			return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
	}
	n, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return MIDIToFreq(n), nil
}

// Name returns the sharp-spelled name of a MIDI note, e.g. 61 -> "C#4".
func Name(n int) string {
	oct := n/12 - 1
	pc := n % 12
	if pc < 0 {
		pc += 12
		oct--
	}
	return sharpNames[pc] + strconv.Itoa(oct)
}

// Canonical returns the sharp-spelled note name for any parseable pitch,
// so "Db4" and "277.18" both become "C#4".
func Canonical(s string) (string, error) {
	n, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Name(n), nil
}

func MIDIToFreq(n int) float64 {
	return refFreq * math.Pow(2, float64(n-refNote)/12)
}

func FreqToMIDI(f float64) int {
	return int(math.Round(refNote + 12*math.Log2(f/refFreq)))
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
