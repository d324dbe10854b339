package voice

import (
	"math"
	"time"

	"github.com/cbegin/webdaw-go/internal/song"
)

const (
	// SilenceDB is the level used for a linear gain of zero.
	SilenceDB = -100.0
	// GainRamp is how long a volume change takes to settle.
	GainRamp = 50 * time.Millisecond
	// MinDuration is the shortest note, in seconds, a trigger will play.
	MinDuration = 0.05
)

// corrections loudness-match the instrument families against each other.
var corrections = map[song.InstrumentType]float64{
	song.Synth:            1.0,
	song.Pad:              0.8,
	song.Bass:             1.2,
	song.Drum:             1.0,
	song.Piano:            1.4,
	song.ElectricPiano:    1.3,
	song.Guitar:           1.5,
	song.Strings:          1.1,
	song.DistortionGuitar: 0.7,
	song.Trombone:         1.2,
	song.Choir:            1.0,
}

// Correction returns the gain multiplier for an instrument family; unknown
// families are left at unity.
func Correction(t song.InstrumentType) float64 {
	if c, ok := corrections[t]; ok {
		return c
	}
	return 1
}

// CorrectedGain applies the family correction to a linear volume, clamped
// at zero.
func CorrectedGain(t song.InstrumentType, linear float64) float64 {
	return max(0, linear*Correction(t))
}

// ToDB converts a linear gain to decibels, flooring at SilenceDB.
func ToDB(linear float64) float64 {
	if linear <= 0 || math.IsNaN(linear) {
		return SilenceDB
	}
	return max(SilenceDB, 20*math.Log10(linear))
}

// VolumeDB is the level SetVolume ramps a synth voice of family t to.
func VolumeDB(t song.InstrumentType, linear float64) float64 {
	return ToDB(CorrectedGain(t, linear))
}
