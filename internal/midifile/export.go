// Package midifile exports an arrangement as a Standard MIDI File.
package midifile

import (
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/webdaw-go/internal/pitch"
	"github.com/cbegin/webdaw-go/internal/scheduler"
	"github.com/cbegin/webdaw-go/internal/song"
)

const (
	// TicksPerQuarter is the file resolution; a step is a sixteenth.
	TicksPerQuarter = 960
	TicksPerStep    = TicksPerQuarter / 4

	// DrumChannel is General MIDI channel 10.
	DrumChannel = 9
)

// programs are General MIDI program numbers per family, zero based.
var programs = map[song.InstrumentType]uint8{
	song.Synth:            81, // lead 2 (sawtooth)
	song.Pad:              89, // pad 2 (warm)
	song.Bass:             38, // synth bass 1
	song.Piano:            0,
	song.ElectricPiano:    4,
	song.Guitar:           25,
	song.Strings:          48,
	song.DistortionGuitar: 30,
	song.Trombone:         57,
	song.Choir:            52,
}

type timed struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// Build converts s into an SMF: a conductor track with meter and tempo, then
// one track per instrument that has notes in the arrangement. Unresolvable
// pitches are skipped the same way playback skips them.
func Build(s *song.Song) (*smf.SMF, error) {
	plan := scheduler.Build(s, scheduler.PitchTable(s))
	byInstrument := make(map[string][]scheduler.Event)
	for _, ev := range plan.Events {
		byInstrument[ev.InstrumentID] = append(byInstrument[ev.InstrumentID], ev)
	}

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	bpm := s.BPM
	if bpm <= 0 {
		bpm = song.DefaultBPM
	}
	var conductor smf.Track
	conductor.Add(0, smf.MetaMeter(4, 4))
	conductor.Add(0, smf.MetaTempo(bpm))
	conductor.Close(0)
	if err := file.Add(conductor); err != nil {
		return nil, fmt.Errorf("midifile: conductor track: %w", err)
	}

	next := uint8(0)
	for i := range s.Instruments {
		in := &s.Instruments[i]
		events := byInstrument[in.ID]
		if len(events) == 0 {
			continue
		}
		ch := uint8(DrumChannel)
		if in.Type != song.Drum {
			ch = next
			if next++; next == DrumChannel {
				next++
			}
			next %= 16
		}
		track := instrumentTrack(in, ch, events)
		if err := file.Add(track); err != nil {
			return nil, fmt.Errorf("midifile: track %s: %w", in.ID, err)
		}
	}
	return file, nil
}

func instrumentTrack(in *song.Instrument, ch uint8, events []scheduler.Event) smf.Track {
	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(in.Name))
	if ch != DrumChannel {
		track.Add(0, midi.ProgramChange(ch, programs[in.Type]))
	}
	velocity := uint8(max(1, min(127, 1+in.Volume*126/100)))

	var notes []timed
	for _, ev := range events {
		key, err := pitch.Parse(ev.Pitch.Name)
		if err != nil {
			continue
		}
		start := uint32(ev.Start) * TicksPerStep
		end := start + uint32(max(1, ev.Length))*TicksPerStep
		notes = append(notes,
			timed{tick: start, msg: midi.NoteOn(ch, uint8(key), velocity)},
			timed{tick: end, off: true, msg: midi.NoteOff(ch, uint8(key))},
		)
	}
	// note-offs sort ahead of note-ons on the same tick so repeated notes
	// retrigger
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].tick != notes[j].tick {
			return notes[i].tick < notes[j].tick
		}
		return notes[i].off && !notes[j].off
	})
	var last uint32
	for _, n := range notes {
		track.Add(n.tick-last, n.msg)
		last = n.tick
	}
	track.Close(0)
	return track
}

// Export writes s to w as a Standard MIDI File.
func Export(w io.Writer, s *song.Song) error {
	file, err := Build(s)
	if err != nil {
		return err
	}
	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("midifile: write: %w", err)
	}
	return nil
}
