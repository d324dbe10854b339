package song

// Demo returns a short arrangement for trying the player without a saved
// document: a synth hook, a bass line and a four-on-the-floor beat over two
// sequence steps.
func Demo() *Song {
	s := Default()
	s.BPM = 112
	s.AddInstrument(Bass)

	lead := s.Instrument("synth-1").Pattern("p1")
	for i, p := range []string{"C5", "E5", "G5", "E5", "A5", "G5", "E5", "D5"} {
		lead.Notes = append(lead.Notes, Note{Pitch: p, Start: i * 8, Duration: 6})
	}

	bass := s.Instrument("bass-1").Pattern("p1")
	for i, p := range []string{"C3", "C3", "A2", "A2", "F2", "F2", "G2", "G2"} {
		bass.Notes = append(bass.Notes, Note{Pitch: p, Start: i * 8, Duration: 4})
	}

	beat := s.Instrument("drum-1").Pattern("p1")
	for step := 0; step < PatternSteps; step += 2 {
		switch {
		case step%8 == 0:
			beat.Notes = append(beat.Notes, Note{Pitch: "C3", Start: step, Duration: 1})
		case step%8 == 4:
			beat.Notes = append(beat.Notes, Note{Pitch: "D3", Start: step, Duration: 1})
		}
		beat.Notes = append(beat.Notes, Note{Pitch: "E3", Start: step, Duration: 1})
	}

	s.Sequence = Sequence{
		{{"synth-1", "p1"}, {"drum-1", "p1"}},
		{{"synth-1", "p1"}, {"bass-1", "p1"}, {"drum-1", "p1"}},
	}
	s.CurrentInstrumentID = "synth-1"
	return s
}
