package song

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cbegin/webdaw-go/internal/scale"
)

func sampleSong() *Song {
	s := Default()
	s.BPM = 96
	s.RootKey = 9
	s.Scale = scale.Minor
	synth := s.Instrument("synth-1")
	synth.Detune = -12
	synth.Reverb = 30
	synth.Patterns[0].Notes = []Note{{"A4", 0, 4}, {"C5", 4, 2}, {"440", 8, 8}}
	s.Instrument("drum-1").Patterns[0].Notes = []Note{{"C3", 0, 1}, {"D3", 4, 1}}
	bass := s.AddInstrument(Bass)
	bass.Patterns[0].Notes = []Note{{"A2", 0, 16}}
	_ = s.Place(1, bass.ID, "p1")
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatYAML} {
		want := sampleSong()
		data, err := Encode(want, f)
		if err != nil {
			t.Fatalf("encode %v: %v", f, err)
		}
		got, err := Decode(data, f)
		if err != nil {
			t.Fatalf("decode %v: %v", f, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("format %v round trip mismatch:\n got %+v\nwant %+v", f, got, want)
		}
	}
}

func TestDecodeAppliesDefaults(t *testing.T) {
	doc := `{
      "instruments": [
        {"id": "lead", "name": "Lead", "patterns": [
          {"id": "p1", "name": "A", "track": {"notes": [
            {"pitch": "C4", "start": 0, "duration": 4},
            {"pitch": 261.63, "start": 4, "duration": 4}
          ]}}
        ]},
        {"id": "kit", "name": "Kit", "type": "drum", "patterns": [
          {"id": "p1", "name": "B", "track": {"notes": []}}
        ]}
      ],
      "sequence": [[{"instrumentId": "lead", "patternId": "p1"}]]
    }`
	s, err := Decode([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if s.BPM != DefaultBPM || s.RootKey != 0 || s.Scale != scale.Major {
		t.Fatalf("song defaults: bpm=%v root=%d scale=%s", s.BPM, s.RootKey, s.Scale)
	}
	lead := s.Instrument("lead")
	if lead.Type != Synth || lead.Volume != DefaultVolume || lead.Decay != DefaultDecay {
		t.Fatalf("instrument defaults: %+v", lead)
	}
	if p := lead.Patterns[0]; p.MinOctave != 4 || p.MaxOctave != 6 {
		t.Fatalf("synth octave range = %d..%d", p.MinOctave, p.MaxOctave)
	}
	if got := lead.Patterns[0].Notes[1].Pitch; got != "261.63" {
		t.Fatalf("numeric pitch = %q", got)
	}
	if p := s.Instrument("kit").Patterns[0]; p.MinOctave != 3 || p.MaxOctave != 4 {
		t.Fatalf("drum octave range = %d..%d", p.MinOctave, p.MaxOctave)
	}
	if s.CurrentInstrumentID != "lead" {
		t.Fatalf("selection = %s", s.CurrentInstrumentID)
	}
}

func TestDecodeEmptyDocumentYieldsStarter(t *testing.T) {
	s, err := Decode([]byte(`{"instruments": []}`), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Instruments) != 2 || len(s.Sequence) != 1 {
		t.Fatalf("starter song = %+v", s)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte(`{"instruments": [{"patterns": [{"track": {"notes": [{"pitch": true}]}}]}]}`), FormatJSON); err == nil {
		t.Fatal("expected error for boolean pitch")
	}
	if _, err := Decode([]byte("not json"), FormatJSON); err == nil {
		t.Fatal("expected error")
	}
}

func TestFormatForPath(t *testing.T) {
	cases := map[string]Format{
		"song.json": FormatJSON,
		"song.YAML": FormatYAML,
		"song.yml":  FormatYAML,
		"song":      FormatJSON,
	}
	for path, want := range cases {
		if got := FormatForPath(path); got != want {
			t.Errorf("FormatForPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	st := NewFileStore(filepath.Join(dir, "songs"), FormatYAML)
	if _, err := st.Load(DefaultKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key err = %v", err)
	}
	want := sampleSong()
	if err := st.Save(DefaultKey, want); err != nil {
		t.Fatal(err)
	}
	got, err := st.Load(DefaultKey)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatal("file store round trip mismatch")
	}
	if err := st.Save("../escape", want); err == nil {
		t.Fatal("expected invalid key error")
	}
}

func TestMemoryStoreDecodesRawDocuments(t *testing.T) {
	st := NewMemoryStore()
	st.Put("k", []byte(`{"instruments": [{"id": "x", "name": "X", "patterns": []}], "bpm": 140}`))
	s, err := st.Load("k")
	if err != nil {
		t.Fatal(err)
	}
	if s.BPM != 140 || len(s.Instruments[0].Patterns) != 1 {
		t.Fatalf("loaded %+v", s)
	}
	if _, err := st.Load("other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.json")
	want := sampleSong()
	if err := SaveFile(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatal("round trip mismatch")
	}
}
