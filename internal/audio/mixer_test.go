package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
)

type constant struct {
	l, r   float32
	starts []int64
}

func (c *constant) Render(dst []float32, start int64) {
	c.starts = append(c.starts, start)
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i] += c.l
		dst[i+1] += c.r
	}
}

func TestMixerClockAdvancesByFrames(t *testing.T) {
	m := NewMixer(48000, WithMaster(nil))
	c := &constant{}
	m.Add(c)
	buf := make([]float32, 960)
	m.Process(buf)
	m.Process(buf)
	if got := m.Frame(); got != 960 {
		t.Fatalf("frame = %d, want 960", got)
	}
	if got := m.Now(); math.Abs(got-0.02) > 1e-9 {
		t.Fatalf("now = %v, want 0.02", got)
	}
	if len(c.starts) != 2 || c.starts[0] != 0 || c.starts[1] != 480 {
		t.Fatalf("render starts = %v", c.starts)
	}
	if got := m.FrameAt(0.5); got != 24000 {
		t.Fatalf("FrameAt(0.5) = %d", got)
	}
}

func TestMixerSumsAndClamps(t *testing.T) {
	var tapped int
	m := NewMixer(44100, WithMaster(nil), WithTap(func(b []float32) { tapped += len(b) }))
	m.Add(&constant{l: 0.25, r: -0.5})
	m.Add(&constant{l: 0.25, r: -0.75})
	buf := make([]float32, 8)
	m.Process(buf)
	if buf[0] != 0.5 || buf[1] != -1 {
		t.Fatalf("mixed frame = %v %v", buf[0], buf[1])
	}
	if tapped != 8 {
		t.Fatalf("tap saw %d samples", tapped)
	}

	m.SetGain(0.5)
	m.Process(buf)
	if buf[0] != 0.25 || buf[1] != -0.625 {
		t.Fatalf("gain not applied: %v %v", buf[0], buf[1])
	}
}

func TestMixerRemove(t *testing.T) {
	m := NewMixer(44100, WithMaster(nil))
	a, b := &constant{l: 1}, &constant{l: 1}
	m.Add(a)
	m.Add(b)
	if !m.Remove(a) {
		t.Fatal("remove should find a")
	}
	if m.Remove(a) {
		t.Fatal("second remove should report false")
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d", m.Len())
	}
	buf := make([]float32, 4)
	m.Process(buf)
	if len(a.starts) != 0 || len(b.starts) != 1 {
		t.Fatalf("removed renderer still called: %d %d", len(a.starts), len(b.starts))
	}
}

func TestMixerDefaultMasterLimitsLoudSignal(t *testing.T) {
	m := NewMixer(44100)
	m.Add(&constant{l: 1, r: 1})
	buf := make([]float32, 4410)
	m.Process(buf)
	if last := buf[len(buf)-2]; last >= 1 || last <= 0 {
		t.Fatalf("master compressor should pull the level down, got %v", last)
	}
}

func TestStreamReaderEncodesFloat32(t *testing.T) {
	m := NewMixer(44100, WithMaster(nil))
	m.Add(&constant{l: 0.5, r: -0.25})
	r := NewStreamReader(m)
	p := make([]byte, 17)
	n, err := r.Read(p)
	if err != nil || n != 16 {
		t.Fatalf("read = %d, %v", n, err)
	}
	l := math.Float32frombits(binary.LittleEndian.Uint32(p[0:]))
	rr := math.Float32frombits(binary.LittleEndian.Uint32(p[4:]))
	if l != 0.5 || rr != -0.25 {
		t.Fatalf("decoded %v %v", l, rr)
	}
	if m.Frame() != 2 {
		t.Fatalf("frame = %d", m.Frame())
	}
	_ = r.Close()
	if _, err := r.Read(p); err != io.EOF {
		t.Fatalf("read after close = %v", err)
	}
}

func TestOutputClosedRefusesResume(t *testing.T) {
	o := NewOutput(NewMixer(44100))
	if err := o.Close(); err != nil {
		t.Fatal(err)
	}
	if err := o.Resume(t.Context()); err != ErrClosed {
		t.Fatalf("resume after close = %v", err)
	}
	if o.Position() != 0 {
		t.Fatal("closed output has no position")
	}
}
