package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the little-endian float32 stereo
// stream ebiten's F32 players read.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
	closed bool
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, s := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// sharedAudioContext returns the process-wide ebiten context; ebiten allows
// only one, at a single sample rate.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

var ErrClosed = errors.New("audio: output closed")

const readyPoll = 10 * time.Millisecond

// Output plays a Mixer through the shared ebiten audio context.
type Output struct {
	mixer      *Mixer
	bufferSize time.Duration

	mu     sync.Mutex
	player *ebitaudio.Player
	reader *StreamReader
	closed bool
}

type OutputOption func(*Output)

// WithBufferSize sets the device buffer length; smaller is lower latency.
func WithBufferSize(d time.Duration) OutputOption {
	return func(o *Output) {
		o.bufferSize = d
	}
}

func NewOutput(m *Mixer, opts ...OutputOption) *Output {
	o := &Output{mixer: m, bufferSize: 40 * time.Millisecond}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Output) Mixer() *Mixer { return o.mixer }

// Resume starts the device stream once and waits until the context reports
// ready. In a browser the context only becomes ready after a user gesture,
// so the wait is bounded by ctx.
func (o *Output) Resume(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	actx, err := sharedAudioContext(o.mixer.SampleRate())
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if o.player == nil {
		reader := NewStreamReader(o.mixer)
		pl, err := actx.NewPlayerF32(reader)
		if err != nil {
			o.mu.Unlock()
			return err
		}
		if o.bufferSize > 0 {
			pl.SetBufferSize(o.bufferSize)
		}
		pl.Play()
		o.player, o.reader = pl, reader
	}
	o.mu.Unlock()

	if actx.IsReady() {
		return nil
	}
	t := time.NewTicker(readyPoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for audio output: %w", ctx.Err())
		case <-t.C:
			if actx.IsReady() {
				return nil
			}
		}
	}
}

func (o *Output) Now() float64 { return o.mixer.Now() }

// Position is what the listener hears right now, which trails Now by the
// device buffer.
func (o *Output) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return 0
	}
	return o.player.Position()
}

func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if o.player == nil {
		return nil
	}
	o.player.Pause()
	err := o.player.Close()
	if cerr := o.reader.Close(); err == nil {
		err = cerr
	}
	o.player, o.reader = nil, nil
	return err
}
