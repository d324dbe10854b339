package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/youpy/go-wav"
	"golang.org/x/sync/errgroup"

	"github.com/cbegin/webdaw-go/internal/pitch"
)

// loadConcurrency bounds how many files of a set decode at once.
const loadConcurrency = 4

var ErrEmptySample = errors.New("sampler: sample has no frames")

// Buffer is one decoded mono sample.
type Buffer struct {
	Root       string
	MIDI       int
	SampleRate int
	Data       []float32
}

// Bank holds the decoded samples of a set, lowest root first.
type Bank struct {
	Set     Set
	Buffers []*Buffer
}

// Load decodes every file of set from fsys concurrently. The first failure
// cancels the rest.
func Load(ctx context.Context, fsys fs.FS, set Set) (*Bank, error) {
	roots := set.Roots()
	bufs := make([]*Buffer, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, root := range roots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := decodeFile(fsys, set.Files[root])
			if err != nil {
				return fmt.Errorf("sampler: %s %s: %w", set.Name, root, err)
			}
			b.Root = root
			b.MIDI, err = pitch.Parse(root)
			if err != nil {
				return err
			}
			bufs[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Bank{Set: set, Buffers: bufs}, nil
}

func decodeFile(fsys fs.FS, name string) (*Buffer, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode reads a WAV file, mixing its channels down to mono.
func Decode(data []byte) (*Buffer, error) {
	r := wav.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	if err != nil {
		return nil, err
	}
	channels := max(1, min(2, int(format.NumChannels)))
	b := &Buffer{SampleRate: int(format.SampleRate)}
	for {
		samples, err := r.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, s := range samples {
			var v float64
			for ch := 0; ch < channels; ch++ {
				v += r.FloatValue(s, uint(ch))
			}
			b.Data = append(b.Data, float32(v/float64(channels)))
		}
	}
	if len(b.Data) == 0 {
		return nil, ErrEmptySample
	}
	return b, nil
}

// nearest returns the buffer whose root is closest to midi and the
// semitone offset from it. Ties go to the lower root.
func (b *Bank) nearest(midi int) (*Buffer, int) {
	var best *Buffer
	dist := 0
	for _, buf := range b.Buffers {
		d := midi - buf.MIDI
		if best == nil || abs(d) < abs(dist) {
			best, dist = buf, d
		}
	}
	return best, dist
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
