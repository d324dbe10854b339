package webdaw

import (
	"context"
	"sync"

	intaudio "github.com/cbegin/webdaw-go/internal/audio"
)

// OfflineOutput is an output with no device behind it. Its clock only moves
// when Advance renders the mixer, which makes playback deterministic.
type OfflineOutput struct {
	mu    sync.Mutex
	mixer *intaudio.Mixer
	buf   []float32
}

func NewOfflineOutput(sampleRate int) *OfflineOutput {
	return &OfflineOutput{mixer: intaudio.NewMixer(sampleRate)}
}

func (o *OfflineOutput) Mixer() *intaudio.Mixer { return o.mixer }

// Resume is ready at once unless ctx is done.
func (o *OfflineOutput) Resume(ctx context.Context) error { return ctx.Err() }

func (o *OfflineOutput) Now() float64 { return o.mixer.Now() }

// Advance renders seconds of audio and moves the clock past it. The returned
// interleaved stereo slice is reused by the next call.
func (o *OfflineOutput) Advance(seconds float64) []float32 {
	frames := int(seconds * float64(o.mixer.SampleRate()))
	if frames <= 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if cap(o.buf) < frames*2 {
		o.buf = make([]float32, frames*2)
	}
	o.buf = o.buf[:frames*2]
	o.mixer.Process(o.buf)
	return o.buf
}
