// Package voice owns the per-instrument voices that produce sound. A Manager
// builds voices lazily through a Provider, caches one per instrument id, and
// mediates every gain and lifecycle operation on them.
package voice

import (
	"context"

	"github.com/cbegin/webdaw-go/internal/song"
)

// Kind tags the capability of a Voice.
type Kind int

const (
	// KindSampler voices play symbolic pitches at a per-trigger gain and
	// cannot be retracted once a hit is handed over.
	KindSampler Kind = iota + 1
	// KindSynth voices play numeric frequencies, keep their own scheduled
	// events, carry an output gain and are disposable.
	KindSynth
)

func (k Kind) String() string {
	switch k {
	case KindSampler:
		return "sampler"
	case KindSynth:
		return "synth"
	}
	return "unknown"
}

// Sampler is a discrete-sample-trigger voice.
type Sampler interface {
	TriggerAttackRelease(note string, dur, when, gain float64)
	ReleaseAll()
	// Wait blocks until every sample of the voice is loaded.
	Wait(ctx context.Context) error
}

// Synth is a continuous-synthesis voice. Times are output clock seconds.
type Synth interface {
	TriggerAttackRelease(freq, dur, when float64)
	TriggerAttack(freq, when, velocity float64)
	TriggerRelease(freq, when float64)
	// RampGain moves the output gain to db over seconds.
	RampGain(db, seconds float64)
	ReleaseAll()
	// Dispose drops every scheduled event and frees the voice's resources.
	Dispose()
}

// Voice is a tagged variant: exactly one of Sampler and Synth is set,
// matching Kind.
type Voice struct {
	Kind    Kind
	Sampler Sampler
	Synth   Synth
}

func SamplerVoice(s Sampler) Voice { return Voice{Kind: KindSampler, Sampler: s} }

func SynthVoice(s Synth) Voice { return Voice{Kind: KindSynth, Synth: s} }

func (v Voice) valid() bool {
	switch v.Kind {
	case KindSampler:
		return v.Sampler != nil
	case KindSynth:
		return v.Synth != nil
	}
	return false
}

// ReleaseAll silences whatever the voice is sounding.
func (v Voice) ReleaseAll() {
	switch v.Kind {
	case KindSampler:
		v.Sampler.ReleaseAll()
	case KindSynth:
		v.Synth.ReleaseAll()
	}
}

// Wait blocks until the voice is fully loaded. Synth voices are ready as soon
// as they are built.
func (v Voice) Wait(ctx context.Context) error {
	if v.Kind == KindSampler {
		return v.Sampler.Wait(ctx)
	}
	return nil
}

// Settings are the per-instrument synthesis parameters a provider may honor.
type Settings struct {
	Detune int // cents
	Decay  int // 0..100
	Reverb int // 0..100
}

// Request names a voice to build. ID is the instrument id; the cache keeps
// the whole request so the voice can be rebuilt after disposal.
type Request struct {
	ID       string
	Type     song.InstrumentType
	Settings Settings
}

// RequestFor builds the request for an instrument of the song.
func RequestFor(in *song.Instrument) Request {
	return Request{
		ID:   in.ID,
		Type: in.Type,
		Settings: Settings{
			Detune: in.Detune,
			Decay:  in.Decay,
			Reverb: in.Reverb,
		},
	}
}

// Pitch carries both spellings of a note so the manager can hand each kind
// the form it plays. Either field may be empty; the other is derived.
type Pitch struct {
	Name string
	Freq float64
	// Note is the canonical sharp spelling samplers play. It is derived
	// from Name or Freq when empty.
	Note string
}

// Provider builds voices for instrument families. Sample-backed voices may
// return before their data is loaded; Voice.Wait reports completion.
type Provider interface {
	NewVoice(ctx context.Context, req Request) (Voice, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Voice, error)

func (f ProviderFunc) NewVoice(ctx context.Context, req Request) (Voice, error) {
	return f(ctx, req)
}

// Output is the audio output the voices render into.
type Output interface {
	// Resume brings the output online. It may block on a user gesture.
	Resume(ctx context.Context) error
	// Now is the monotonic output clock in seconds.
	Now() float64
}
