// Package backend builds the concrete voices behind the voice manager:
// sample playback for recorded families and synthesis for the rest.
package backend

import (
	"context"
	"io/fs"
	"log/slog"

	"github.com/cbegin/webdaw-go/internal/audio"
	"github.com/cbegin/webdaw-go/internal/sampler"
	"github.com/cbegin/webdaw-go/internal/synth"
	"github.com/cbegin/webdaw-go/internal/voice"
)

// Provider implements voice.Provider on top of one mixer.
type Provider struct {
	mixer    *audio.Mixer
	samples  fs.FS
	fallback bool
	log      *slog.Logger
}

type Option func(*Provider)

// WithSamples sets the filesystem sample sets load from. Without one every
// family is synthesized.
func WithSamples(fsys fs.FS) Option {
	return func(p *Provider) {
		p.samples = fsys
	}
}

// WithSynthFallback synthesizes every family even when samples exist.
func WithSynthFallback(on bool) Option {
	return func(p *Provider) {
		p.fallback = on
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

func New(m *audio.Mixer, opts ...Option) *Provider {
	p := &Provider{mixer: m, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Mixer() *audio.Mixer { return p.mixer }

// Sampled reports whether req will be served by a sampler.
func (p *Provider) Sampled(req voice.Request) bool {
	if p.samples == nil || p.fallback {
		return false
	}
	_, ok := sampler.SetFor(req.Type)
	return ok
}

func (p *Provider) NewVoice(ctx context.Context, req voice.Request) (voice.Voice, error) {
	if err := ctx.Err(); err != nil {
		return voice.Voice{}, err
	}
	if p.Sampled(req) {
		set, _ := sampler.SetFor(req.Type)
		p.log.Debug("building sampler voice", "instrument", req.ID, "set", set.Name)
		s := sampler.New(ctx, p.mixer, p.samples, set, sampler.WithLogger(p.log))
		return voice.SamplerVoice(s), nil
	}
	patch := synth.PatchFor(req.Type).Tuned(req.Settings.Detune, req.Settings.Decay, req.Settings.Reverb)
	p.log.Debug("building synth voice", "instrument", req.ID, "type", req.Type)
	return voice.SynthVoice(synth.New(p.mixer, patch)), nil
}
