package webdaw

import (
	"log/slog"
	"os"

	"github.com/cbegin/webdaw-go/internal/config"
	intsong "github.com/cbegin/webdaw-go/internal/song"
)

// ConfigOptions turns a settings file into studio options. A sample
// directory enables sampled instruments and a storage directory enables
// SaveSong and LoadSong.
func ConfigOptions(cfg config.Config, log *slog.Logger) []Option {
	opts := []Option{
		WithSampleRate(cfg.SampleRate),
		WithBPM(cfg.BPM),
		WithLatency(cfg.Latency),
		WithLogger(log),
	}
	if cfg.SampleDir != "" {
		opts = append(opts, WithSampleFS(os.DirFS(cfg.SampleDir)))
	}
	if cfg.StorageDir != "" {
		opts = append(opts, WithStore(intsong.NewFileStore(cfg.StorageDir, intsong.FormatJSON), cfg.StorageKey))
	}
	return opts
}
