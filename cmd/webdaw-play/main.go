package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cbegin/webdaw-go"
	"github.com/cbegin/webdaw-go/internal/config"
	"github.com/cbegin/webdaw-go/internal/song"
)

type options struct {
	configPath string
	songPath   string
	bpm        float64
	sampleDir  string
	synthOnly  bool
	midiPath   string
	noAudio    bool
	verbose    bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "settings file (default ~/.config/webdaw/config.json)")
	flag.StringVar(&o.songPath, "file", "", "song document (.json or .yaml); defaults to the demo")
	flag.Float64Var(&o.bpm, "bpm", 0, "override the song tempo")
	flag.StringVar(&o.sampleDir, "samples", "", "sample directory; empty synthesizes every instrument")
	flag.BoolVar(&o.synthOnly, "synth", false, "synthesize sample families even when samples exist")
	flag.StringVar(&o.midiPath, "midi", "", "also write the arrangement to this MIDI file")
	flag.BoolVar(&o.noAudio, "no-audio", false, "skip playback")
	flag.BoolVar(&o.verbose, "v", false, "log scheduling diagnostics")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, o, os.Stdout)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

// run plays the song until it finishes or ctx is cancelled. The studio is
// always closed before run returns.
func run(ctx context.Context, o options, stdout io.Writer) error {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.sampleDir != "" {
		cfg.SampleDir = o.sampleDir
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	// the song comes from -file or the demo, not from storage
	cfg.StorageDir = ""

	sg, err := loadSong(o.songPath)
	if err != nil {
		return err
	}
	if o.bpm > 0 {
		sg.BPM = o.bpm
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	opts := append(webdaw.ConfigOptions(cfg, logger), webdaw.WithSynthFallback(o.synthOnly))
	if o.noAudio {
		opts = append(opts, webdaw.WithOutput(webdaw.NewOfflineOutput(cfg.SampleRate)))
	}
	st, err := webdaw.New(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("close studio", "err", err)
		}
	}()
	st.SetSong(sg)

	if o.midiPath != "" {
		if err := writeMIDI(st, o.midiPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", o.midiPath)
	}
	if o.noAudio {
		return nil
	}

	events := st.Watch()
	primeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = st.Play(primeCtx)
	cancel()
	if err != nil {
		return err
	}
	plan := st.Plan()
	fmt.Fprintf(stdout, "playing %d notes over %.1fs at %.0f bpm\n", len(plan.Events), plan.End, st.Song().BPM)

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := st.Stop(stopCtx); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			fmt.Fprintln(stdout, "stopped")
			return nil
		case ev := <-events:
			if ev.Err != nil {
				return ev.Err
			}
			if ev.From == webdaw.StatePlaying && ev.To == webdaw.StateReady {
				fmt.Fprintln(stdout, "playback completed")
				return nil
			}
		}
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return config.DefaultConfig(), nil
		}
		path = p
	}
	return config.Load(path)
}

func loadSong(path string) (*song.Song, error) {
	if strings.TrimSpace(path) == "" {
		return song.Demo(), nil
	}
	return song.LoadFile(path)
}

func writeMIDI(st *webdaw.Studio, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := st.ExportMIDI(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
