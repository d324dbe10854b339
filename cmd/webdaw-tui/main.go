package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cbegin/webdaw-go"
	"github.com/cbegin/webdaw-go/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "settings file (default ~/.config/webdaw/config.json)")
		storageDir = flag.String("store", "", "directory songs are saved in (overrides the config)")
		logPath    = flag.String("log", "", "write diagnostics to this file")
	)
	flag.Parse()

	path := *configPath
	if path == "" {
		if p, err := config.Path(); err == nil {
			path = p
		}
	}
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			log.Fatal(err)
		}
	}
	if *storageDir != "" {
		cfg.StorageDir = *storageDir
	}

	// the terminal belongs to bubbletea, so diagnostics go to a file or nowhere
	logger := slog.New(slog.DiscardHandler)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.Level()}))
	}

	st, err := webdaw.New(webdaw.ConfigOptions(cfg, logger)...)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	p := tea.NewProgram(newModel(st), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
