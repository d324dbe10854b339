package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/webdaw-go"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fff"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	cursorStyle  = lipgloss.NewStyle().Background(lipgloss.Color("#444"))
	playingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5f5")).Bold(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f55"))
)

const (
	bpmStep    = 5
	minBPM     = 20
	maxBPM     = 300
	volumeStep = 5
	volumeBar  = 20

	// primeTimeout bounds sample loading on the first play.
	primeTimeout = 30 * time.Second
)

type model struct {
	studio   *webdaw.Studio
	events   <-chan webdaw.Event
	state    webdaw.State
	cursor   int
	status   string
	err      error
	quitting bool
}

type stateMsg webdaw.Event

type resultMsg struct {
	status string
	err    error
}

func newModel(st *webdaw.Studio) model {
	return model{
		studio: st,
		events: st.Watch(),
		state:  st.State(),
		status: "space to play",
	}
}

func listenForState(events <-chan webdaw.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return stateMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return listenForState(m.events)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case stateMsg:
		m.state = msg.To
		if msg.Err != nil {
			m.err = msg.Err
		}
		return m, listenForState(m.events)

	case resultMsg:
		m.err = msg.err
		if msg.status != "" {
			m.status = msg.status
		}
	}
	return m, nil
}

func (m model) handleKey(key string) (tea.Model, tea.Cmd) {
	sg := m.studio.Song()
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case " ", "p":
		m.err = nil
		return m, m.toggle()

	case "+", "=":
		m.studio.SetBPM(min(maxBPM, sg.BPM+bpmStep))
		m.status = fmt.Sprintf("tempo %.0f", m.studio.Song().BPM)

	case "-", "_":
		m.studio.SetBPM(max(minBPM, sg.BPM-bpmStep))
		m.status = fmt.Sprintf("tempo %.0f", m.studio.Song().BPM)

	case "j", "down":
		if m.cursor < len(sg.Instruments)-1 {
			m.cursor++
		}

	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}

	case "h", "left":
		m.nudgeVolume(-volumeStep)

	case "l", "right":
		m.nudgeVolume(volumeStep)

	case "s":
		if err := m.studio.SaveSong(); err != nil {
			m.err = err
			if errors.Is(err, webdaw.ErrNoStore) {
				m.err = errors.New("no storage directory configured")
			}
		} else {
			m.err = nil
			m.status = "saved"
		}
	}
	return m, nil
}

func (m *model) nudgeVolume(delta int) {
	sg := m.studio.Song()
	if m.cursor >= len(sg.Instruments) {
		return
	}
	in := sg.Instruments[m.cursor]
	vol := min(100, max(0, in.Volume+delta))
	m.studio.SetInstrumentVolume(in.ID, vol)
	m.status = fmt.Sprintf("%s volume %d", in.Name, vol)
}

// toggle runs the transport off the UI goroutine; the first play may block
// while samples load.
func (m model) toggle() tea.Cmd {
	st := m.studio
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), primeTimeout)
		defer cancel()
		if err := st.TogglePlay(ctx); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{}
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	sg := m.studio.Song()

	state := dimStyle.Render(strings.ToUpper(m.state.String()))
	if m.state == webdaw.StatePlaying {
		state = playingStyle.Render("PLAYING")
	}
	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(titleStyle.Render("webdaw"))
	out.WriteString(fmt.Sprintf("  %s  %3.0fbpm  %d steps\n\n", state, sg.BPM, len(sg.Sequence)))

	for i, in := range sg.Instruments {
		filled := in.Volume * volumeBar / 100
		bar := strings.Repeat("#", filled) + dimStyle.Render(strings.Repeat(".", volumeBar-filled))
		line := fmt.Sprintf(" %-20s %-18s %s %3d ", in.Name, dimStyle.Render(string(in.Type)), bar, in.Volume)
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		out.WriteString(line)
		out.WriteString("\n")
	}

	out.WriteString("\n")
	if m.err != nil {
		out.WriteString(errorStyle.Render(m.err.Error()))
	} else {
		out.WriteString(statusStyle.Render(m.status))
	}
	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render("space:play/stop  +/-:tempo  j/k:instrument  h/l:volume  s:save  q:quit"))
	return out.String()
}
