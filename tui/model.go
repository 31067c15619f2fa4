package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-pulse/debug"
	"go-pulse/device"
	"go-pulse/driver"
	"go-pulse/midi"
	"go-pulse/pattern"
	"go-pulse/theme"
	"go-pulse/widgets"
)

const (
	meterWidth   = 24
	previewWidth = 60
	maxEvents    = 5
	rateStep     = 5
)

// Model is a live monitor of one driver run.
type Model struct {
	Driver *driver.Driver
	Client device.Client
	Theme  *theme.Theme
	Preset string

	// Override builds the pattern the "o" key installs on the focused device.
	Override func() pattern.Pattern
	// Events carries MIDI hot-plug and panic events; nil in simulation.
	Events <-chan midi.DeviceEvent

	cancel  context.CancelFunc
	done    <-chan error
	preview []float64

	snap     driver.Snapshot
	focus    int
	events   []string
	finished bool
	runErr   error
	showHelp bool
	quitting bool
}

type SnapshotMsg driver.Snapshot

type DeviceEventMsg midi.DeviceEvent

// RunDoneMsg carries what Run returned.
type RunDoneMsg struct{ Err error }

// NewModel watches d. cancel stops the run, done yields its result and
// preview is a rendering of the global pattern for the sparkline.
func NewModel(d *driver.Driver, client device.Client, th *theme.Theme, cancel context.CancelFunc, done <-chan error, preview []float64) Model {
	return Model{
		Driver:  d,
		Client:  client,
		Theme:   th,
		cancel:  cancel,
		done:    done,
		preview: preview,
	}
}

func ListenForUpdates(d *driver.Driver) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg(<-d.Updates())
	}
}

func ListenForDevices(events <-chan midi.DeviceEvent) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func WaitForRun(done <-chan error) tea.Cmd {
	return func() tea.Msg {
		return RunDoneMsg{Err: <-done}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Driver),
		ListenForDevices(m.Events),
		WaitForRun(m.done),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit

		case "tab":
			if n := len(m.Client.Devices()); n > 0 {
				m.focus = (m.focus + 1) % n
			}

		case "o":
			m.toggleOverride()

		case "?":
			m.showHelp = !m.showHelp

		case "+", "=":
			m.Driver.StepTickRate(rateStep)

		case "-", "_":
			m.Driver.StepTickRate(-rateStep)
		}

	case SnapshotMsg:
		m.snap = driver.Snapshot(msg)
		return m, ListenForUpdates(m.Driver)

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		name := event.Port
		if event.Type != midi.PanicPressed {
			name = event.Device.String()
		}
		m.logEvent(fmt.Sprintf("%s %s", event.Type, name))
		return m, ListenForDevices(m.Events)

	case RunDoneMsg:
		m.finished = true
		m.runErr = msg.Err
		if msg.Err != nil {
			m.logEvent("error: " + msg.Err.Error())
		}
	}

	return m, nil
}

func (m *Model) logEvent(s string) {
	m.events = append(m.events, s)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

// focused returns the focused device, if any are connected.
func (m Model) focused() (device.Device, bool) {
	devs := m.Client.Devices()
	if len(devs) == 0 {
		return device.Device{}, false
	}
	return devs[m.focus%len(devs)], true
}

func (m *Model) toggleOverride() {
	dev, ok := m.focused()
	if !ok || m.Override == nil {
		return
	}
	set, err := m.Driver.ToggleDeviceOverride(dev.ID, m.Override())
	if err != nil {
		m.logEvent("override: " + err.Error())
		debug.Log("tui", "override %s: %v", dev, err)
		return
	}
	if set {
		m.logEvent("override set on " + dev.String())
		return
	}
	m.logEvent("override cleared on " + dev.String())
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	state := m.Driver.State().String()
	if m.finished && m.runErr != nil {
		state = "failed"
	}
	stateStyle := headerStyle
	if m.finished && m.runErr == nil {
		stateStyle = lipgloss.NewStyle().Foreground(m.Theme.Success())
	}
	header := headerStyle.Render("go-pulse  ") + stateStyle.Render(strings.ToUpper(state)) +
		headerStyle.Render(fmt.Sprintf("  %s  %s  %dHz  tick:%d",
			m.Preset, elapsed(m.snap), m.Driver.TickRate(), m.snap.Tick))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(m.devicesView())
	out.WriteString("\n")
	if len(m.preview) > 0 {
		out.WriteString(widgets.RenderSparkline(m.Theme, m.preview))
		out.WriteString("\n\n")
	}
	for _, e := range m.events {
		out.WriteString(warnStyle.Render(e))
		out.WriteString("\n")
	}
	out.WriteString("\n")
	if m.showHelp {
		out.WriteString(m.helpView())
		return out.String()
	}
	out.WriteString(dimStyle.Render("tab:device  o:override  +/-:rate  ?:help  q:quit"))
	return out.String()
}

func (m Model) helpView() string {
	var out strings.Builder
	out.WriteString(widgets.RenderKeyHelp([]widgets.KeySection{
		{Title: "Run", Keys: []widgets.KeyBinding{
			{Key: "q, ctrl+c", Desc: "stop all actuators and quit"},
			{Key: "+ / -", Desc: fmt.Sprintf("tick rate up / down by %d Hz", rateStep)},
		}},
		{Title: "Devices", Keys: []widgets.KeyBinding{
			{Key: "tab", Desc: "focus next device"},
			{Key: "o", Desc: "toggle override on focused device"},
		}},
		{Keys: []widgets.KeyBinding{{Key: "?", Desc: "close help"}}},
	}))
	out.WriteString("\n\n")
	out.WriteString(widgets.RenderLegendItem(m.Theme, m.Theme.Symbols.Global, "global", "level from the global pattern"))
	out.WriteString("\n")
	out.WriteString(widgets.RenderLegendItem(m.Theme, m.Theme.Symbols.Override, "override", "device or actuator override"))
	out.WriteString("\n")
	return out.String()
}

func (m Model) devicesView() string {
	devs := m.Client.Devices()
	if len(devs) == 0 {
		return lipgloss.NewStyle().Foreground(m.Theme.Muted()).Render("no devices connected") + "\n"
	}
	overridden := m.Driver.DeviceOverrides()
	nameStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())

	var out strings.Builder
	for i, dev := range devs {
		marker := ' '
		if i == m.focus%len(devs) {
			marker = m.Theme.Symbols.Focus
		}
		name := dev.String()
		if slices.Contains(overridden, dev.ID) {
			name += " [override]"
		}
		fmt.Fprintf(&out, "%c %s\n", marker, nameStyle.Render(name))

		levels := m.snap.Levels[dev.ID]
		for _, a := range dev.Actuators {
			src := m.Theme.Symbols.Global
			if m.snap.Sources[driver.ActuatorKey{Device: dev.ID, Actuator: a}] != driver.SourceGlobal {
				src = m.Theme.Symbols.Override
			}
			v := levels[a]
			fmt.Fprintf(&out, "   %2d %c %s %3.0f%%\n", a, src, widgets.RenderMeter(m.Theme, v, meterWidth), v*100)
		}
	}
	return out.String()
}

func elapsed(s driver.Snapshot) string {
	if s.Duration == 0 && s.Tick == 0 {
		return "--"
	}
	if s.Unbounded() {
		return fmt.Sprintf("%.1fs/∞", s.Elapsed)
	}
	return fmt.Sprintf("%.1fs/%.1fs", s.Elapsed, s.Duration)
}

// Preview renders the first seconds of a fresh pattern for the sparkline.
// It samples p, so pass a copy that is not installed in a driver.
func Preview(p pattern.Pattern, seconds float64) []float64 {
	p.Reset()
	rate := float64(previewWidth) / seconds
	return pattern.Render(p, rate, previewWidth)
}
