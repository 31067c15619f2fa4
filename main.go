package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"go-pulse/config"
	"go-pulse/debug"
	"go-pulse/device"
	"go-pulse/driver"
	"go-pulse/midi"
	"go-pulse/pattern"
	"go-pulse/preset"
	"go-pulse/theme"
	"go-pulse/tui"
)

type flags struct {
	config   string
	preset   string
	sim      bool
	rate     int
	debug    bool
	headless bool
	list     bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "config file (default ~/.config/go-pulse/config.yaml)")
	flag.StringVar(&f.preset, "preset", "", "preset to run: "+strings.Join(preset.Names(), ", "))
	flag.BoolVar(&f.sim, "sim", false, "drive simulated devices instead of MIDI ports")
	flag.IntVar(&f.rate, "rate", 0, "tick rate in Hz")
	flag.BoolVar(&f.debug, "debug", false, "write a debug log to ~/.config/go-pulse/debug.log")
	flag.BoolVar(&f.headless, "headless", false, "print status lines instead of the monitor")
	flag.BoolVar(&f.list, "list", false, "list presets and exit")
	flag.Parse()

	if f.list {
		for _, name := range preset.Names() {
			fmt.Printf("  %-10s %s\n", name, preset.Presets[name].Description)
		}
		return
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.config != "" {
		cfg, err = config.LoadFile(f.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if f.preset != "" {
		cfg.Preset = f.preset
	}
	if f.rate != 0 {
		cfg.TickRate = f.rate
	}
	if f.debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	if cfg.Debug {
		if err := debug.Enable(); err != nil {
			return fmt.Errorf("debug log: %w", err)
		}
		defer debug.Disable()
	}

	palette := theme.Default()
	if cfg.Palette != "" {
		if palette, err = theme.LoadGPL(cfg.Palette); err != nil {
			return fmt.Errorf("palette: %w", err)
		}
	}
	th := theme.New(palette)

	global, err := preset.Get(cfg.Preset)
	if err != nil {
		return err
	}
	preview, _ := preset.Get(cfg.Preset)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Ports stay open until the driver has sent stop-all.
	portCtx, closePorts := context.WithCancel(context.Background())
	defer closePorts()

	var keepRunning atomic.Bool
	keepRunning.Store(true)

	var client device.Client
	var events []<-chan midi.DeviceEvent
	if f.sim {
		client = device.NewSim(
			device.Device{ID: 1, Name: "sim left", Actuators: []device.ActuatorID{0, 1}},
			device.Device{ID: 2, Name: "sim right", Actuators: []device.ActuatorID{0, 1, 2}},
		)
	} else {
		dm := midi.NewDeviceManager(midi.OptionsFromConfig(cfg.MIDI), nil)
		go dm.Run(portCtx)
		client = dm
		events = append(events, dm.Events())

		if cfg.MIDI.Panic.Port != "" {
			pi, err := midi.NewPanicInput(nil, cfg.MIDI.Panic.Port, cfg.MIDI.Panic.CC, &keepRunning)
			if err != nil {
				return err
			}
			defer pi.Close()
			events = append(events, pi.Events())
		}
	}

	d, err := driver.New(client, global,
		driver.WithTickRate(cfg.TickRate),
		driver.WithCommandTimeout(cfg.CommandTimeout),
	)
	if err != nil {
		return err
	}

	result := make(chan error, 1)
	finished := make(chan struct{})
	var runErr error
	go func() {
		defer close(finished)
		runErr = d.RunWhile(ctx, &keepRunning)
		result <- runErr
	}()

	var uiErr error
	if f.headless {
		headless(d, finished)
	} else {
		m := tui.NewModel(d, client, th, cancel, result, tui.Preview(preview, 10))
		m.Preset = cfg.Preset
		m.Events = merge(events...)
		m.Override = func() pattern.Pattern {
			p, _ := preset.Get("pulse")
			return p
		}
		_, uiErr = tea.NewProgram(m, tea.WithAltScreen()).Run()
		cancel()
	}

	<-finished
	closePorts()
	return errors.Join(uiErr, runErr)
}

// headless prints one line per second of run time until the run ends.
func headless(d *driver.Driver, finished <-chan struct{}) {
	for {
		select {
		case <-finished:
			fmt.Println("stopped")
			return
		case s := <-d.Updates():
			if s.TickRate > 0 && s.Tick%s.TickRate == 0 {
				fmt.Printf("%6.1fs tick %-5d devices %d\n", s.Elapsed, s.Tick, len(s.Levels))
			}
		}
	}
}

// merge fans event channels into one. The result closes when all inputs do.
func merge(chans ...<-chan midi.DeviceEvent) <-chan midi.DeviceEvent {
	if len(chans) == 0 {
		return nil
	}
	out := make(chan midi.DeviceEvent, 16)
	var open atomic.Int32
	open.Store(int32(len(chans)))
	for _, ch := range chans {
		go func() {
			for ev := range ch {
				out <- ev
			}
			if open.Add(-1) == 0 {
				close(out)
			}
		}()
	}
	return out
}
