package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-pulse/config"
	"go-pulse/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		listPorts()
	case "match":
		err = matchPorts()
	case "sweep":
		err = sweep(os.Args[2:])
	case "poll":
		err = pollDevices()
	case "panic":
		err = watchPanic()
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI port tools")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list               - List all MIDI ports")
	fmt.Println("  match              - Show which outputs the config would drive")
	fmt.Println("  sweep <port> [cc]  - Ramp a control change up and down on an output")
	fmt.Println("  poll               - Watch matching outputs come and go")
	fmt.Println("  panic              - Wait for the configured panic input to fire")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins, outs []string
	}
	ch := make(chan result, 1)
	go func() {
		var backend midi.RtMidi
		ch <- result{ins: backend.InPorts(), outs: backend.OutPorts()}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p)
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s (id %d)\n", i, p, midi.PortID(p))
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
	}
}

func loadManager() (*midi.DeviceManager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return midi.NewDeviceManager(midi.OptionsFromConfig(cfg.MIDI), nil), nil
}

func matchPorts() error {
	dm, err := loadManager()
	if err != nil {
		return err
	}
	defer dm.Close()

	dm.Scan()
	devs := dm.Devices()
	if len(devs) == 0 {
		fmt.Println("No output matches the config")
		return nil
	}
	for _, d := range devs {
		fmt.Printf("  %s: %d actuators\n", d, len(d.Actuators))
	}
	return nil
}

func sweep(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("sweep needs a port name")
	}
	cc := 1
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 || n > 127 {
			return fmt.Errorf("bad cc %q", args[1])
		}
		cc = n
	}

	var backend midi.RtMidi
	var name string
	for _, p := range backend.OutPorts() {
		if strings.Contains(strings.ToLower(p), strings.ToLower(args[0])) {
			name = p
			break
		}
	}
	if name == "" {
		return fmt.Errorf("no output port matching %q", args[0])
	}

	out, err := backend.Open(name)
	if err != nil {
		return err
	}
	defer out.Close()

	fmt.Printf("Sweeping cc%d on %s...\n", cc, name)
	for _, v := range append(ramp(0, 127), ramp(127, 0)...) {
		if err := out.Send(gomidi.ControlChange(0, uint8(cc), v)); err != nil {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Println("Done!")
	return nil
}

func ramp(from, to int) []uint8 {
	var out []uint8
	step := 1
	if to < from {
		step = -1
	}
	for v := from; v != to+step; v += step {
		out = append(out, uint8(v))
	}
	return out
}

func pollDevices() error {
	dm, err := loadManager()
	if err != nil {
		return err
	}

	fmt.Println("Polling for device changes...")
	fmt.Println("Connect/disconnect devices to test. Ctrl+C to exit.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go dm.Run(ctx)

	for ev := range dm.Events() {
		fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), ev.Type, ev.Device)
	}
	return nil
}

func watchPanic() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.MIDI.Panic.Port == "" {
		return fmt.Errorf("midi.panic.port is not set in %s", configPathOrDefault())
	}

	var armed atomic.Bool
	armed.Store(true)
	pi, err := midi.NewPanicInput(nil, cfg.MIDI.Panic.Port, cfg.MIDI.Panic.CC, &armed)
	if err != nil {
		return err
	}
	defer pi.Close()

	fmt.Printf("Listening on %s, press the panic control...\n", pi.Port())
	ev := <-pi.Events()
	fmt.Printf("Panic received from %s\n", ev.Port)
	return nil
}

func configPathOrDefault() string {
	path, err := config.ConfigPath()
	if err != nil {
		return "the config file"
	}
	return path
}
