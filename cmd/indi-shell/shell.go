package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/model"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Shell handles the interactive command loop.
type Shell struct {
	rl     *readline.Instance
	client atomic.Pointer[client.Client]

	// watch echoes every set vector as it arrives.
	watch atomic.Bool
}

// NewShell creates a shell with a readline prompt.
func NewShell() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "indi> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("help"),
			readline.PcItem("devices"),
			readline.PcItem("props"),
			readline.PcItem("get"),
			readline.PcItem("set"),
			readline.PcItem("switch"),
			readline.PcItem("connect"),
			readline.PcItem("disconnect"),
			readline.PcItem("blob", readline.PcItem("Never"), readline.PcItem("Also"), readline.PcItem("Only")),
			readline.PcItem("refresh"),
			readline.PcItem("messages"),
			readline.PcItem("watch", readline.PcItem("on"), readline.PcItem("off")),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer { return s.rl.Stdout() }

// Stderr returns a writer that coordinates with the prompt.
func (s *Shell) Stderr() io.Writer { return s.rl.Stderr() }

// Attach binds the shell to a connected client and starts printing
// server messages.
func (s *Shell) Attach(c *client.Client) {
	c.OnMessage(s.handleMessage)
	s.client.Store(c)
}

var errNotConnected = errors.New("not connected")

func (s *Shell) current() (*client.Client, error) {
	c := s.client.Load()
	if c == nil {
		return nil, errNotConnected
	}
	select {
	case <-c.Done():
		return nil, errNotConnected
	default:
	}
	return c, nil
}

// Close releases the terminal.
func (s *Shell) Close() error { return s.rl.Close() }

func (s *Shell) handleMessage(msg wire.Message) {
	out := s.rl.Stdout()
	switch m := msg.(type) {
	case *wire.PlainMessage:
		if m.Device != "" {
			fmt.Fprintf(out, "[%s] %s\n", m.Device, m.Text)
		} else {
			fmt.Fprintf(out, "[server] %s\n", m.Text)
		}
	case *wire.DelProperty:
		if m.Name == "" {
			fmt.Fprintf(out, "device %s removed\n", m.Device)
		}
	case *wire.SetVector:
		if s.watch.Load() {
			printVector(out, m.Vector)
		}
		if m.Vector.Message != "" {
			fmt.Fprintf(out, "[%s] %s\n", m.Vector.Device, m.Vector.Message)
		}
	}
}

// Run reads commands until quit, EOF or ctx is cancelled.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if quit := s.execute(input); quit {
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
	}
}

func (s *Shell) execute(input string) (quit bool) {
	out := s.rl.Stdout()
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	c, err := s.current()
	switch strings.ToLower(cmd) {
	case "help", "?", "quit", "exit", "q", "watch":
		err = nil
	}
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return false
	}

	switch strings.ToLower(cmd) {
	case "help", "?":
		s.printHelp()
	case "devices", "d":
		s.cmdDevices(c)
	case "props", "p":
		s.cmdProps(c, rest)
	case "get", "g":
		err = s.cmdGet(c, rest)
	case "set", "s":
		err = s.cmdSet(c, rest)
	case "switch", "sw":
		err = s.cmdSwitch(c, rest)
	case "connect":
		err = cmdConnect(c, rest, true)
	case "disconnect":
		err = cmdConnect(c, rest, false)
	case "blob":
		err = cmdBLOB(c, rest)
	case "refresh":
		err = c.GetProperties("", "")
	case "messages", "m":
		for _, m := range c.State().Messages() {
			fmt.Fprintf(out, "%s [%s] %s\n", m.Timestamp.Format("15:04:05"), m.Device, m.Text)
		}
	case "watch":
		s.watch.Store(rest != "off")
		fmt.Fprintf(out, "watch %v\n", s.watch.Load())
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
INDI Shell Commands:
  Inspection:
    devices                         - List devices
    props [device]                  - List properties
    get <device.property>           - Show a property
    messages                        - Show recent server messages
    watch on|off                    - Echo property updates as they arrive
    refresh                         - Request all definitions again

  Control:
    set <device.property> el=val .. - Send new values (number, text)
    switch <device.property> <el>   - Turn a switch element On
    connect <device>                - Switch CONNECTION to CONNECT
    disconnect <device>             - Switch CONNECTION to DISCONNECT
    blob <device> Never|Also|Only   - Set BLOB delivery

    help                            - Show this help
    quit                            - Exit`)
}

func (s *Shell) cmdDevices(c *client.Client) {
	out := s.rl.Stdout()
	devices := c.State().Devices()
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices defined")
		return
	}
	for _, d := range devices {
		fmt.Fprintf(out, "  %-30s %d properties\n", d, len(c.State().Properties(d)))
	}
}

func (s *Shell) cmdProps(c *client.Client, device string) {
	out := s.rl.Stdout()
	devices := c.State().Devices()
	if device != "" {
		devices = []string{device}
	}
	for _, d := range devices {
		fmt.Fprintf(out, "%s:\n", d)
		for _, v := range c.State().Properties(d) {
			fmt.Fprintf(out, "  %-28s %-6s %-5s %s\n", v.Name, v.Kind, v.State, v.Group)
		}
	}
}

func (s *Shell) cmdGet(c *client.Client, target string) error {
	v, err := lookup(c, target)
	if err != nil {
		return err
	}
	printVector(s.rl.Stdout(), v)
	return nil
}

func (s *Shell) cmdSet(c *client.Client, args string) error {
	target, assignments, _ := strings.Cut(args, " ")
	current, err := lookup(c, target)
	if err != nil {
		return err
	}
	v, err := buildNew(current, strings.Fields(assignments))
	if err != nil {
		return err
	}
	return c.SendNew(v)
}

func (s *Shell) cmdSwitch(c *client.Client, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return errors.New("usage: switch <device.property> <element>")
	}
	current, err := lookup(c, fields[0])
	if err != nil {
		return err
	}
	if current.Kind != model.KindSwitch {
		return fmt.Errorf("%s is a %s vector", current.Key(), current.Kind)
	}
	if _, ok := current.Element(fields[1]); !ok {
		return fmt.Errorf("%s has no element %s", current.Key(), fields[1])
	}
	return c.SendSwitch(current.Device, current.Name, fields[1])
}

func cmdConnect(c *client.Client, device string, on bool) error {
	if device == "" {
		return errors.New("usage: connect <device>")
	}
	element := "CONNECT"
	if !on {
		element = "DISCONNECT"
	}
	return c.SendSwitch(device, "CONNECTION", element)
}

func cmdBLOB(c *client.Client, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return errors.New("usage: blob <device> Never|Also|Only")
	}
	mode, err := model.ParseBLOBMode(fields[1])
	if err != nil {
		return err
	}
	return c.EnableBLOB(fields[0], "", mode)
}

func lookup(c *client.Client, target string) (model.Vector, error) {
	device, name, ok := splitTarget(target)
	if !ok {
		return model.Vector{}, fmt.Errorf("expected device.property, got %q", target)
	}
	v, found := c.State().Vector(device, name)
	if !found {
		return model.Vector{}, fmt.Errorf("%s.%s is not defined", device, name)
	}
	return v, nil
}

// splitTarget splits "device.property" at the last dot.
func splitTarget(target string) (device, name string, ok bool) {
	i := strings.LastIndex(target, ".")
	if i <= 0 || i == len(target)-1 {
		return "", "", false
	}
	return target[:i], target[i+1:], true
}

// buildNew turns el=value assignments into a new* request for current.
func buildNew(current model.Vector, assignments []string) (model.Vector, error) {
	if !current.Perm.CanWrite() {
		return model.Vector{}, fmt.Errorf("%s is read-only", current.Key())
	}
	if len(assignments) == 0 {
		return model.Vector{}, errors.New("no element=value assignments")
	}

	v := model.Vector{Kind: current.Kind, Device: current.Device, Name: current.Name}
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return model.Vector{}, fmt.Errorf("expected element=value, got %q", a)
		}
		if _, found := current.Element(name); !found {
			return model.Vector{}, fmt.Errorf("%s has no element %s", current.Key(), name)
		}
		el := model.Element{Name: name}
		switch current.Kind {
		case model.KindNumber:
			n, err := model.ParseNumber(value)
			if err != nil {
				return model.Vector{}, fmt.Errorf("%s: %w", name, err)
			}
			el.Number.Value = n
		case model.KindText:
			el.Text = value
		case model.KindSwitch:
			st, err := model.ParseSwitchState(value)
			if err != nil {
				return model.Vector{}, fmt.Errorf("%s: %w", name, err)
			}
			el.Switch = st
		default:
			return model.Vector{}, fmt.Errorf("cannot set %s vectors from the shell", current.Kind)
		}
		v.Elements = append(v.Elements, el)
	}
	return v, nil
}

func printVector(w io.Writer, v model.Vector) {
	fmt.Fprintf(w, "%s.%s (%s, %s)", v.Device, v.Name, v.Kind, v.State)
	if v.Label != "" {
		fmt.Fprintf(w, " %q", v.Label)
	}
	fmt.Fprintln(w)
	for _, el := range v.Elements {
		fmt.Fprintf(w, "  %-24s = %s\n", el.Name, client.ElementValue(v.Kind, el))
	}
}
