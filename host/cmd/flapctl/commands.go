package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"flapchain/chain"
	"flapchain/host/serial"
	"flapchain/property"
	"flapchain/protocol"
)

func (s *session) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		printHelp()
		return nil
	case "ports":
		return s.ports()
	case "discover":
		n, err := s.sync.Discover(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Found %d modules\n", n)
		return nil
	case "props":
		s.props()
		return nil
	case "read":
		return s.read(ctx, args)
	case "write":
		return s.write(ctx, args)
	case "seq":
		return s.seq(ctx, args)
	case "set":
		return s.set(args)
	case "get":
		return s.get(args)
	case "sync":
		return s.sync.SyncOnce(ctx)
	case "show":
		return s.show()
	case "message":
		return s.message(ctx, args)
	case "trace":
		return s.dumpTrace()
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help                      - Show this help message")
	fmt.Println("  ports                     - List serial ports")
	fmt.Println("  discover                  - Count the modules on the chain")
	fmt.Println("  props                     - List the known properties")
	fmt.Println("  read <prop>               - read_all a property and print every module's value")
	fmt.Println("  write <prop> <value>      - write_all a value to every module")
	fmt.Println("  seq <prop> <v0> <v1> ...  - write_sequential, '-' skips a module")
	fmt.Println("  set <module|all> <prop> <value>")
	fmt.Println("                            - Change the local display state (applied by sync)")
	fmt.Println("  get <prop>                - Mark a property for reading on the next sync")
	fmt.Println("  sync                      - Run one synchronization pass")
	fmt.Println("  show                      - Print the local display state")
	fmt.Println("  message <text>            - Show text on the display")
	fmt.Println("  trace                     - Dump engine events (simulation only)")
	fmt.Println("  quit/exit/q               - Exit the program")
	fmt.Println()
}

func (s *session) ports() error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
	}
	for _, p := range ports {
		fmt.Println(" ", p)
	}
	return nil
}

func (s *session) props() {
	for _, d := range s.ctrl.Registry().Properties() {
		fmt.Printf("  %2d %-18s read=%s write=%s\n", d.ID, d.Name, attrString(d.Read), attrString(d.Write))
	}
}

func attrString(a protocol.Attributes) string {
	switch {
	case !a.Supported():
		return "-"
	case a.DynamicSize:
		return "dynamic"
	case a.Multipart:
		return strconv.Itoa(int(a.StaticSize)) + "/multipart"
	default:
		return strconv.Itoa(int(a.StaticSize))
	}
}

// property resolves a property name or numeric id
func (s *session) property(name string) (protocol.Descriptor, error) {
	if n, err := strconv.ParseUint(name, 10, 8); err == nil {
		return s.ctrl.Registry().Lookup(protocol.PropertyID(n))
	}
	return s.ctrl.Registry().ByName(name)
}

func (s *session) read(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: read <prop>")
	}
	d, err := s.property(args[0])
	if err != nil {
		return err
	}

	values, err := s.ctrl.ReadAll(ctx, d.ID)
	if err != nil {
		return err
	}
	for i, v := range values {
		fmt.Printf("  module %3d: %s\n", i, property.Format(d.ID, v))
	}
	if len(values) == 0 {
		fmt.Println("  no modules")
	}
	return nil
}

func (s *session) write(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write <prop> <value>")
	}
	d, err := s.property(args[0])
	if err != nil {
		return err
	}
	value, err := property.Parse(d.ID, args[1:])
	if err != nil {
		return err
	}
	return s.ctrl.WriteAll(ctx, d.ID, value)
}

func (s *session) seq(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: seq <prop> <v0> <v1> ...")
	}
	d, err := s.property(args[0])
	if err != nil {
		return err
	}

	values := make([][]byte, len(args)-1)
	for i, a := range args[1:] {
		if a == "-" {
			continue
		}
		if values[i], err = property.Parse(d.ID, strings.Fields(a)); err != nil {
			return fmt.Errorf("module %d: %w", i, err)
		}
	}
	return s.ctrl.WriteSequential(ctx, d.ID, values)
}

func (s *session) set(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: set <module|all> <prop> <value>")
	}
	d, err := s.property(args[1])
	if err != nil {
		return err
	}
	value, err := property.Parse(d.ID, args[2:])
	if err != nil {
		return err
	}

	if args[0] == "all" {
		return s.disp.SetAll(d.ID, value)
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid module index %q", args[0])
	}
	return s.disp.SetValue(i, d.ID, value)
}

func (s *session) get(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <prop>")
	}
	d, err := s.property(args[0])
	if err != nil {
		return err
	}
	return s.disp.MarkRead(d.ID)
}

func (s *session) show() error {
	cols, rows := s.disp.Dimensions()
	fmt.Printf("%d modules (%d columns x %d rows)\n", s.disp.Len(), cols, rows)

	for i := 0; i < s.disp.Len(); i++ {
		fmt.Printf("module %d:\n", i)
		for _, d := range s.disp.Registry().Properties() {
			v := s.disp.Value(i, d.ID)
			if v == nil {
				continue
			}
			mark := " "
			if s.disp.Desynced(i, d.ID) {
				mark = "*"
			}
			fmt.Printf("  %s %-18s %s\n", mark, d.Name, property.Format(d.ID, v))
		}
	}
	return nil
}

func (s *session) message(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if missing := s.disp.SetMessage(text); missing > 0 {
		fmt.Printf("%d characters could not be shown\n", missing)
	}
	if err := s.sync.SyncOnce(ctx); err != nil {
		return err
	}
	fmt.Println(s.disp.Message())
	return nil
}

func (s *session) dumpTrace() error {
	if s.sim == nil {
		return fmt.Errorf("trace is only available with -sim")
	}
	s.sim.Do(func(*chain.Chain) {
		s.trace.Dump(func(line string) { fmt.Println(line) })
		s.trace.Clear()
	})
	return nil
}
