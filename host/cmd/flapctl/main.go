package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"flapchain/chain"
	"flapchain/core"
	"flapchain/host/config"
	"flapchain/host/controller"
	"flapchain/host/display"
	"flapchain/host/serial"
	"flapchain/protocol"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "", "Serial device path (default: first USB serial port)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides the configuration)")
	simulate   = flag.Int("sim", 0, "Simulate a chain of N modules instead of using hardware")
	autoSync   = flag.Bool("auto", false, "Synchronize the display in the background")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

// session is the state shared by the interactive commands
type session struct {
	ctrl  *controller.Controller
	disp  *display.Display
	sync  *display.Synchronizer
	sim   *chain.Port // nil on hardware
	trace *core.TraceRing
	log   zerolog.Logger
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := controller.NewMetrics(reg)
	if cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics.Listen, reg, log)
	}

	s, err := connect(cfg, metrics, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer s.ctrl.Close()

	n, err := s.sync.Discover(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("discovery failed, use 'discover' to retry")
	} else {
		fmt.Printf("Found %d modules\n", n)
	}

	if *autoSync {
		go func() {
			if err := s.sync.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("synchronizer stopped")
			}
		}()
	}

	// Interactive command loop
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			fmt.Println("Goodbye!")
			return
		}

		if err := s.run(ctx, args[0], args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}

	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *simulate != 0 {
		cfg.Simulation.Modules = *simulate
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info().Str("listen", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics endpoint stopped")
	}
}

// connect opens the hardware chain or builds a simulated one
func connect(cfg *config.Config, metrics *controller.Metrics, log zerolog.Logger) (*session, error) {
	s := &session{
		disp:  display.New(nil),
		trace: core.NewTraceRing(),
		log:   log,
	}

	opts := []controller.Option{
		controller.WithLogger(log),
		controller.WithMetrics(metrics),
		controller.WithTiming(cfg.TriggerDelay(), cfg.ModuleTimeout(), cfg.ByteTimeout()),
	}

	if cfg.Simulation.Modules > 0 {
		s.trace.SetEnabled(true)
		c, err := chain.New(cfg.Simulation.Modules,
			chain.WithIdleTimeout(cfg.ModuleTimeout()),
			chain.WithTrace(s.trace))
		if err != nil {
			return nil, err
		}
		s.sim = chain.NewPort(c, cfg.ReadTimeout())
		s.ctrl = controller.New(protocol.NewHostTransport(s.sim), opts...)
		log.Info().Int("modules", c.Len()).Msg("using simulated chain")
	} else {
		dev := cfg.Serial.Device
		if dev == "" {
			ports, err := serial.ListPorts()
			if err != nil {
				return nil, err
			}
			if len(ports) == 0 {
				return nil, fmt.Errorf("no serial ports found, use -device")
			}
			dev = ports[0]
		}

		log.Info().Str("device", dev).Int("baud", cfg.Serial.Baud).Msg("connecting")
		ctrl, err := controller.Connect(serial.Config{
			Device:      dev,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.ReadTimeout(),
		}, opts...)
		if err != nil {
			return nil, err
		}
		s.ctrl = ctrl
	}

	s.sync = display.NewSynchronizer(s.disp, s.ctrl,
		display.WithRetries(cfg.Sync.Retries),
		display.WithInterval(cfg.SyncInterval()),
		display.WithLogger(log))
	return s, nil
}
