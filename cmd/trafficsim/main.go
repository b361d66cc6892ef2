// Package main provides trafficsim - a set of phase signals with simulated
// vehicles waiting to cross on green.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"

	"github.com/anggasct/phasesignal"
	"github.com/anggasct/phasesignal/pkg/config"
	"github.com/anggasct/phasesignal/pkg/observers"
	"github.com/anggasct/phasesignal/pkg/supervisor"
	"github.com/anggasct/phasesignal/visualization"
)

// opts holds all command-line options.
type opts struct {
	Config  string        `short:"c" long:"config" description:"path to YAML config file (embedded defaults if omitted)"`
	Signals int           `short:"s" long:"signals" description:"generate this many signals from the first configured one"`
	Waiters int           `short:"w" long:"waiters" default:"-1" description:"waiters per signal (-1 keeps config)"`
	RunFor  time.Duration `short:"r" long:"run-for" description:"how long to run the simulation"`
	Debug   bool          `short:"d" long:"debug" description:"enable debug logging"`
	NoColor bool          `long:"no-color" description:"disable color output"`
	Dot     bool          `long:"dot" description:"print the DOT graph of the first signal and exit"`
}

const shutdownTimeout = 5 * time.Second

var (
	crossColor = color.New(color.FgGreen)
	statsColor = color.New(color.FgCyan)
)

func main() {
	var o opts
	parser := flags.NewParser(&o, flags.Default)

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// setup context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, o, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// syncWriter serialises writes from the logger and the waiters
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// simSignal pairs a signal with the metrics collected for it
type simSignal struct {
	sig     *phasesignal.PhaseSignal
	metrics *observers.MetricsObserver
}

func run(ctx context.Context, o opts, out io.Writer) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	out = &syncWriter{w: out}

	if cfg.NoColor {
		color.NoColor = true
	}

	level, err := observers.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := observers.NewLoggingObserver(level, "trafficsim", out)
	logger.SetColor(!cfg.NoColor)

	signals, err := buildSignals(cfg, logger)
	if err != nil {
		return err
	}

	if o.Dot {
		first := cfg.Signals[0]
		options := visualization.DefaultDOTOptions()
		options.EdgeLabel = visualization.EdgeLabel(first.MinPhase, first.MaxPhase)
		dot, dotErr := visualization.NewDOTGenerator(signals[0].sig, options).Generate()
		if dotErr != nil {
			return fmt.Errorf("generate dot: %w", dotErr)
		}
		_, err = io.WriteString(out, dot)
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.RunFor)
	defer cancel()

	sup := supervisor.New(runCtx)
	for _, s := range signals {
		sup.StartSignal(s.sig)
		for i := 1; i <= cfg.WaitersPerSignal; i++ {
			sup.Go(fmt.Sprintf("waiter/%s/%d", s.sig.Name(), i), crossingLoop(s.sig, i, out))
		}
	}

	<-runCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	shutdownErr := sup.Shutdown(shutdownCtx)

	printMetrics(out, signals)

	if shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}
	return nil
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig(o opts) (config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	if o.Signals > 0 {
		cfg.Signals = cfg.GenerateSignals("signal", o.Signals)
	}
	if o.Waiters >= 0 {
		cfg.WaitersPerSignal = o.Waiters
	}
	if o.RunFor > 0 {
		cfg.RunFor = o.RunFor
	}
	if o.Debug {
		cfg.LogLevel = "debug"
	}
	if o.NoColor {
		cfg.NoColor = true
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func buildSignals(cfg config.Config, logger *observers.LoggingObserver) ([]simSignal, error) {
	result := make([]simSignal, 0, len(cfg.Signals))
	for _, sc := range cfg.Signals {
		durations, err := sc.DurationFunc()
		if err != nil {
			return nil, err
		}
		metrics := observers.NewMetricsObserver()
		sig := phasesignal.New(
			phasesignal.WithName(sc.Name),
			phasesignal.WithDurationFunc(durations),
			phasesignal.WithObserver(logger),
			phasesignal.WithObserver(metrics),
		)
		result = append(result, simSignal{sig: sig, metrics: metrics})
	}
	return result, nil
}

// crossingLoop returns a waiter that crosses once per green phase
func crossingLoop(sig *phasesignal.PhaseSignal, n int, out io.Writer) func(context.Context) error {
	return func(ctx context.Context) error {
		for crossings := 1; ; crossings++ {
			if err := sig.WaitForGreen(ctx); err != nil {
				return err
			}

			crossColor.Fprintf(out, "%s: vehicle %d crossed (%d)\n", sig.Name(), n, crossings)

			if err := sig.WaitFor(ctx, phasesignal.Red); err != nil {
				return err
			}
		}
	}
}

func printMetrics(out io.Writer, signals []simSignal) {
	for _, s := range signals {
		m := s.metrics
		visits := m.GetPhaseVisitCounts()
		spent := m.GetPhaseTimeSpent()
		blocked, released, abandoned := m.GetWaiterCounts()

		statsColor.Fprintf(out, "%s: %d transitions, max overshoot %s\n",
			s.sig.Name(), s.sig.TransitionCount(), m.GetMaxOvershoot())

		for _, p := range phasesignal.Phases() {
			fmt.Fprintf(out, "  %-5s visits=%d time=%s\n", p, visits[p], spent[p].Round(time.Millisecond))
		}
		fmt.Fprintf(out, "  waiters blocked=%d released=%d abandoned=%d\n", blocked, released, abandoned)
	}
}
