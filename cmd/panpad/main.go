// Package main is the entry point for panpad, which turns mouse motion
// into analog stick key presses.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.design/x/hotkey/mainthread"

	"github.com/dshills/panpad/internal/app"
	"github.com/dshills/panpad/internal/config"
	"github.com/dshills/panpad/internal/logging"
	"github.com/dshills/panpad/internal/native"
	"github.com/dshills/panpad/internal/native/hotkey"
	"github.com/dshills/panpad/internal/pointer"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Pointer sources.
const (
	sourceNative   = "native"
	sourceTerminal = "terminal"
)

type flags struct {
	configPath string
	logLevel   string
	logFile    string
	backend    string
	source     string
	device     string
	debug      bool
	dumpConfig bool
}

func main() {
	code := 0
	// Global hotkeys need the main thread on macOS.
	mainthread.Init(func() { code = run() })
	os.Exit(code)
}

func run() int {
	f := parseFlags()

	logger, closeLog, err := newLogger(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()
	logging.SetDefault(logger)

	env := config.NewEnvLoader("PANPAD_")
	cfg, err := config.Resolve(f.configPath, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if f.dumpConfig {
		format, err := config.FormatFor(f.configPath)
		if err != nil {
			format = config.FormatTOML
		}
		data, err := config.Marshal(cfg, format)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = os.Stdout.Write(data)
		return 0
	}

	backend, err := native.Open(f.backend,
		native.WithLogger(logger),
		native.WithDeviceName(f.device),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open %s backend: %v\n", f.backend, err)
		return 1
	}

	opts := app.Options{
		Store:      config.NewStore(cfg),
		ConfigPath: f.configPath,
		Env:        env,
		Native:     backend,
		Logger:     logger,
	}

	switch f.source {
	case sourceTerminal:
		toggle, _ := cfg.Hotkey()
		term, err := pointer.NewTerminal(
			pointer.WithToggle(toggle),
			pointer.WithTerminalLogger(logger),
		)
		if err != nil {
			_ = backend.Close()
			fmt.Fprintf(os.Stderr, "Error: failed to open terminal: %v\n", err)
			return 1
		}
		opts.Pointer = term
		opts.Relative = true
	default:
		src, err := native.OpenPointer(backend, cfg.Tuning.SampleInterval.Std())
		if err != nil {
			_ = backend.Close()
			fmt.Fprintf(os.Stderr, "Error: no pointer source for %s backend: %v\n", f.backend, err)
			return 1
		}
		opts.Pointer = src
		opts.Hotkeys = hotkey.New(logger)
	}

	application, err := app.New(opts)
	if err != nil {
		_ = opts.Pointer.Close()
		_ = backend.Close()
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			application.RequestReload()
		}
	}()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(f flags) (*logging.Logger, func(), error) {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(f.logLevel)
	if f.debug {
		cfg.Level = logging.LevelDebug
	}

	closeFn := func() {}
	switch {
	case f.logFile != "":
		file, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		cfg.Output = file
		closeFn = func() { _ = file.Close() }
	case f.source == sourceTerminal:
		// The terminal owns the screen.
		cfg.Output = io.Discard
	}
	return logging.New(cfg), closeFn, nil
}

func parseFlags() flags {
	var f flags
	var showVersion bool
	var showHelp bool

	flag.StringVar(&f.configPath, "config", config.DefaultPath(), "Path to configuration file (.toml or .yaml)")
	flag.StringVar(&f.configPath, "c", config.DefaultPath(), "Path to configuration file (shorthand)")
	flag.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.logFile, "log-file", "", "Write logs to a file instead of stderr")
	flag.StringVar(&f.backend, "backend", native.BackendX11, "Key injection backend ("+strings.Join(native.Backends(), ", ")+")")
	flag.StringVar(&f.source, "source", sourceNative, "Pointer source (native, terminal)")
	flag.StringVar(&f.device, "device", "panpad", "Virtual keyboard name for the uinput backend")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.debug, "d", false, "Enable debug logging (shorthand)")
	flag.BoolVar(&f.dumpConfig, "dump-config", false, "Print the effective configuration and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "panpad - mouse to analog stick key remapper\n\n")
		fmt.Fprintf(os.Stderr, "Usage: panpad [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  PANPAD_* variables override file settings, e.g. PANPAD_SENSITIVITY=1.5\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  panpad                          X11 injection, toggle with the configured hotkey\n")
		fmt.Fprintf(os.Stderr, "  panpad -backend uinput          Inject through /dev/uinput\n")
		fmt.Fprintf(os.Stderr, "  panpad -backend dry -source terminal -log-file panpad.log\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("panpad %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if !logging.ValidLevel(f.logLevel) {
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", f.logLevel)
		os.Exit(1)
	}

	switch f.source {
	case sourceNative, sourceTerminal:
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid pointer source %q (must be native or terminal)\n", f.source)
		os.Exit(1)
	}

	return f
}
