// Package main is the entry point for the lumen editor.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/lumen/internal/app"
	"github.com/dshills/lumen/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type flags struct {
	configPath string
	initScript string
	logLevel   string
	headless   bool
}

func main() {
	os.Exit(run())
}

func run() int {
	f := parseFlags()

	cfg, err := config.Load(config.Options{Path: f.configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 2
		}
	}

	application, err := app.New(app.Options{
		Config:     cfg,
		InitScript: f.initScript,
		Headless:   f.headless,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// The Lua state belongs to the main loop, so a signal only asks the
	// loop to stop; Run shuts down on its way out.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		if _, ok := <-signals; ok {
			application.Adapter().Quit()
		}
	}()

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() flags {
	var f flags
	var showVersion bool

	flag.StringVar(&f.configPath, "config", "", "Path to configuration file (.toml, .yaml)")
	flag.StringVar(&f.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&f.initScript, "init", "", "Init script to run instead of script.init")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&f.headless, "headless", false, "Run without a terminal until scripts finish")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "lumen - a Lua-scripted text editor\n\n")
		fmt.Fprintf(os.Stderr, "Usage: lumen [options] [script.lua]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lumen                          Edit with ~/.lumen/init.lua\n")
		fmt.Fprintf(os.Stderr, "  lumen -headless build.lua      Run a script without a terminal\n")
		fmt.Fprintf(os.Stderr, "  lumen -c ./lumen.toml          Use another configuration\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("lumen %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch args := flag.Args(); {
	case len(args) > 1:
		fmt.Fprintf(os.Stderr, "Error: at most one script may be given\n")
		flag.Usage()
		os.Exit(2)
	case len(args) == 1 && f.initScript != "":
		fmt.Fprintf(os.Stderr, "Error: -init and a script argument are exclusive\n")
		os.Exit(2)
	case len(args) == 1:
		f.initScript = args[0]
	}
	return f
}
