// Package config loads lumen's settings.
//
// Settings are layered, higher layers overriding lower ones:
//
//	environment   LUMEN_* variables
//	file          config.toml, config.yaml or config.yml
//	defaults      Default()
//
// Each layer is a nested map. The layers are deep-merged and the result is
// decoded into a Config, so unknown keys in any layer are reported.
//
//	[logging]
//	level = "debug"
//
//	[script]
//	init = "~/.lumen/init.lua"
//	watch = true
//
//	[scheduler]
//	tick = "10ms"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the complete set of settings.
type Config struct {
	Logging   Logging   `toml:"logging"`
	Script    Script    `toml:"script"`
	Scheduler Scheduler `toml:"scheduler"`
	UI        UI        `toml:"ui"`
	Process   Process   `toml:"process"`
}

// Logging configures the application logger.
type Logging struct {
	// Level is one of debug, info, warn or error.
	Level string `toml:"level"`
	// File receives log output. Empty means standard error.
	File string `toml:"file"`
}

// Script configures the Lua host.
type Script struct {
	// Home is prepended to the Lua module path.
	Home string `toml:"home"`
	// Init is the script run at startup.
	Init string `toml:"init"`
	// Watch emits init_changed when Init is modified.
	Watch bool `toml:"watch"`
}

// Scheduler configures the process and timer scheduler.
type Scheduler struct {
	// Tick is the idle interval between scheduler ticks.
	Tick Duration `toml:"tick"`
	// ReadChunk bounds each output chunk delivered to a callback.
	ReadChunk int `toml:"read_chunk"`
}

// UI configures the platform backend.
type UI struct {
	// Backend is "terminal" or "headless".
	Backend string `toml:"backend"`
	Dark    bool   `toml:"dark"`
	Tabs    bool   `toml:"tabs"`
}

// Process configures the process supervisor.
type Process struct {
	// ShutdownTimeout bounds how long shutdown waits for children.
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	// Max limits concurrent children. 0 means unlimited.
	Max int `toml:"max"`
}

// Backends.
const (
	BackendTerminal = "terminal"
	BackendHeadless = "headless"
)

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Logging: Logging{Level: "info"},
		Script:  Script{Home: defaultHome(), Init: filepath.Join(defaultHome(), "init.lua")},
		Scheduler: Scheduler{
			Tick:      Duration(10 * time.Millisecond),
			ReadChunk: 64 * 1024,
		},
		UI:      UI{Backend: BackendTerminal, Dark: true, Tabs: true},
		Process: Process{ShutdownTimeout: Duration(5 * time.Second)},
	}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lumen"
	}
	return filepath.Join(home, ".lumen")
}

// Options control Load.
type Options struct {
	// Path is the configuration file. Empty means the first of
	// config.toml, config.yaml and config.yml found in the default home.
	Path string
	// EnvPrefix overrides the "LUMEN_" environment prefix.
	EnvPrefix string
	// Environ replaces os.Environ.
	Environ func() []string
}

// Load builds a Config from defaults, the configuration file and the
// environment. A missing default file is not an error; a missing explicit
// Path is.
func Load(opts Options) (*Config, error) {
	base, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	path := opts.Path
	explicit := path != ""
	if !explicit {
		path = findDefault(defaultHome())
	}
	if path != "" {
		file, err := LoadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && !explicit:
		case err != nil:
			return nil, err
		default:
			base = DeepMerge(base, file)
		}
	}

	env := NewEnvLoader(opts.EnvPrefix)
	if opts.Environ != nil {
		env.environ = opts.Environ
	}
	envMap, err := env.Load()
	if err != nil {
		return nil, err
	}
	base = DeepMerge(base, envMap)

	cfg, err := decode(base)
	if err != nil {
		return nil, err
	}
	cfg.Script.Home = expandHome(cfg.Script.Home)
	cfg.Script.Init = expandHome(cfg.Script.Init)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findDefault(dir string) string {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks settings that decoding cannot.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "logging.level", Value: c.Logging.Level, Message: "must be debug, info, warn or error"}
	}
	switch c.UI.Backend {
	case BackendTerminal, BackendHeadless:
	default:
		return &ValidationError{Path: "ui.backend", Value: c.UI.Backend, Message: "must be terminal or headless"}
	}
	if c.Scheduler.Tick <= 0 {
		return &ValidationError{Path: "scheduler.tick", Value: c.Scheduler.Tick, Message: "must be positive"}
	}
	if c.Scheduler.ReadChunk <= 0 {
		return &ValidationError{Path: "scheduler.read_chunk", Value: c.Scheduler.ReadChunk, Message: "must be positive"}
	}
	if c.Process.Max < 0 {
		return &ValidationError{Path: "process.max", Value: c.Process.Max, Message: "must not be negative"}
	}
	return nil
}

// toMap converts c to its nested map form.
func toMap(c *Config) (map[string]any, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	return m, nil
}

// decode turns the merged map into a Config, rejecting unknown keys.
func decode(m map[string]any) (*Config, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	cfg := &Config{}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, unknownKeys(strict))
		}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, derr.Error())
		}
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return cfg, nil
}

func unknownKeys(err *toml.StrictMissingError) string {
	keys := make([]string, 0, len(err.Errors))
	for _, e := range err.Errors {
		keys = append(keys, strings.Join(e.Key(), "."))
	}
	return strings.Join(keys, ", ")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Duration is a time.Duration written as a string such as "10ms".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}
