package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noEnv() []string { return nil }

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Scheduler.Tick.Std() != 10*time.Millisecond || cfg.Scheduler.ReadChunk != 64*1024 {
		t.Errorf("scheduler defaults = %+v", cfg.Scheduler)
	}
	if cfg.UI.Backend != BackendTerminal {
		t.Errorf("backend = %q", cfg.UI.Backend)
	}
}

func TestLoad_NoFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(Options{Environ: noEnv})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(home, ".lumen", "init.lua"); cfg.Script.Init != want {
		t.Errorf("Script.Init = %q, want %q", cfg.Script.Init, want)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_DefaultFileInHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".lumen")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("ui:\n  tabs: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(Options{Environ: noEnv})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UI.Tabs {
		t.Error("ui.tabs from ~/.lumen/config.yaml not applied")
	}
}

func TestLoad_Files(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "config.toml",
			content: `
[logging]
level = "debug"

[script]
init = "/etc/lumen/init.lua"
watch = true

[scheduler]
tick = "25ms"
read_chunk = 1024

[ui]
backend = "headless"

[process]
shutdown_timeout = "2s"
max = 4
`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `
logging:
  level: debug
script:
  init: /etc/lumen/init.lua
  watch: true
scheduler:
  tick: 25ms
  read_chunk: 1024
ui:
  backend: headless
process:
  shutdown_timeout: 2s
  max: 4
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			cfg, err := Load(Options{Path: path, Environ: noEnv})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Logging.Level != "debug" || cfg.Script.Init != "/etc/lumen/init.lua" || !cfg.Script.Watch {
				t.Errorf("logging/script = %+v %+v", cfg.Logging, cfg.Script)
			}
			if cfg.Scheduler.Tick.Std() != 25*time.Millisecond || cfg.Scheduler.ReadChunk != 1024 {
				t.Errorf("scheduler = %+v", cfg.Scheduler)
			}
			if cfg.UI.Backend != BackendHeadless || !cfg.UI.Dark {
				t.Errorf("ui = %+v", cfg.UI)
			}
			if cfg.Process.ShutdownTimeout.Std() != 2*time.Second || cfg.Process.Max != 4 {
				t.Errorf("process = %+v", cfg.Process)
			}
		})
	}
}

func TestLoad_Env(t *testing.T) {
	path := writeFile(t, "config.toml", "[logging]\nlevel = \"warn\"\n")
	env := func() []string {
		return []string{
			"LUMEN_LOG_LEVEL=error",
			"LUMEN_WATCH=yes",
			"LUMEN_SCHEDULER_READ_CHUNK=512",
			"LUMEN_PROCESS_SHUTDOWN_TIMEOUT=3s",
			"LUMEN_UNRELATED=1",
			"PATH=/bin",
		}
	}
	cfg, err := Load(Options{Path: path, Environ: env})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("env did not override file: level = %q", cfg.Logging.Level)
	}
	if !cfg.Script.Watch || cfg.Scheduler.ReadChunk != 512 || cfg.Process.ShutdownTimeout.Std() != 3*time.Second {
		t.Errorf("env settings not applied: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		check   func(error) bool
	}{
		{"unknown key", "c.toml", "[ui]\ncolour = 1\n", func(err error) bool { return errors.Is(err, ErrUnknownSetting) }},
		{"wrong type", "c.toml", "[scheduler]\nread_chunk = \"big\"\n", func(err error) bool { return errors.Is(err, ErrTypeMismatch) }},
		{"bad duration", "c.toml", "[scheduler]\ntick = \"soon\"\n", func(err error) bool { return errors.Is(err, ErrTypeMismatch) }},
		{"toml syntax", "c.toml", "[ui\n", func(err error) bool {
			var perr *ParseError
			return errors.As(err, &perr) && perr.Line > 0
		}},
		{"yaml syntax", "c.yaml", "ui: [\n", func(err error) bool {
			var perr *ParseError
			return errors.As(err, &perr)
		}},
		{"unsupported format", "c.json", "{}", func(err error) bool { return errors.Is(err, ErrUnsupportedFormat) }},
		{"invalid backend", "c.toml", "[ui]\nbackend = \"gtk\"\n", func(err error) bool {
			var verr *ValidationError
			return errors.As(err, &verr) && verr.Path == "ui.backend"
		}},
		{"invalid level", "c.toml", "[logging]\nlevel = \"loud\"\n", func(err error) bool {
			var verr *ValidationError
			return errors.As(err, &verr) && verr.Path == "logging.level"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(Options{Path: path, Environ: noEnv})
			if err == nil || !tt.check(err) {
				t.Errorf("Load() error = %v", err)
			}
		})
	}

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(Options{Path: filepath.Join(t.TempDir(), "none.toml"), Environ: noEnv})
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Load() error = %v, want ErrNotExist", err)
		}
	})
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"ui":      map[string]any{"dark": true, "tabs": true},
		"logging": map[string]any{"level": "info"},
	}
	src := map[string]any{
		"ui":      map[string]any{"tabs": false},
		"logging": "flat",
		"process": map[string]any{"max": 2},
	}
	want := map[string]any{
		"ui":      map[string]any{"dark": true, "tabs": false},
		"logging": "flat",
		"process": map[string]any{"max": 2},
	}
	if got := DeepMerge(dst, src); !reflect.DeepEqual(got, want) {
		t.Errorf("DeepMerge() = %v, want %v", got, want)
	}
	if got := DeepMerge(nil, nil); len(got) != 0 {
		t.Errorf("DeepMerge(nil, nil) = %v", got)
	}
}

func TestEnvToPath(t *testing.T) {
	l := NewEnvLoader("")
	tests := []struct {
		env  string
		want string
		ok   bool
	}{
		{"LUMEN_SCHEDULER_READ_CHUNK", "scheduler.read_chunk", true},
		{"LUMEN_UI_DARK", "ui.dark", true},
		{"LUMEN_PROCESS_MAX", "process.max", true},
		{"LUMEN_UI_", "", false},
		{"LUMEN_EDITOR_TAB_SIZE", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			got, ok := l.envToPath(tt.env)
			if got != tt.want || ok != tt.ok {
				t.Errorf("envToPath(%q) = %q, %v", tt.env, got, ok)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"Off", false},
		{"42", int64(42)},
		{"1.5", 1.5},
		{"25ms", "25ms"},
		{"", ""},
		{"1", int64(1)},
	}
	for _, tt := range tests {
		if got := parseValue(tt.in); got != tt.want {
			t.Errorf("parseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Duration = %v", d)
	}
	text, _ := d.MarshalText()
	if string(text) != "1m30s" {
		t.Errorf("MarshalText() = %q", text)
	}
	if err := d.UnmarshalText([]byte("later")); err == nil {
		t.Error("UnmarshalText(later) succeeded")
	}
}
