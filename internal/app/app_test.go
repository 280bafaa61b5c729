package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/lumen/internal/config"
	"github.com/dshills/lumen/internal/platform"
	"github.com/dshills/lumen/internal/platform/headless"
	"github.com/dshills/lumen/internal/runtime"
)

type appFixture struct {
	app  *Application
	ui   *headless.Adapter
	out  bytes.Buffer
	diag bytes.Buffer
}

// newAppFixture creates a headless application. A non-empty init is
// written to the init script.
func newAppFixture(t *testing.T, init string, opts ...func(*config.Config, *Options)) *appFixture {
	t.Helper()
	cfg := config.Default()
	cfg.UI.Backend = config.BackendHeadless
	cfg.Script.Home = t.TempDir()
	cfg.Script.Init = filepath.Join(cfg.Script.Home, "init.lua")
	cfg.Process.ShutdownTimeout = config.Duration(time.Second)
	if init != "" {
		if err := os.WriteFile(cfg.Script.Init, []byte(init), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f := &appFixture{}
	o := Options{
		Config:      cfg,
		Logger:      NewLogger(LoggerConfig{Level: LogLevelError, Output: &bytes.Buffer{}}),
		Stdout:      &f.out,
		Diagnostics: &f.diag,
	}
	for _, fn := range opts {
		fn(cfg, &o)
	}
	app, err := New(o)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.app = app
	f.ui = app.Adapter().(*headless.Adapter)
	t.Cleanup(func() { _ = app.Shutdown() })
	return f
}

func (f *appFixture) start(t *testing.T) {
	t.Helper()
	if err := f.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func (f *appFixture) run(t *testing.T, code string) {
	t.Helper()
	if err := f.app.Host().State().DoString(code); err != nil {
		t.Fatalf("DoString(%q) error = %v", code, err)
	}
}

// eval prints expr and returns the output.
func (f *appFixture) eval(t *testing.T, expr string) string {
	t.Helper()
	f.out.Reset()
	f.run(t, "print("+expr+")")
	return strings.TrimSuffix(f.out.String(), "\n")
}

func TestApplication_Start(t *testing.T) {
	f := newAppFixture(t, `events.connect(events.INITIALIZED, function() print("initialized", #_BUFFERS) end)`)
	f.start(t)

	if got := f.out.String(); got != "initialized\t1\n" {
		t.Errorf("output = %q", got)
	}
	if phase := f.app.Runtime().Phase(); phase != runtime.Running {
		t.Errorf("Phase() = %v, want running", phase)
	}
	if !f.ui.TabsVisible() {
		t.Error("tabs hidden, want shown")
	}
	if err := f.app.Start(); err != nil {
		t.Errorf("second Start() error = %v", err)
	}
	if strings.Count(f.out.String(), "initialized") != 1 {
		t.Errorf("initialized emitted more than once: %q", f.out.String())
	}
}

func TestApplication_InitScript(t *testing.T) {
	tests := []struct {
		name    string
		init    string
		opt     func(*config.Config, *Options)
		wantErr error
		dialog  string
	}{
		{name: "no script", init: ""},
		{
			name:    "script error",
			init:    `error("broken init")`,
			wantErr: ErrInitialization,
			dialog:  "broken init",
		},
		{
			name:    "syntax error",
			init:    `local = 1`,
			wantErr: ErrInitialization,
			dialog:  "init.lua",
		},
		{
			name: "missing explicit script",
			opt: func(_ *config.Config, o *Options) {
				o.InitScript = filepath.Join(os.TempDir(), "lumen-no-such-init.lua")
			},
			wantErr: os.ErrNotExist,
			dialog:  "lumen-no-such-init.lua",
		},
		{
			name: "init disabled",
			opt: func(c *config.Config, _ *Options) {
				c.Script.Init = ""
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []func(*config.Config, *Options)
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			f := newAppFixture(t, tt.init, opts...)
			err := f.app.Start()

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Start() error = %v", err)
				}
				if n := len(f.ui.Dialogs()); n != 0 {
					t.Errorf("%d dialogs shown, want 0", n)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrInitialization) {
				t.Fatalf("Start() error = %v, want %v", err, tt.wantErr)
			}
			var cerr *ComponentError
			if !errors.As(err, &cerr) || cerr.Component != "script" {
				t.Errorf("Start() error = %v, want a script ComponentError", err)
			}
			dialogs := f.ui.Dialogs()
			if len(dialogs) != 1 {
				t.Fatalf("%d dialogs shown, want 1", len(dialogs))
			}
			if d := dialogs[0]; d.Kind != platform.MessageDialog || !strings.Contains(d.Text, tt.dialog) {
				t.Errorf("dialog = %v %q, want message containing %q", d.Kind, d.Text, tt.dialog)
			}
			if phase := f.app.Runtime().Phase(); phase != runtime.Startup {
				t.Errorf("Phase() = %v, want startup", phase)
			}
		})
	}
}

func TestApplication_Key(t *testing.T) {
	const init = `
last = ""
events.connect(events.KEYPRESS, function(code, mods)
  last = code .. ":" .. mods
  if code == 66 then return true end
end)
`
	tests := []struct {
		name     string
		keys     []platform.KeyEvent
		wantText string
		wantLast string
	}{
		{"printable", []platform.KeyEvent{{Code: 'a', Rune: 'a'}, {Code: 'b', Rune: 'b'}}, "ab", "98:0"},
		{"shifted", []platform.KeyEvent{{Code: 'A', Mods: platform.ModShift, Rune: 'A'}}, "A", "65:1"},
		{"control", []platform.KeyEvent{{Code: 'a', Mods: platform.ModCtrl, Rune: 'a'}}, "", "97:2"},
		{"enter and tab", []platform.KeyEvent{{Code: platform.KeyEnter}, {Code: platform.KeyTab}}, "\n\t", "9:0"},
		{"handled", []platform.KeyEvent{{Code: 'B', Rune: 'B'}}, "", "66:0"},
		{"arrow", []platform.KeyEvent{{Code: platform.KeyLeft}}, "", "302:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAppFixture(t, init)
			f.start(t)
			for _, k := range tt.keys {
				f.app.Key(k)
			}
			if got := f.eval(t, "buffer.text"); got != tt.wantText {
				t.Errorf("buffer.text = %q, want %q", got, tt.wantText)
			}
			if got := f.eval(t, "last"); got != tt.wantLast {
				t.Errorf("keypress args = %q, want %q", got, tt.wantLast)
			}
		})
	}
}

func TestApplication_Quit(t *testing.T) {
	t.Run("close requested", func(t *testing.T) {
		f := newAppFixture(t, `events.connect(events.QUIT, function() print("quit") end)`)
		f.start(t)
		if !f.app.CloseRequested() {
			t.Fatal("CloseRequested() = false, want true")
		}
		if err := f.app.Shutdown(); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if got := f.out.String(); got != "quit\n" {
			t.Errorf("output = %q, want one quit", got)
		}
	})

	t.Run("veto", func(t *testing.T) {
		f := newAppFixture(t, `events.connect(events.QUIT, function() return true end)`)
		f.start(t)
		if f.app.CloseRequested() {
			t.Error("CloseRequested() = true, want vetoed")
		}
	})

	t.Run("shutdown emits once", func(t *testing.T) {
		f := newAppFixture(t, `events.connect(events.QUIT, function() print("quit") end)`)
		f.start(t)
		for i := 0; i < 2; i++ {
			if err := f.app.Shutdown(); err != nil {
				t.Fatalf("Shutdown() error = %v", err)
			}
		}
		if got := f.out.String(); got != "quit\n" {
			t.Errorf("output = %q, want one quit", got)
		}
		if phase := f.app.Runtime().Phase(); phase != runtime.Shutdown {
			t.Errorf("Phase() = %v, want shutdown", phase)
		}
		if f.app.Runtime().CurrentView() != nil {
			t.Error("views survive shutdown")
		}
	})

	t.Run("shutdown before start", func(t *testing.T) {
		f := newAppFixture(t, "")
		if err := f.app.Shutdown(); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if f.out.Len() != 0 {
			t.Errorf("output = %q, want none", f.out.String())
		}
	})
}

func TestApplication_Run(t *testing.T) {
	t.Run("timer quits", func(t *testing.T) {
		f := newAppFixture(t, `
local n = 0
timeout(0.001, function()
  n = n + 1
  if n == 3 then
    print("ticks", n)
    quit()
    return false
  end
  return true
end)
`)
		if err := f.app.Run(); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := f.out.String(); got != "ticks\t3\n" {
			t.Errorf("output = %q", got)
		}
		if err := f.app.Run(); !errors.Is(err, ErrAlreadyRunning) {
			t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
		}
	})

	t.Run("typed keys", func(t *testing.T) {
		f := newAppFixture(t, `events.connect(events.QUIT, function() print(buffer.text) end)`)
		f.ui.Type(
			platform.KeyEvent{Code: 'h', Rune: 'h'},
			platform.KeyEvent{Code: 'i', Rune: 'i'},
		)
		if err := f.app.Run(); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := f.out.String(); got != "hi\n" {
			t.Errorf("output = %q, want %q", got, "hi\n")
		}
	})

	t.Run("process", func(t *testing.T) {
		f := newAppFixture(t, `
os.spawn("echo hi", function(s) print("out", s) end, nil, function(code)
  print("exit", code)
end)
`)
		if err := f.app.Run(); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := f.out.String(); got != "out\thi\n\nexit\t0\n" {
			t.Errorf("output = %q", got)
		}
	})

	t.Run("init failure", func(t *testing.T) {
		f := newAppFixture(t, `error("nope")`)
		if err := f.app.Run(); !errors.Is(err, ErrInitialization) {
			t.Errorf("Run() error = %v, want ErrInitialization", err)
		}
	})
}

func TestApplication_Resize(t *testing.T) {
	f := newAppFixture(t, `events.connect(events.RESIZE, function(w, h) print("resize", w, h) end)`)
	f.app.Resize(10, 5)
	f.start(t)
	f.app.Resize(100, 40)
	if got := f.out.String(); got != "resize\t100\t40\n" {
		t.Errorf("output = %q", got)
	}
}

func TestApplication_WatchInit(t *testing.T) {
	const init = `events.connect(events.INIT_CHANGED, function(path) print("changed", path) end)`
	f := newAppFixture(t, init, func(c *config.Config, _ *Options) {
		c.Script.Watch = true
	})
	f.start(t)
	path := f.app.Config().Script.Init

	if err := os.WriteFile(path, []byte(init+"\n-- edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := "changed\t" + path + "\n"
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f.app.Update()
		if strings.Contains(f.out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output = %q, want %q", f.out.String(), want)
}

func TestApplication_Content(t *testing.T) {
	f := newAppFixture(t, "")
	f.start(t)
	f.run(t, `buffer.text = "one\ntwo\nthree\nfour" buffer:goto_pos(buffer.length + 1)`)
	view := f.app.FocusedView()

	got := f.app.Content(view, 2)
	if want := []string{"three", "four"}; strings.Join(got.Lines, "|") != strings.Join(want, "|") {
		t.Errorf("Lines = %q, want %q", got.Lines, want)
	}
	if got.FirstLine != 2 || got.CaretLine != 3 || got.CaretColumn != 4 || !got.Modified {
		t.Errorf("Content() = %+v", got)
	}
	if first := f.eval(t, "view.first_visible_line"); first != "3" {
		t.Errorf("first_visible_line = %s, want 3", first)
	}

	f.run(t, `buffer:goto_pos(1) buffer:set_save_point()`)
	got = f.app.Content(view, 2)
	if got.FirstLine != 0 || got.CaretLine != 0 || got.Modified {
		t.Errorf("Content() after goto_pos(1) = %+v", got)
	}
	if got := f.app.Content(view, 0); len(got.Lines) != 0 {
		t.Errorf("Content(view, 0) = %+v", got)
	}
}

func TestTypedText(t *testing.T) {
	tests := []struct {
		ev   platform.KeyEvent
		want string
	}{
		{platform.KeyEvent{Code: 'x', Rune: 'x'}, "x"},
		{platform.KeyEvent{Code: 'é', Rune: 'é'}, "é"},
		{platform.KeyEvent{Code: 'x', Mods: platform.ModAlt, Rune: 'x'}, ""},
		{platform.KeyEvent{Code: platform.KeyEnter}, "\n"},
		{platform.KeyEvent{Code: platform.KeyEscape}, ""},
	}
	for _, tt := range tests {
		if got := typedText(tt.ev); got != tt.want {
			t.Errorf("typedText(%+v) = %q, want %q", tt.ev, got, tt.want)
		}
	}
}
