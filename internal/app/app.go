// Package app wires lumen's components together and runs the editor.
//
// New builds every component from the configuration. Run boots the
// runtime, loads the init script and hands control to the platform
// adapter's main loop, which calls back into the Application through
// platform.Handler. Shutdown tears everything down in reverse order.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dshills/lumen/internal/bridge/call"
	"github.com/dshills/lumen/internal/config"
	"github.com/dshills/lumen/internal/engine"
	"github.com/dshills/lumen/internal/engine/memory"
	"github.com/dshills/lumen/internal/event"
	"github.com/dshills/lumen/internal/platform"
	"github.com/dshills/lumen/internal/platform/headless"
	"github.com/dshills/lumen/internal/platform/term"
	"github.com/dshills/lumen/internal/process"
	"github.com/dshills/lumen/internal/runtime"
	"github.com/dshills/lumen/internal/sched"
	"github.com/dshills/lumen/internal/script"
)

// Application is the central coordinator for all lumen components.
type Application struct {
	cfg    *config.Config
	logger *Logger
	diag   io.Writer

	ui         platform.Adapter
	supervisor *process.Supervisor
	sched      *sched.Scheduler
	emitter    *event.Emitter
	rt         *runtime.Runtime
	calls      *call.Dispatcher
	host       *script.Host
	watcher    *config.Watcher

	initExplicit bool
	closeLog     func() error

	running      atomic.Bool
	started      bool
	closing      bool
	quitEmitted  bool
	shutdownOnce sync.Once
	shutdownErr  error
}

var _ platform.Handler = (*Application)(nil)

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty means the default
	// location.
	ConfigPath string
	// Config replaces loading configuration altogether.
	Config *config.Config
	// Environ replaces os.Environ when loading configuration.
	Environ func() []string

	// InitScript overrides script.init. A missing explicit script is an
	// error; a missing default one is not.
	InitScript string
	// Headless selects the headless backend regardless of configuration.
	Headless bool

	// Adapter replaces the configured backend.
	Adapter platform.Adapter
	// Engine replaces the in-memory text engine.
	Engine engine.Engine
	// Logger replaces the logger built from configuration.
	Logger *Logger
	// Stdout receives script print output. Defaults to os.Stdout.
	Stdout io.Writer
	// Diagnostics receives errors that cannot be shown in a view.
	// Defaults to the log output.
	Diagnostics io.Writer
}

// New creates an Application with the given options.
func New(opts Options) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.Load(config.Options{Path: opts.ConfigPath, Environ: opts.Environ})
		if err != nil {
			return nil, initError("config", "load", err)
		}
	}
	if opts.Headless {
		cfg.UI.Backend = config.BackendHeadless
	}

	app := &Application{cfg: cfg}
	if opts.InitScript != "" {
		cfg.Script.Init = opts.InitScript
		app.initExplicit = true
	}

	app.logger = opts.Logger
	if app.logger == nil {
		logger, closeLog, err := newLogger(cfg.Logging)
		if err != nil {
			return nil, initError("logging", "open log file", err)
		}
		app.logger, app.closeLog = logger, closeLog
	}
	app.diag = opts.Diagnostics
	if app.diag == nil {
		app.diag = app.logger.Writer()
	}

	app.supervisor = process.NewSupervisor(
		process.WithMaxProcesses(cfg.Process.Max),
		process.WithLogger(app.logger.WithComponent("process")),
	)

	app.ui = opts.Adapter
	if app.ui == nil {
		ui, err := newAdapter(cfg, app.supervisor)
		if err != nil {
			app.closeResources()
			return nil, initError(cfg.UI.Backend, "open", err)
		}
		app.ui = ui
	}

	eng := opts.Engine
	if eng == nil {
		eng = memory.New()
	}
	app.calls = call.NewDispatcher(eng)

	app.emitter = event.NewEmitter(event.Options{
		HasView:     func() bool { return app.rt.HasView() },
		Diagnostics: app.diag,
		Logger:      app.logger.WithComponent("event"),
	})
	app.rt = runtime.New(runtime.Options{
		Engine:  eng,
		UI:      app.ui,
		Emitter: app.emitter,
		Logger:  app.logger.WithComponent("runtime"),
	})
	app.sched = sched.New(app.ui, sched.Options{
		ReadChunk: cfg.Scheduler.ReadChunk,
		Report:    app.emitter.Report,
		Repaint:   app.ui.Repaint,
		Logger:    app.logger.WithComponent("sched"),
	})
	app.host = script.New(script.Options{
		State:     script.NewState(script.WithHome(cfg.Script.Home)),
		Runtime:   app.rt,
		Calls:     app.calls,
		UI:        app.ui,
		Scheduler: app.sched,
		Quit:      app.Quit,
		Stdout:    opts.Stdout,
		Logger:    app.logger.WithComponent("script"),
	})

	app.logger.Debug("application created: backend %s", cfg.UI.Backend)
	return app, nil
}

func newLogger(cfg config.Logging) (*Logger, func() error, error) {
	lc := DefaultLoggerConfig()
	lc.Level = ParseLogLevel(cfg.Level)
	if cfg.File == "" {
		return NewLogger(lc), nil, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	lc.Output = f
	return NewLogger(lc), f.Close, nil
}

func newAdapter(cfg *config.Config, spawner sched.Spawner) (platform.Adapter, error) {
	if cfg.UI.Backend == config.BackendHeadless {
		return headless.New(headless.Options{Spawner: spawner, Dark: cfg.UI.Dark}), nil
	}
	return term.New(term.Options{Spawner: spawner, Light: !cfg.UI.Dark, Tick: cfg.Scheduler.Tick.Std()})
}

// Config returns the active configuration.
func (app *Application) Config() *config.Config { return app.cfg }

// Logger returns the application logger.
func (app *Application) Logger() *Logger { return app.logger }

// Runtime returns the editor runtime.
func (app *Application) Runtime() *runtime.Runtime { return app.rt }

// Host returns the Lua host.
func (app *Application) Host() *script.Host { return app.host }

// Scheduler returns the process and timer scheduler.
func (app *Application) Scheduler() *sched.Scheduler { return app.sched }

// Adapter returns the platform backend.
func (app *Application) Adapter() platform.Adapter { return app.ui }

// Run starts the application and drives the adapter's main loop until it
// quits. Shutdown runs before Run returns.
func (app *Application) Run() error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() { _ = app.Shutdown() }()

	if err := app.Start(); err != nil {
		return err
	}
	if err := app.ui.Run(app); err != nil {
		return NewComponentError(app.cfg.UI.Backend, "run", err)
	}
	return nil
}

// Start boots the runtime, installs the Lua host, runs the init script and
// emits initialized. Run calls it; tests may call it and drive Update
// themselves.
func (app *Application) Start() error {
	if app.started {
		return nil
	}
	app.started = true

	if err := app.rt.Boot(); err != nil {
		return initError("runtime", "boot", err)
	}
	if err := app.host.Install(); err != nil {
		return initError("script", "install", err)
	}
	app.emitter.SetDispatcher(app.host)
	app.ui.ShowTabs(app.cfg.UI.Tabs)

	if err := app.loadInit(); err != nil {
		return err
	}
	app.watchInit()

	app.rt.Ready()
	app.emitter.Emit(event.Initialized)
	app.ui.Repaint()
	app.logger.Info("started")
	return nil
}

// loadInit runs the init script. A failure is shown in a modal dialog and
// aborts startup.
func (app *Application) loadInit() error {
	path := app.cfg.Script.Init
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !app.initExplicit {
			app.logger.Debug("no init script at %s", path)
			return nil
		}
		return app.initFailed(err)
	}
	if err := app.host.LoadFile(path); err != nil {
		return app.initFailed(err)
	}
	app.logger.Debug("loaded %s", path)
	return nil
}

func (app *Application) initFailed(cause error) error {
	err := initError("script", "run init script", cause)
	app.logger.Error("%v", err)
	_, derr := app.ui.Dialog(platform.DialogOptions{
		Kind:    platform.MessageDialog,
		Title:   "Initialization failed",
		Text:    cause.Error(),
		Icon:    "dialog-error",
		Buttons: []string{"OK"},
	})
	if derr != nil {
		_, _ = fmt.Fprintln(app.diag, err)
	}
	return err
}

func (app *Application) watchInit() {
	if !app.cfg.Script.Watch || app.cfg.Script.Init == "" {
		return
	}
	w, err := config.NewWatcher()
	if err != nil {
		app.logger.Warn("watch init script: %v", err)
		return
	}
	if err := w.Watch(app.cfg.Script.Init); err != nil {
		app.logger.Warn("watch %s: %v", app.cfg.Script.Init, err)
		_ = w.Close()
		return
	}
	app.watcher = w
}

// Quit asks the application to close. Handlers of the quit event may
// veto it by returning true.
func (app *Application) Quit() {
	if app.CloseRequested() {
		app.ui.Quit()
	}
}

// Shutdown emits quit if it was not emitted yet, stops events, waits for
// child processes and releases the Lua state and every document. It is
// safe to call more than once.
func (app *Application) Shutdown() error {
	app.shutdownOnce.Do(func() {
		app.shutdownErr = app.shutdown()
	})
	return app.shutdownErr
}

func (app *Application) shutdown() error {
	if app.rt.Phase() == runtime.Running && !app.quitEmitted {
		app.quitEmitted = true
		app.emitter.Emit(event.Quit)
	}
	app.rt.BeginShutdown()
	app.sched.Shutdown()
	app.rt.Teardown()
	app.emitter.SetDispatcher(nil)
	app.host.Close()

	var errs []error
	if app.watcher != nil {
		errs = append(errs, app.watcher.Close())
	}
	app.logger.Info("shut down")
	errs = append(errs, app.closeResources())
	return errors.Join(errs...)
}

// closeResources stops the supervisor and closes the log file.
func (app *Application) closeResources() error {
	app.supervisor.Shutdown(app.cfg.Process.ShutdownTimeout.Std())
	if app.closeLog == nil {
		return nil
	}
	err := app.closeLog()
	app.closeLog = nil
	return err
}
