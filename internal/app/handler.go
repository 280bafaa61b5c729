package app

import (
	"fmt"
	"runtime/debug"

	"github.com/dshills/lumen/internal/bridge/call"
	"github.com/dshills/lumen/internal/engine"
	"github.com/dshills/lumen/internal/event"
	"github.com/dshills/lumen/internal/platform"
	"github.com/dshills/lumen/internal/runtime"
)

// Idle implements platform.Handler.
func (app *Application) Idle() bool { return app.Update() }

// Update is one idle tick: it reports init script changes, then services
// processes and timers. It returns whether any work happened.
func (app *Application) Update() (worked bool) {
	defer app.recoverPanic("update")

	if app.watcher != nil {
		changed, err := app.watcher.Poll()
		if err != nil {
			app.emitter.Report(fmt.Errorf("watch init script: %w", err))
		}
		for _, path := range changed {
			app.emitter.Emit(event.InitChanged, event.StringArg(path))
			worked = true
		}
		if worked {
			app.ui.Repaint()
		}
	}
	if app.sched.Tick() {
		worked = true
	}
	return worked
}

// Pending implements platform.Handler.
func (app *Application) Pending() bool { return app.sched.Pending() }

// Key implements platform.Handler. The key is emitted as keypress; when no
// handler takes it a printable key is typed into the focused view.
func (app *Application) Key(ev platform.KeyEvent) {
	defer app.recoverPanic("key")

	if app.emitter.Emit(event.Keypress, event.IntArg(int64(ev.Code)), event.IntArg(int64(ev.Mods))) {
		return
	}
	text := typedText(ev)
	view := app.rt.CurrentView()
	if text == "" || view == nil {
		return
	}
	if _, err := app.calls.Call(call.OpReplaceSel, view.ID(), call.Values(text)); err != nil {
		app.emitter.Report(err)
		return
	}
	app.ui.Repaint()
}

// typedText returns the text a key inserts, if any.
func typedText(ev platform.KeyEvent) string {
	if ev.Mods&(platform.ModCtrl|platform.ModAlt|platform.ModMeta) != 0 {
		return ""
	}
	switch {
	case ev.Rune != 0:
		return string(ev.Rune)
	case ev.Code == platform.KeyEnter:
		return "\n"
	case ev.Code == platform.KeyTab:
		return "\t"
	}
	return ""
}

// Resize implements platform.Handler.
func (app *Application) Resize(width, height int) {
	if app.rt.Phase() != runtime.Running {
		return
	}
	app.emitter.Emit(event.Resize, event.IntArg(int64(width)), event.IntArg(int64(height)))
}

// CloseRequested implements platform.Handler by emitting quit. A handler
// returning true keeps the editor open.
func (app *Application) CloseRequested() bool {
	if app.closing {
		return true
	}
	app.closing = true
	defer func() { app.closing = false }()

	if app.emitter.Emit(event.Quit) {
		app.logger.Debug("quit vetoed by a handler")
		return false
	}
	app.quitEmitted = true
	return true
}

// FocusedView implements platform.Handler.
func (app *Application) FocusedView() engine.Identity {
	if v := app.rt.CurrentView(); v != nil {
		return v.ID()
	}
	return engine.None
}

// Content implements platform.Handler.
func (app *Application) Content(view engine.Identity, rows int) platform.ViewContent {
	return app.rt.Content(view, rows)
}

// recoverPanic turns a panic in a handler into a reported error so the
// main loop keeps running.
func (app *Application) recoverPanic(where string) {
	r := recover()
	if r == nil {
		return
	}
	err := &RecoveredPanicError{Value: r, Stack: string(debug.Stack())}
	app.logger.WithComponent(where).Error("%v", err)
	app.emitter.Report(NewComponentError(where, "recovered", fmt.Errorf("panic: %v", r)))
}
