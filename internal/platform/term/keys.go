package term

import (
	"unicode"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/lumen/internal/platform"
)

// convertKey converts a tcell key event to the engine's key convention.
// ok is false for keys the core has no code for.
func convertKey(e *tcell.EventKey) (platform.KeyEvent, bool) {
	mods := convertMod(e.Modifiers())
	k := e.Key()

	switch k {
	case tcell.KeyRune:
		r := e.Rune()
		if mods&platform.ModCtrl != 0 {
			return platform.KeyEvent{Code: int(unicode.ToLower(r)), Mods: mods}, true
		}
		return platform.KeyEvent{Code: int(r), Mods: mods, Rune: r}, true
	case tcell.KeyEscape:
		return platform.KeyEvent{Code: platform.KeyEscape, Mods: mods}, true
	case tcell.KeyEnter:
		return platform.KeyEvent{Code: platform.KeyEnter, Mods: mods}, true
	case tcell.KeyTab:
		return platform.KeyEvent{Code: platform.KeyTab, Mods: mods}, true
	case tcell.KeyBacktab:
		return platform.KeyEvent{Code: platform.KeyTab, Mods: mods | platform.ModShift}, true
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return platform.KeyEvent{Code: platform.KeyBackspace, Mods: mods &^ platform.ModCtrl}, true
	case tcell.KeyDelete:
		return platform.KeyEvent{Code: platform.KeyDelete, Mods: mods}, true
	case tcell.KeyInsert:
		return platform.KeyEvent{Code: platform.KeyInsert, Mods: mods}, true
	case tcell.KeyHome:
		return platform.KeyEvent{Code: platform.KeyHome, Mods: mods}, true
	case tcell.KeyEnd:
		return platform.KeyEvent{Code: platform.KeyEnd, Mods: mods}, true
	case tcell.KeyPgUp:
		return platform.KeyEvent{Code: platform.KeyPageUp, Mods: mods}, true
	case tcell.KeyPgDn:
		return platform.KeyEvent{Code: platform.KeyPageDown, Mods: mods}, true
	case tcell.KeyUp:
		return platform.KeyEvent{Code: platform.KeyUp, Mods: mods}, true
	case tcell.KeyDown:
		return platform.KeyEvent{Code: platform.KeyDown, Mods: mods}, true
	case tcell.KeyLeft:
		return platform.KeyEvent{Code: platform.KeyLeft, Mods: mods}, true
	case tcell.KeyRight:
		return platform.KeyEvent{Code: platform.KeyRight, Mods: mods}, true
	}

	// Control letters arrive as their own key codes.
	if k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
		r := rune('a' + int(k-tcell.KeyCtrlA))
		return platform.KeyEvent{Code: int(r), Mods: mods | platform.ModCtrl}, true
	}
	return platform.KeyEvent{}, false
}

// convertMod converts tcell modifiers to engine modifier bits.
func convertMod(m tcell.ModMask) int {
	var mods int
	if m&tcell.ModShift != 0 {
		mods |= platform.ModShift
	}
	if m&tcell.ModCtrl != 0 {
		mods |= platform.ModCtrl
	}
	if m&tcell.ModAlt != 0 {
		mods |= platform.ModAlt
	}
	if m&tcell.ModMeta != 0 {
		mods |= platform.ModMeta
	}
	return mods
}

// isQuit reports whether e is the close-window chord, Ctrl+Q.
func isQuit(e *tcell.EventKey) bool {
	k, ok := convertKey(e)
	return ok && k.Code == 'q' && k.Mods&platform.ModCtrl != 0
}
