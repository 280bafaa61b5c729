package call

import (
	"fmt"

	"github.com/dshills/lumen/internal/engine"
)

// ParamKind is the closed set of type tags describing how one native
// message parameter or return value is marshaled.
type ParamKind uint8

const (
	// Void marks an unused parameter or a call without a return value.
	Void ParamKind = iota
	// Int is a plain integer used as-is.
	Int
	// Length is a byte length; paired with String it is derived from the
	// string instead of being consumed from the arguments.
	Length
	// Index is a 1-based script index mapped to a 0-based native index.
	Index
	// Color is a packed 0xAABBGGRR color.
	Color
	// Bool is coerced to 0 or 1.
	Bool
	// KeyMod packs two arguments (key, modifiers) into one word.
	KeyMod
	// String is an input string passed as a byte buffer.
	String
	// StringRet is an output buffer filled by the native call.
	StringRet
)

var kindNames = [...]string{
	Void:      "void",
	Int:       "int",
	Length:    "length",
	Index:     "index",
	Color:     "color",
	Bool:      "bool",
	KeyMod:    "keymod",
	String:    "string",
	StringRet: "stringret",
}

// String returns the tag name.
func (k ParamKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// numeric reports whether a return value of this kind is produced as an
// integer result.
func (k ParamKind) numeric() bool {
	switch k {
	case Int, Length, Index, Color, KeyMod:
		return true
	}
	return false
}

// Descriptor describes how to invoke one native operation. Descriptors are
// static data and never change after definition.
type Descriptor struct {
	Msg    engine.Msg
	Ret    ParamKind
	Param1 ParamKind
	Param2 ParamKind
}

// returnsString reports whether the call uses the output buffer protocol.
func (d Descriptor) returnsString() bool {
	return d.Ret == StringRet || d.Param2 == StringRet
}

// opaqueAlpha is OR'd into colors given in the legacy 0xBBGGRR encoding.
const opaqueAlpha = 0xFF000000

// ToNativeIndex maps a 1-based index to the engine's 0-based index.
// Negative sentinels (such as -1 for "last") pass through unchanged.
func ToNativeIndex(i int64) int64 {
	if i >= 0 {
		return i - 1
	}
	return i
}

// FromNativeIndex maps a 0-based native index back to a 1-based index.
// Negative sentinels pass through unchanged.
func FromNativeIndex(i int64) int64 {
	if i >= 0 {
		return i + 1
	}
	return i
}

// PackColor adds an opaque alpha byte to colors without one.
func PackColor(c int64) int64 {
	if c > 0xFFFFFF {
		return c
	}
	return c | opaqueAlpha
}

// PackKeyMod packs a key code and modifier mask into one word.
func PackKeyMod(key, mods int64) int64 {
	return key | mods<<16
}
