package app

import (
	"errors"
	"fmt"
	"strings"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrInitialization indicates the application could not start.
	ErrInitialization = errors.New("initialization failed")
)

// ComponentError attributes err to one part of the application and the
// step it was taking, for example "script" and "load".
type ComponentError struct {
	Component string
	Action    string
	Err       error
}

// NewComponentError returns a ComponentError. Action and err may be empty.
func NewComponentError(component, action string, err error) *ComponentError {
	return &ComponentError{Component: component, Action: action, Err: err}
}

// Error formats the error as "component: action: cause", omitting empty
// parts.
func (e *ComponentError) Error() string {
	if e == nil {
		return ""
	}
	parts := []string{e.Component}
	if e.Action != "" {
		parts = append(parts, e.Action)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the cause.
func (e *ComponentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RecoveredPanicError wraps a panic value as an error.
type RecoveredPanicError struct {
	Value any
	Stack string
}

func (e *RecoveredPanicError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("panic: %v", e.Value)
	if e.Stack == "" {
		return msg
	}
	return msg + "\n" + e.Stack
}

// initError marks err as a startup failure of component.
func initError(component, action string, err error) error {
	return fmt.Errorf("%w: %w", ErrInitialization, NewComponentError(component, action, err))
}
