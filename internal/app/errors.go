package app

import (
	"errors"
	"fmt"
	"strings"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates the application is already running.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates the application is not running.
	ErrNotRunning = errors.New("application not running")

	// ErrInitialization indicates an initialization failure.
	ErrInitialization = errors.New("initialization failed")

	// ErrNoConfigFile indicates a reload without a config file path.
	ErrNoConfigFile = errors.New("no config file")
)

// InitError reports a missing or broken dependency at construction.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Is matches ErrInitialization as well as the wrapped error.
func (e *InitError) Is(target error) bool {
	return target == ErrInitialization
}

// ComponentError ties a failure to the component and step that produced
// it, e.g. "hotkey: close: ...".
type ComponentError struct {
	Component string
	Action    string
	Err       error
}

// NewComponentError creates a ComponentError.
func NewComponentError(component, action string, err error) *ComponentError {
	return &ComponentError{Component: component, Action: action, Err: err}
}

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

func (e *ComponentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// componentErr wraps err as a ComponentError, or returns nil.
func componentErr(component, action string, err error) error {
	if err == nil {
		return nil
	}
	return NewComponentError(component, action, err)
}

// RecoveredPanicError is returned by Run when the event loop panicked.
// Held keys were released before it is returned.
type RecoveredPanicError struct {
	Value any
	Stack string
}

// NewRecoveredPanicError creates a RecoveredPanicError.
func NewRecoveredPanicError(value any, stack string) *RecoveredPanicError {
	return &RecoveredPanicError{Value: value, Stack: stack}
}

func (e *RecoveredPanicError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("event loop panic: %v", e.Value)
}

// ErrorList collects shutdown errors. It is not safe for concurrent use.
type ErrorList struct {
	errs []error
}

// NewErrorList creates an empty list.
func NewErrorList() *ErrorList {
	return &ErrorList{}
}

// Add appends err. Nil is ignored.
func (l *ErrorList) Add(err error) {
	if err != nil {
		l.errs = append(l.errs, err)
	}
}

// Len returns the number of collected errors.
func (l *ErrorList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.errs)
}

// Errors returns a copy of the collected errors.
func (l *ErrorList) Errors() []error {
	if l.Len() == 0 {
		return nil
	}
	return append([]error(nil), l.errs...)
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (l *ErrorList) Unwrap() []error {
	return l.Errors()
}

func (l *ErrorList) Error() string {
	if l.Len() == 0 {
		return ""
	}
	msgs := make([]string, len(l.errs))
	for i, err := range l.errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// AsError returns nil for an empty list and the list otherwise.
func (l *ErrorList) AsError() error {
	if l.Len() == 0 {
		return nil
	}
	return l
}
