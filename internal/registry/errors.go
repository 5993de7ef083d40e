package registry

import (
	"errors"
	"fmt"
)

// UninitializedModelMessage is the in-band error for requests naming a model
// that is not loaded.
const UninitializedModelMessage = "Uninitialized model"

type uninitializedModelError struct{ name string }

func (e uninitializedModelError) Error() string { return UninitializedModelMessage }

// ErrUninitializedModel returns the error for a model that is not loaded.
func ErrUninitializedModel(name string) error { return uninitializedModelError{name: name} }

// IsUninitializedModel reports whether err indicates a missing model.
func IsUninitializedModel(err error) bool {
	var e uninitializedModelError
	return errors.As(err, &e)
}

// PluginConstructionError wraps a failure (or panic) while building a model.
type PluginConstructionError struct {
	Model string
	Err   error
}

func (e *PluginConstructionError) Error() string {
	return fmt.Sprintf("construct %s: %v", e.Model, e.Err)
}

func (e *PluginConstructionError) Unwrap() error { return e.Err }

// PluginRuntimeError wraps a failure (or panic) inside Run/RunBatch/InputShape.
// Its message is the plugin's own message so it can be embedded in responses as is.
type PluginRuntimeError struct {
	Model string
	Op    string
	Err   error
}

func (e *PluginRuntimeError) Error() string { return e.Err.Error() }

func (e *PluginRuntimeError) Unwrap() error { return e.Err }

// panicError carries a recovered panic value.
type panicError struct{ v any }

func (e panicError) Error() string { return fmt.Sprint(e.v) }
