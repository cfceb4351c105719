// Package events provides the event-handler and condition layer: function
// handlers with identity-based equality, periodic firing conditions, and
// conditional dispatch. Handlers subscribe to engine lifecycle events and
// equality drives idempotent registration.
package events

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gradkit/gradkit/internal/engine"
)

// HandlerFunc is the signature of a plain event callback.
type HandlerFunc func(ctx context.Context) error

// FuncHandler adapts a function to the engine.EventHandler interface. Two
// FuncHandlers are equal when they wrap the same function, so attaching
// the same callback twice can be detected.
type FuncHandler struct {
	name string
	fn   HandlerFunc
}

// NewFuncHandler wraps fn as an event handler. The name only serves
// logging and error messages.
func NewFuncHandler(name string, fn HandlerFunc) *FuncHandler {
	return &FuncHandler{name: name, fn: fn}
}

func (h *FuncHandler) String() string {
	return fmt.Sprintf("FuncHandler(name=%s)", h.name)
}

// Name returns the display name of the handler
func (h *FuncHandler) Name() string {
	return h.name
}

// Handle invokes the wrapped function
func (h *FuncHandler) Handle(ctx context.Context) error {
	return h.fn(ctx)
}

// Equal reports whether other wraps the same function
func (h *FuncHandler) Equal(other engine.EventHandler) bool {
	o, ok := other.(*FuncHandler)
	if !ok {
		return false
	}
	return reflect.ValueOf(h.fn).Pointer() == reflect.ValueOf(o.fn).Pointer()
}
