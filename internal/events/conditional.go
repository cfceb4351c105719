package events

import (
	"context"
	"fmt"

	"github.com/gradkit/gradkit/internal/engine"
)

// ConditionalHandler runs a wrapped handler only when its condition
// evaluates to true. The condition is evaluated exactly once per firing,
// so stateful conditions see every firing even when they suppress the
// handler.
type ConditionalHandler struct {
	handler   engine.EventHandler
	condition Condition
}

// NewConditionalHandler wraps handler behind condition
func NewConditionalHandler(handler engine.EventHandler, condition Condition) *ConditionalHandler {
	return &ConditionalHandler{handler: handler, condition: condition}
}

func (h *ConditionalHandler) String() string {
	return fmt.Sprintf("ConditionalHandler(handler=%v, condition=%v)", h.handler, h.condition)
}

// Condition returns the firing policy
func (h *ConditionalHandler) Condition() Condition {
	return h.condition
}

// Handle evaluates the condition and runs the wrapped handler when it
// fires
func (h *ConditionalHandler) Handle(ctx context.Context) error {
	if !h.condition.Evaluate() {
		return nil
	}
	return h.handler.Handle(ctx)
}

// Equal reports whether other wraps an equal handler behind an equal
// condition
func (h *ConditionalHandler) Equal(other engine.EventHandler) bool {
	o, ok := other.(*ConditionalHandler)
	if !ok {
		return false
	}
	return h.handler.Equal(o.handler) && h.condition.Equal(o.condition)
}
