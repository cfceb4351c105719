package events

import (
	"github.com/gradkit/gradkit/internal/engine"
	"github.com/gradkit/gradkit/internal/observability/logging"
)

// AddUniqueEventHandler subscribes handler to event unless an equal
// handler is already subscribed. Calling it twice with the same handler
// leaves a single subscription.
func AddUniqueEventHandler(eng engine.Engine, event string, handler engine.EventHandler, log logging.Logger) {
	if eng.HasEventHandler(handler, event) {
		log.Debug("event handler already attached, skipping",
			logging.String("event", event),
			logging.Any("handler", handler))
		return
	}
	eng.AddEventHandler(event, handler)
}
