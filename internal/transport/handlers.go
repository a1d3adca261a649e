package transport

import (
	"log/slog"
	"slices"
	"sync"
)

// Handler receives the raw data of an event.
// Off matches handlers by identity, so implementations must be comparable;
// use pointer receivers.
type Handler interface {
	HandleEvent(data []byte)
}

// handlerSet is an event name to handler list registry. Registering the
// same handler twice yields two deliveries, mirroring event emitters.
type handlerSet struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{handlers: make(map[string][]Handler)}
}

func (h *handlerSet) on(event string, handler Handler) {
	if handler == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = append(h.handlers[event], handler)
}

// off removes one registration of handler. It reports whether one was found.
func (h *handlerSet) off(event string, handler Handler) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.handlers[event]
	for i, registered := range list {
		if registered == handler {
			list = slices.Delete(list, i, i+1)
			if len(list) == 0 {
				delete(h.handlers, event)
			} else {
				h.handlers[event] = list
			}
			return true
		}
	}
	return false
}

func (h *handlerSet) count(event string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[event])
}

// dispatch delivers data to a snapshot of the event's handlers. A panicking
// handler is logged and does not stop delivery to the others.
func (h *handlerSet) dispatch(logger *slog.Logger, event string, data []byte) int {
	h.mu.RLock()
	list := slices.Clone(h.handlers[event])
	h.mu.RUnlock()

	for _, handler := range list {
		deliver(logger, event, handler, data)
	}
	return len(list)
}

func deliver(logger *slog.Logger, event string, handler Handler, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked", "event", event, "panic", r)
		}
	}()
	handler.HandleEvent(data)
}
