package transport

import (
	"context"
	"log/slog"
	"sync"
)

// Memory is an in-process transport. Emit delivers synchronously on the
// caller's goroutine, so events are handled in emission order.
type Memory struct {
	mu         sync.Mutex
	logger     *slog.Logger
	handlers   *handlerSet
	open       bool
	connectErr error
	connects   int
}

// NewMemory creates a closed in-process transport.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		logger:   logger,
		handlers: newHandlerSet(),
	}
}

// FailConnect makes subsequent Connect calls fail with err (nil restores success).
func (m *Memory) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// Connect opens the transport. It is idempotent while open.
func (m *Memory) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connects++
	if m.open {
		return nil
	}
	if m.connectErr != nil {
		return m.connectErr
	}
	m.open = true
	m.logger.Debug("memory transport connected")
	return nil
}

// IsConnectionOpen reports whether the transport is open.
func (m *Memory) IsConnectionOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// ConnectCalls returns how many times Connect was called.
func (m *Memory) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// On registers handler for event.
func (m *Memory) On(event string, handler Handler) {
	m.handlers.on(event, handler)
}

// Off removes one registration of handler for event.
func (m *Memory) Off(event string, handler Handler) {
	m.handlers.off(event, handler)
}

// HandlerCount returns the number of registrations for event.
func (m *Memory) HandlerCount(event string) int {
	return m.handlers.count(event)
}

// Emit delivers data to the event's handlers and returns how many were
// called. Nothing is delivered while the transport is closed.
func (m *Memory) Emit(event string, data []byte) int {
	if !m.IsConnectionOpen() {
		m.logger.Debug("memory transport closed, dropping event", "event", event)
		return 0
	}
	return m.handlers.dispatch(m.logger, event, data)
}

// EmitEnvelope decodes a wire envelope and emits it.
func (m *Memory) EmitEnvelope(message []byte) (int, error) {
	env, err := DecodeEnvelope(message)
	if err != nil {
		return 0, err
	}
	return m.Emit(env.Event, env.Data), nil
}

// Close closes the transport. Registrations are kept.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}
