package cache

import (
	"context"
	"log/slog"
	"sync"
)

// Memory is an in-process tag generation table.
type Memory struct {
	mu          sync.Mutex
	logger      *slog.Logger
	generations map[string]int64
	history     []string
}

// NewMemory creates an empty in-process cache.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		logger:      logger,
		generations: make(map[string]int64),
	}
}

// Invalidate bumps the generation of tag.
func (m *Memory) Invalidate(_ context.Context, tag string) error {
	if tag == "" {
		return ErrEmptyTag
	}

	m.mu.Lock()
	m.generations[tag]++
	gen := m.generations[tag]
	m.history = append(m.history, tag)
	m.mu.Unlock()

	m.logger.Debug("cache tag invalidated", "tag", tag, "generation", gen)
	return nil
}

// Generation returns the current generation of tag; zero if never invalidated.
func (m *Memory) Generation(tag string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[tag]
}

// Invalidations returns every invalidated tag in call order.
func (m *Memory) Invalidations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}
