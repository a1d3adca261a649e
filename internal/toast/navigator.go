package toast

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// DefaultOpener is the command used to open the notifications location.
const DefaultOpener = "xdg-open"

// ErrNoLocation is returned when no notifications location is configured.
var ErrNoLocation = errors.New("notifications location is not configured")

// Navigator opens the fixed notifications location.
type Navigator struct {
	location string
	opener   string
	logger   *slog.Logger

	start func(name string, args ...string) error
}

// NewNavigator creates a navigator for location. An empty opener selects
// DefaultOpener.
func NewNavigator(location, opener string, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	if opener == "" {
		opener = DefaultOpener
	}
	return &Navigator{
		location: location,
		opener:   opener,
		logger:   logger,
		start:    startDetached,
	}
}

// Location returns the location opened by Navigate.
func (n *Navigator) Location() string {
	return n.location
}

// Navigate opens the notifications location without waiting for the opener
// to exit.
func (n *Navigator) Navigate() error {
	if n.location == "" {
		return ErrNoLocation
	}
	if err := n.start(n.opener, n.location); err != nil {
		return fmt.Errorf("failed to open %s: %w", n.location, err)
	}
	n.logger.Debug("navigated", "location", n.location, "opener", n.opener)
	return nil
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
