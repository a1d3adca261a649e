package toast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jmylchreest/campusbell/internal/dbus"
)

// ErrEmptyMessage is returned when showing a toast without a message.
var ErrEmptyMessage = errors.New("toast message is empty")

// Notifier sends desktop notifications. *dbus.Client implements it.
type Notifier interface {
	Notify(n dbus.Notification, onAction dbus.ActionHandler, onClose dbus.CloseHandler) (uint32, error)
}

// CapabilitySource reports what the notification server supports.
// *dbus.Client implements it.
type CapabilitySource interface {
	Capabilities() ([]string, error)
}

// DesktopConfig configures desktop toasts.
type DesktopConfig struct {
	AppName string
	Icon    string
}

// Desktop shows toasts through the desktop notification server.
type Desktop struct {
	notifier Notifier
	cfg      DesktopConfig
	logger   *slog.Logger

	// false once the server is known not to render actions
	actions bool
}

// NewDesktop creates a desktop toaster.
func NewDesktop(notifier Notifier, cfg DesktopConfig, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AppName == "" {
		cfg.AppName = "campusbell"
	}
	return &Desktop{notifier: notifier, cfg: cfg, logger: logger, actions: true}
}

// DetectCapabilities queries the server and records whether it renders
// actions. A server without them cannot offer the View button.
func (d *Desktop) DetectCapabilities(src CapabilitySource) error {
	caps, err := src.Capabilities()
	if err != nil {
		return fmt.Errorf("query notification capabilities: %w", err)
	}
	d.actions = slices.Contains(caps, "actions")
	if !d.actions {
		d.logger.Warn("notification server does not support actions, toasts will have no View button",
			"capabilities", caps)
	}
	return nil
}

// SupportsActions reports whether toast actions are expected to be shown.
func (d *Desktop) SupportsActions() bool {
	return d.actions
}

// Show sends the toast. The action callback, if any, runs on the D-Bus
// signal goroutine when the user activates it.
func (d *Desktop) Show(ctx context.Context, message string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if message == "" {
		return ErrEmptyMessage
	}

	duration := opts.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}

	n := dbus.Notification{
		AppName:       d.cfg.AppName,
		AppIcon:       d.cfg.Icon,
		Summary:       message,
		Body:          opts.Description,
		ExpireTimeout: int32(duration.Milliseconds()),
	}
	n.WithUrgency(urgencyFor(opts.Variant)).
		WithCategory(categoryFor(opts.Variant)).
		WithDesktopEntry(d.cfg.AppName).
		WithTransient().
		WithSuppressSound()

	var onAction dbus.ActionHandler
	if opts.Action != nil && !d.actions {
		d.logger.Debug("dropping toast action, server does not support actions", "label", opts.Action.Label)
	}
	if opts.Action != nil && d.actions {
		key := actionKey(opts.Action.Label)
		n.Actions = []dbus.Action{{Key: key, Label: opts.Action.Label}}

		activate := opts.Action.OnActivate
		onAction = func(invoked string) {
			if invoked == key && activate != nil {
				activate()
			}
		}
	}

	id, err := d.notifier.Notify(n, onAction, nil)
	if err != nil {
		return err
	}

	d.logger.Debug("toast shown", "id", id, "variant", opts.Variant, "has_action", opts.Action != nil)
	return nil
}

func urgencyFor(v Variant) dbus.Urgency {
	if v == VariantInfo {
		return dbus.UrgencyLow
	}
	return dbus.UrgencyNormal
}

func categoryFor(v Variant) string {
	switch v {
	case VariantSuccess, VariantInfo:
		return "x-campusbell." + string(v)
	default:
		return ""
	}
}

func actionKey(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return "default"
	}
	return strings.ReplaceAll(key, " ", "-")
}
