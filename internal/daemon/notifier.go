package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/campusbell/internal/toast"
)

// NotificationLevel indicates the severity of an internal notification.
type NotificationLevel int

const (
	// NotificationLevelInfo is for informational messages.
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning is for warning messages.
	NotificationLevelWarning
)

// InternalNotifier shows toasts about campusbelld's own events.
// It rate limits by key to prevent notification floods.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger

	toaster toast.Toaster

	// Rate limiting
	lastNotifyTime map[string]time.Time // key -> last notification time
	minInterval    time.Duration        // minimum time between same notifications
	now            func() time.Time

	enabled bool
}

// NewInternalNotifier creates a notifier that shows toasts through toaster.
func NewInternalNotifier(toaster toast.Toaster, logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalNotifier{
		logger:         logger,
		toaster:        toaster,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    5 * time.Second,
		now:            time.Now,
		enabled:        true,
	}
}

// SetEnabled enables or disables internal notifications.
func (n *InternalNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetMinInterval sets the minimum interval between notifications with the same key.
func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

// Notify shows an internal notification unless it is rate-limited.
// The same key won't notify again within the minimum interval.
func (n *InternalNotifier) Notify(key, summary, body string, level NotificationLevel) {
	n.mu.Lock()
	if !n.enabled {
		n.mu.Unlock()
		return
	}
	if n.toaster == nil {
		n.mu.Unlock()
		n.logger.Debug("internal notification skipped: no toaster", "summary", summary)
		return
	}

	now := n.now()
	if lastTime, ok := n.lastNotifyTime[key]; ok && now.Sub(lastTime) < n.minInterval {
		n.mu.Unlock()
		n.logger.Debug("internal notification rate-limited", "key", key, "summary", summary)
		return
	}
	n.lastNotifyTime[key] = now
	toaster := n.toaster
	n.mu.Unlock()

	variant := toast.VariantInfo
	if level == NotificationLevelWarning {
		variant = toast.VariantDefault
	}

	n.logger.Debug("sending internal notification", "key", key, "summary", summary, "level", level)

	err := toaster.Show(context.Background(), summary, toast.Options{
		Variant:     variant,
		Duration:    toast.DefaultDuration,
		Description: body,
	})
	if err != nil {
		n.logger.Debug("internal notification failed", "key", key, "error", err)
	}
}

// NotifyConfigReloaded sends a notification about config being reloaded.
func (n *InternalNotifier) NotifyConfigReloaded() {
	n.Notify(
		"config-reload",
		"Configuration Reloaded",
		"campusbelld configuration has been successfully reloaded.",
		NotificationLevelInfo,
	)
}

// NotifyConfigError sends a notification about config validation error.
func (n *InternalNotifier) NotifyConfigError(err error) {
	n.Notify(
		"config-error",
		"Configuration Error",
		"Failed to reload configuration: "+err.Error(),
		NotificationLevelWarning,
	)
}

// NotifyMuteChanged sends a notification about a mute state change.
func (n *InternalNotifier) NotifyMuteChanged(channel string, muted bool) {
	summary := "Notification " + channel + " unmuted"
	body := "New notifications will use " + channel + " again."
	if muted {
		summary = "Notification " + channel + " muted"
		body = "New notifications will not use " + channel + "."
	}
	n.Notify("mute-"+channel, summary, body, NotificationLevelInfo)
}

// NotifyStartup sends a notification that the daemon has started.
func (n *InternalNotifier) NotifyStartup(version string) {
	n.Notify(
		"startup",
		"campusbelld Started",
		"Notification daemon v"+version+" is now running.",
		NotificationLevelInfo,
	)
}
