package dbus

import (
	"github.com/godbus/dbus/v5"
)

const (
	// DBusInterface is the notification interface name.
	DBusInterface = "org.freedesktop.Notifications"
	// DBusPath is the notification object path.
	DBusPath = "/org/freedesktop/Notifications"
	// DBusBusName is the bus name owned by the notification server.
	DBusBusName = "org.freedesktop.Notifications"
)

// CloseReason represents the reason for closing a notification.
// These values are defined by the freedesktop.org notification specification.
type CloseReason uint32

const (
	// CloseReasonExpired indicates the notification expired (timeout reached).
	CloseReasonExpired CloseReason = 1
	// CloseReasonDismissed indicates the user dismissed the notification.
	CloseReasonDismissed CloseReason = 2
	// CloseReasonClosed indicates the notification was closed via CloseNotification.
	CloseReasonClosed CloseReason = 3
	// CloseReasonUndefined is reserved by the freedesktop.org notification specification.
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// Urgency is the freedesktop urgency hint.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Timeouts for ExpireTimeout.
const (
	ExpireServerDefault int32 = -1
	ExpireNever         int32 = 0
)

// Action represents a notification action with key and label.
type Action struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Notification is the argument set of a Notify call.
type Notification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []Action
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // milliseconds, -1 = server default, 0 = never expire
}

// ActionList flattens actions into the alternating key, label pairs D-Bus expects.
func (n *Notification) ActionList() []string {
	list := make([]string, 0, len(n.Actions)*2)
	for _, a := range n.Actions {
		list = append(list, a.Key, a.Label)
	}
	return list
}

func (n *Notification) setHint(key string, value any) *Notification {
	if n.Hints == nil {
		n.Hints = make(map[string]dbus.Variant)
	}
	n.Hints[key] = dbus.MakeVariant(value)
	return n
}

// WithUrgency sets the urgency hint.
func (n *Notification) WithUrgency(u Urgency) *Notification {
	return n.setHint("urgency", byte(u))
}

// WithCategory sets the category hint.
func (n *Notification) WithCategory(category string) *Notification {
	if category == "" {
		return n
	}
	return n.setHint("category", category)
}

// WithDesktopEntry sets the desktop-entry hint.
func (n *Notification) WithDesktopEntry(entry string) *Notification {
	if entry == "" {
		return n
	}
	return n.setHint("desktop-entry", entry)
}

// WithTransient marks the notification as not to be kept in server history.
func (n *Notification) WithTransient() *Notification {
	return n.setHint("transient", true)
}

// WithSuppressSound asks the server not to play its own sound.
func (n *Notification) WithSuppressSound() *Notification {
	return n.setHint("suppress-sound", true)
}

// Urgency extracts the urgency hint. Returns UrgencyNormal if not specified.
func (n *Notification) Urgency() Urgency {
	if v, ok := n.Hints["urgency"]; ok {
		if b, ok := v.Value().(byte); ok {
			return Urgency(b)
		}
	}
	return UrgencyNormal
}

// Category extracts the category hint.
func (n *Notification) Category() string {
	if v, ok := n.Hints["category"]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

// ServerInfo is the reply of GetServerInformation.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}
