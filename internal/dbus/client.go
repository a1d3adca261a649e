package dbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

// ErrNotConnected is returned when calling the server before Connect.
var ErrNotConnected = errors.New("not connected to D-Bus")

// ActionHandler is called with the key of an invoked action.
type ActionHandler func(key string)

// CloseHandler is called once a notification is closed.
type CloseHandler func(reason CloseReason)

type callbacks struct {
	onAction ActionHandler
	onClose  CloseHandler

	// evicts the entry when the server never reports the close
	expiry *time.Timer
}

const (
	// pendingGrace is added to a notification's own timeout before its
	// callbacks are dropped.
	pendingGrace = 30 * time.Second
	// pendingServerDefault bounds callbacks for notifications that use the
	// server's default timeout.
	pendingServerDefault = 2 * time.Minute
)

// pendingTTL returns how long callbacks for a notification with the given
// ExpireTimeout are kept. Zero means until the server closes it.
func pendingTTL(expire int32) time.Duration {
	switch {
	case expire == ExpireNever:
		return 0
	case expire < 0:
		return pendingServerDefault
	default:
		return time.Duration(expire)*time.Millisecond + pendingGrace
	}
}

// Client sends notifications to the session notification server.
type Client struct {
	mu     sync.Mutex
	conn   *dbus.Conn
	obj    dbus.BusObject
	logger *slog.Logger

	// Callbacks keyed by server-assigned notification id
	pending map[uint32]*callbacks

	signals chan *dbus.Signal
	done    chan struct{}
}

// NewClient creates a client. Nothing touches the bus until Connect.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger:  logger,
		pending: make(map[uint32]*callbacks),
	}
}

// Connect opens a private session bus connection and subscribes to the
// notification server's signals. It is idempotent.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(DBusPath),
		dbus.WithMatchInterface(DBusInterface),
	); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to add signal match: %w", err)
	}

	c.conn = conn
	c.obj = conn.Object(DBusBusName, DBusPath)
	c.signals = make(chan *dbus.Signal, 16)
	c.done = make(chan struct{})
	conn.Signal(c.signals)

	go c.signalLoop(c.signals, c.done)

	c.logger.Debug("connected to notification server", "bus_name", DBusBusName)
	return nil
}

// Notify sends a notification and returns the id assigned by the server.
// onAction and onClose may be nil.
func (c *Client) Notify(n Notification, onAction ActionHandler, onClose CloseHandler) (uint32, error) {
	obj, err := c.object()
	if err != nil {
		return 0, err
	}

	hints := n.Hints
	if hints == nil {
		hints = map[string]dbus.Variant{}
	}

	var id uint32
	err = obj.Call(DBusInterface+".Notify", 0,
		n.AppName,
		n.ReplacesID,
		n.AppIcon,
		n.Summary,
		n.Body,
		n.ActionList(),
		hints,
		n.ExpireTimeout,
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("notify call failed: %w", err)
	}

	if onAction != nil || onClose != nil {
		c.track(id, &callbacks{onAction: onAction, onClose: onClose}, pendingTTL(n.ExpireTimeout))
	}

	c.logger.Debug("notification sent", "id", id, "summary", n.Summary, "actions", len(n.Actions))
	return id, nil
}

// CloseNotification asks the server to close a notification.
func (c *Client) CloseNotification(id uint32) error {
	obj, err := c.object()
	if err != nil {
		return err
	}
	if err := obj.Call(DBusInterface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("close notification %d: %w", id, err)
	}
	return nil
}

// Capabilities returns the capabilities advertised by the server.
func (c *Client) Capabilities() ([]string, error) {
	obj, err := c.object()
	if err != nil {
		return nil, err
	}
	var caps []string
	if err := obj.Call(DBusInterface+".GetCapabilities", 0).Store(&caps); err != nil {
		return nil, fmt.Errorf("get capabilities: %w", err)
	}
	return caps, nil
}

// ServerInformation returns the identity of the notification server.
func (c *Client) ServerInformation() (ServerInfo, error) {
	obj, err := c.object()
	if err != nil {
		return ServerInfo{}, err
	}
	var info ServerInfo
	err = obj.Call(DBusInterface+".GetServerInformation", 0).
		Store(&info.Name, &info.Vendor, &info.Version, &info.SpecVersion)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("get server information: %w", err)
	}
	return info, nil
}

// Pending returns how many notifications still have callbacks registered.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops the signal loop and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	signals := c.signals
	done := c.done
	c.conn = nil
	c.obj = nil
	c.signals = nil
	c.done = nil
	for _, cb := range c.pending {
		cb.stopExpiry()
	}
	c.pending = make(map[uint32]*callbacks)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	close(done)
	conn.RemoveSignal(signals)
	return conn.Close()
}

func (c *Client) object() (dbus.BusObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.obj == nil {
		return nil, ErrNotConnected
	}
	return c.obj, nil
}

// track registers callbacks for id. A positive ttl drops them after that
// long if no NotificationClosed signal arrives first.
func (c *Client) track(id uint32, cb *callbacks, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.pending[id]; ok {
		prev.stopExpiry()
	}
	c.pending[id] = cb

	if ttl > 0 {
		cb.expiry = time.AfterFunc(ttl, func() { c.expire(id, cb) })
	}
}

func (c *Client) expire(id uint32, cb *callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[id] == cb {
		delete(c.pending, id)
		c.logger.Debug("notification callbacks expired", "id", id)
	}
}

func (cb *callbacks) stopExpiry() {
	if cb.expiry != nil {
		cb.expiry.Stop()
	}
}

func (c *Client) signalLoop(signals <-chan *dbus.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			c.handleSignal(sig)
		}
	}
}

// handleSignal routes one server signal to the callbacks of its notification.
// Callbacks run without the client lock held.
func (c *Client) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Path != DBusPath || len(sig.Body) < 2 {
		return
	}

	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	switch sig.Name {
	case DBusInterface + ".ActionInvoked":
		key, ok := sig.Body[1].(string)
		if !ok {
			return
		}
		c.mu.Lock()
		cb, found := c.pending[id]
		c.mu.Unlock()
		if !found || cb.onAction == nil {
			return
		}
		c.logger.Debug("notification action invoked", "id", id, "action_key", key)
		c.safely("action", id, func() { cb.onAction(key) })

	case DBusInterface + ".NotificationClosed":
		reason, ok := sig.Body[1].(uint32)
		if !ok {
			return
		}
		c.mu.Lock()
		cb, found := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if !found {
			return
		}
		cb.stopExpiry()
		c.logger.Debug("notification closed", "id", id, "reason", CloseReason(reason).String())
		if cb.onClose != nil {
			c.safely("close", id, func() { cb.onClose(CloseReason(reason)) })
		}
	}
}

func (c *Client) safely(kind string, id uint32, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("notification callback panicked", "kind", kind, "id", id, "panic", r)
		}
	}()
	fn()
}
