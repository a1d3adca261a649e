// Package dbus is a client for the org.freedesktop.Notifications D-Bus
// interface. It sends notifications to whatever notification server owns the
// session bus name and routes the server's ActionInvoked and
// NotificationClosed signals back to per-notification callbacks.
package dbus
