// Package toast shows short-lived visible alerts.
//
// Desktop delivers toasts to the session notification server over D-Bus,
// Logger writes them to the log when no server is reachable, and Navigator
// opens the notifications page when a toast action is activated.
package toast
