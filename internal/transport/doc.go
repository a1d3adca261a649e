// Package transport delivers server-pushed events to registered handlers.
//
// Two transports are provided: Redis, which consumes a per-user pub/sub
// channel, and Memory, an in-process transport for loopback use and tests.
// Both dispatch events sequentially in arrival order and never deduplicate
// handler registrations; callers that must not double-register keep their
// own subscription state.
package transport
