// Package dispatch turns pushed notification events into local side effects.
//
// A Controller owns one subscription to the "notification.new" event on a
// transport. Every delivered event fans out, in order, to three independent
// channels: cache invalidation, an audible tone and a visible toast. Each
// channel is isolated; an error or panic in one is logged and never reaches
// the others or the transport's delivery loop.
package dispatch
