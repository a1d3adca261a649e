// Package cache invalidates cached remote queries by tag.
//
// Invalidation is coarse: a tag names a whole family of cached queries (for
// example every notification list) and invalidating it bumps the tag's
// generation. Readers compare generations to decide when to refetch.
//
// Two implementations exist:
//   - Memory keeps generations in-process.
//   - Redis bumps a generation key and publishes the tag so every client
//     sharing the cache hears about it.
package cache
