// Package cache provides a generic in-memory cache with a time-to-live and a
// size bound, evicting the oldest write first.
package cache
