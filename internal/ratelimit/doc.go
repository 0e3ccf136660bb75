// Package ratelimit provides keyed token-bucket rate limiting with background
// eviction of idle entries.
//
// Limits are held in process memory and are not shared between instances.
// The public server keys on the resolved client IP; the publish API uses a
// tighter limiter of its own. The visitor table is capped so a flood of
// distinct keys cannot grow it without bound.
package ratelimit
