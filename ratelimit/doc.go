// Package ratelimit provides client-side admission control for a
// rate-limited remote API.
//
// The limiter tracks a token bucket per caller identity plus a global
// request ceiling per window. It is a local approximation of the remote
// provider's real limits: every knob (capacity, refill rate, window,
// ceilings) is configuration, because the actual limits are discovered
// empirically and change.
//
// A denial always carries a concrete retry-after hint so callers can
// sleep-and-retry instead of hammering the provider.
package ratelimit
