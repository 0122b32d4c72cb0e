// Package refresh renews an expiring credential before it lapses.
//
// A Scheduler arms a single timer to fire a configurable buffer before
// the credential's expiry. Firing invokes the caller-supplied refresh
// function with a bounded retry; on terminal failure the scheduler
// clears its state and signals that re-authentication is required
// instead of retrying forever. Re-arming always cancels the prior
// timer, so at most one timer is ever live.
package refresh
