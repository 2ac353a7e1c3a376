// Package worker implements per-request state on top of a routed send:
// retry with a fixed budget, re-preparation on UNPREPARED, and the
// process-wide prepared-id -> statement-text cache needed to replay the
// original Execute once Prepare succeeds. A worker holds no reference to
// the ring or a stage beyond the single call it's handling, matching the
// "must never hold a reference... beyond the duration of a single call"
// invariant.
package worker
