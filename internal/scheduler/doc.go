// Package scheduler drives queue drain runs.
//
// A Scheduler owns two triggers: a cron schedule evaluated against an
// injectable clock, and RunNow for operator-initiated runs. Both funnel into
// the same drain path guarded by a single run lock, so at most one run is
// ever active and a manual request issued mid-run waits for the active run to
// finish before draining whatever remains.
package scheduler
