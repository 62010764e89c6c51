// Package tasks synchronizes locally recorded reading activity with the remote tracking service.
//
// # Core Operations
//
// The [Engine] exposes the scheduled entry points:
//
//  1. [Engine.RunSync] : deliver every pending event once
//     - Assembles the run's [SyncContext]: pending events per type, minus quarantined series and
//     libraries that disallow scrobbling
//     - Collapses want-to-read adds and removes with [Compact] into one [Decision] per (series, user)
//     - Delivers reads, ratings, reviews and want-to-read decisions, in that order
//     - Commits progress every few events and at each group boundary
//
//  2. [Engine.Cleanup] : retention
//     - Deletes processed events past the retention age
//     - Deletes pending events of users without a credential
//     - Deletes error records of series that no longer exist
//
//  3. [Engine.Backfill] : one-time seeding of a user's existing reading state
//
// Live user actions enter through the [Recorder], which upserts one pending event per (user, series, type).
//
// # Failure Handling
//
// Delivery failures are classified at the event level and never stop sibling events:
//   - rate limited: cool down and retry the same event a bounded number of times
//   - invalid credential, rejected review: the event is errored
//   - unknown series, server errors: the series is quarantined for every user and the event errored
//
// An invalid license ([ErrLicenseInvalid]) or an unreachable service ([ErrServiceUnreachable]) aborts the
// run after committing what was done. Both raise a one-time [Alerter] signal.
//
// # Progress Reporting
//
// Operations accept an optional channel of [ProgressUpdate]. Updates use select with default so reporting
// never blocks a run.
package tasks
