// Package repositories implements SQLite persistence for the scrobble engine.
//
// Key Implementations:
//   - [EventRepository] : The event store; pending events are upserted on (user, series, type)
//   - [Batch] : Unit of work applying processed/errored transitions and quarantines in one transaction
//   - [ErrorRepository] : Quarantine and credential error records, deduplicated per reason
//   - [UserRepository] : Users with their provider credential and backfill flag
//   - [SeriesRepository] : Libraries, series and per-user progress, ratings, reviews and want-to-read sets
//
// Event sequence numbers come from [NextSequence], which atomically increments a counter in a dedicated sequence table.
package repositories
