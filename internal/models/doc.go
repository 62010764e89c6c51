// Package models defines domain entities and persistence interfaces for the scrobble synchronization engine.
//
// The package contains two categories of types:
//
// 1. Event types: the durable units of synchronization work
//   - [ScrobbleEvent] : A pending or historical event, discriminated by its [Payload]
//   - [Payload] : Closed union of [ReadProgress], [Rating], [WantToRead] and [Review]
//   - [ScrobbleError] : A quarantine or credential error record explaining why a series cannot be sent
//
// 2. Library entities: local state the events are derived from
//   - [User] : Readers with their provider credential and backfill state
//   - [Library] : Collections that allow or forbid scrobbling
//   - [Series] : Content items with external identifiers in [SeriesMetadata]
//
// All persistent entities implement the Model interface providing ID, timestamps and validation.
// [UnitOfWork] describes the batched writes a sync run commits periodically.
package models
