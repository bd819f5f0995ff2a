// Package core provides the business logic for product datasheet imports.
//
// This package holds all domain logic independent of any storage or
// transport layer. It can be used by web handlers, the background worker or
// tests without modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Stores: [RecordStore], [TaxonomyStore] and [RunStore] are the
//     persistence capabilities the engine depends on.
//   - Engine: [Engine.Perform] makes one pass over a datasheet.
//   - Service: The entry point for run management (create, perform, delete).
//   - Worker: [Service.StartRunWorker] performs pending runs in the background.
//
// # A Datasheet Pass
//
//  1. The header row is classified against the product and variant attribute
//     names, plus the "taxons" marker ([ClassifyHeaders]).
//  2. The header of column 0 becomes the search key.
//  3. Each data row is turned into an attribute map ([BuildAttributes]) and
//     dispatched ([Classify]) to create a product or a variant, or to update
//     every product or variant whose search key equals the row's key cell.
//  4. A "taxons" cell such as "Furniture;Seating" is resolved to taxons under
//     the root of the categories taxonomy ([TaxonResolver]), creating missing
//     ones.
//  5. Counters ([RunStats]) and the processed timestamp are written to the
//     run once the last row is done.
//
// Row and record failures never stop a pass. They only show up in the
// counters: failed_queries for rows that dispatched nowhere, matched nothing
// or could not create their record, failed_records for matched records that
// could not be saved.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//   - FILE001-FILE005: File errors (size, type, unreadable)
//   - RUN001-RUN006: Run errors (not found, deleted, busy, cancelled)
//   - RATE001: Rate limiting
package core
