// Package core provides the business logic for the bulk intervention uploader.
//
// This package is the heart of the application, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// CLI tools, or tests without modification.
//
// # Pipeline
//
// The data flows through four stages:
//
//  1. Ingestion: [ParseTable] decodes the source CSV (discarding the preamble
//     line) and [Ingest] turns header-keyed rows into [InterventionRecord]
//     values, validating each one and attempting automatic geometry resolution
//     through a [DocumentSource].
//  2. Review: the [Store] holds the ordered record collection and supports
//     edits (re-validated through [ValidateFields]), geometry attachment, and
//     predicate-based deletion.
//  3. Submission: the [Uploader] walks the ready records in input order,
//     builds one payload per record, performs one throttled POST per payload,
//     and isolates every per-record failure into the error log.
//  4. Export: [BuildResultsArchive] bundles the run logs, failed rows, and a
//     redacted summary into a zip archive.
//
// # Validation
//
// A record is valid when its plant date is a real M/D/YYYY calendar date and
// its species list is non-empty with every entry carrying a name and a
// positive quantity. A record is ready for upload when it is valid AND a
// geometry document has been attached.
//
// # Error Handling
//
// Fatal errors ([IngestionError], [ConfigIncompleteError]) abort the whole
// operation before any partial work. Per-record errors ([NetworkError],
// [APIRejectionError], [UnsupportedGeometryTypeError]) are caught at the
// record boundary, logged, and never escape the submission loop.
package core
