// Package core provides the business logic for usage file imports.
//
// This package turns an uploaded billing/usage file into a committed
// dataset of partners, customers, products and usage records. It has no
// HTTP or database dependencies; storage is reached through [DatasetStore]
// and [RunStore].
//
// # Pipeline
//
// Every upload and the startup seed go through [Service.Import]:
//
//  1. [OpenReader] decodes CSV or .xlsx into [RawRow] values, one at a time
//  2. [Normalize] turns cells into typed values (identifiers, decimals, dates)
//  3. [RowValidator] accepts or rejects each row; rejections are collected
//  4. [EntityResolver] deduplicates entities (first occurrence wins) and
//     links usage records to them
//  5. [DatasetReplacer] swaps in the new generation atomically
//
// [MetricsRecorder] wraps the whole run and always stores an [ImportRun].
//
// # Concurrency
//
// Up to ServiceConfig.MaxConcurrent imports parse in parallel, but only one
// may commit at a time. Readers call [Service.Current] and always get one
// complete [Generation].
//
// # Error Handling
//
// Failures are reported as typed errors ([MalformedFileError],
// [EmptyFileError], [NoValidRowsError], [ResolutionError],
// [CommitFailedError]). [ErrorKind] classifies them and [MapError] turns
// them into user-facing messages with support codes.
package core
