// Package engine is the HTTP client of the ledger engine.
//
// # Overview
//
// The package provides:
//  1. Client, which sends authenticated requests to the engine. Every request
//     carries "Authorization: Bearer <token>" and a fresh X-Request-ID. A 401
//     triggers exactly one credential refresh and one retry.
//  2. VerbStrategy, describing a primary HTTP verb and the verb to retry with
//     when the engine answers 405 Method Not Allowed. The payload travels as a
//     JSON body on POST and as query parameters on GET.
//  3. FetchAll, which lists IOU records and normalises the three collection
//     shapes the engine may return (bare array, {items}, {content}).
//
// # Error Handling
//
// Transport failures are reported as common.ErrUnreachable. A second 401 is
// common.ErrUnauthorized; a failed refresh keeps its common.ErrRefreshFailure.
// Non-2xx answers are described by *StatusError.
//
// # Concurrency
//
// Client is safe for concurrent use. An optional token-bucket limiter
// (golang.org/x/time/rate) spaces out requests when configured.
package engine
