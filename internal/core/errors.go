package core

// errors.go defines the error taxonomy for the pipeline.
//
// Two classes exist:
//   - Fatal: IngestionError, ConfigIncompleteError. Surfaced immediately to
//     the caller; no partial work is kept.
//   - Per-record: GeometryParseError, UnsupportedGeometryTypeError,
//     DateParseError, NetworkError, APIRejectionError. Caught at the record
//     boundary, classified, and recorded in the error log.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRecordNotFound is returned by Store operations targeting an id that is
// not (or no longer) in the store.
var ErrRecordNotFound = errors.New("record not found")

// ErrNoMatches is returned by Store.DeleteWhere when the predicate matches
// nothing. Deleting an empty match set is reported, not silently ignored.
var ErrNoMatches = errors.New("no records match")

// ErrNoValidSpecies is returned by BuildPayload when a record has no species
// entry that is valid with a positive quantity.
var ErrNoValidSpecies = errors.New("no valid planted species found")

// ErrNoGeometry is returned by BuildPayload when a record reached payload
// construction without an attached geometry document.
var ErrNoGeometry = errors.New("no geometry document attached")

// IngestionError indicates the source table itself could not be decoded.
// It is fatal: the whole load is aborted.
type IngestionError struct {
	Err error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest table: %v", e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// GeometryParseError indicates a geometry document could not be decoded as
// structured data. Non-fatal: the record stays pending geometry.
type GeometryParseError struct {
	Err error
}

func (e *GeometryParseError) Error() string {
	return fmt.Sprintf("parse geometry document: %v", e.Err)
}

func (e *GeometryParseError) Unwrap() error { return e.Err }

// UnsupportedGeometryTypeError indicates a geometry kind the destination
// schema cannot accept (anything other than Point, Polygon, MultiPolygon).
type UnsupportedGeometryTypeError struct {
	Type string
}

func (e *UnsupportedGeometryTypeError) Error() string {
	return fmt.Sprintf("unsupported geometry type: %s", e.Type)
}

// DateParseError indicates a plant date that cannot be converted to a
// timestamp at payload time. A record that passed validation never hits
// this.
type DateParseError struct {
	Value string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("invalid plant date %q", e.Value)
}

// ConfigIncompleteError is the fatal precondition failure for a run: one or
// more required configuration values are empty. No network call is made.
type ConfigIncompleteError struct {
	Missing []string
}

func (e *ConfigIncompleteError) Error() string {
	return fmt.Sprintf("upload configuration incomplete: missing %s", strings.Join(e.Missing, ", "))
}

// NetworkError wraps a transport-level submission failure (connection
// refused, DNS, timeout, cross-origin rejection). Isolated per record.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIRejectionError indicates the remote service answered with a non-success
// status. It carries the status and response body for diagnosis and retry of
// just the failed subset.
type APIRejectionError struct {
	StatusCode int
	Body       string
}

func (e *APIRejectionError) Error() string {
	return fmt.Sprintf("api rejected submission: status %d", e.StatusCode)
}
