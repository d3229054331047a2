package core

// geometry.go resolves and normalizes geometry documents.
//
// Documents arrive as GeoJSON-shaped JSON: a bare geometry object, a Feature
// wrapper, or a FeatureCollection wrapper. Attachment only requires the
// document to decode as a JSON object; normalization to the destination
// schema (Point or Polygon only) happens again at payload time, so an
// unsupported geometry kind surfaces as an upload failure for that record
// rather than blocking attachment.
//
// No geometry library is involved: coordinates are carried opaquely as raw
// JSON and never interpreted numerically.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Geometry is a normalized geometry: always Point or Polygon after
// NormalizeGeometry. Coordinates are passed through untouched.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// GeometryDocument is a decoded geometry document as attached to a record.
// The raw form is kept so normalization can be re-applied at payload time.
type GeometryDocument struct {
	Raw json.RawMessage `json:"raw"`
}

// geometryEnvelope covers all accepted document shapes at once.
type geometryEnvelope struct {
	Type        string             `json:"type"`
	Coordinates json.RawMessage    `json:"coordinates"`
	Geometry    *geometryEnvelope  `json:"geometry"`
	Features    []geometryEnvelope `json:"features"`
}

// ParseGeometryDocument decodes raw bytes into a GeometryDocument.
// Returns GeometryParseError when the data is not a JSON object.
func ParseGeometryDocument(data []byte) (*GeometryDocument, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &GeometryParseError{Err: err}
	}
	return &GeometryDocument{Raw: append(json.RawMessage(nil), data...)}, nil
}

// NormalizeGeometry reduces a document to the Point-or-Polygon form the
// destination schema accepts:
//
//   - Feature wrappers contribute their geometry; FeatureCollections
//     contribute the geometry of their first feature (an empty collection is
//     invalid).
//   - Point and Polygon pass through unchanged.
//   - MultiPolygon degrades to a Polygon built from its first member's
//     rings; the conversion is logged.
//   - Anything else fails with UnsupportedGeometryTypeError.
func NormalizeGeometry(doc *GeometryDocument) (*Geometry, error) {
	if doc == nil {
		return nil, ErrNoGeometry
	}

	var env geometryEnvelope
	if err := json.Unmarshal(doc.Raw, &env); err != nil {
		return nil, &GeometryParseError{Err: err}
	}

	geom := &env
	switch env.Type {
	case "FeatureCollection":
		if len(env.Features) == 0 {
			return nil, &GeometryParseError{Err: errors.New("feature collection has no features")}
		}
		geom = env.Features[0].Geometry
	case "Feature":
		geom = env.Geometry
	}
	if geom == nil {
		return nil, &GeometryParseError{Err: errors.New("document has no geometry object")}
	}

	switch geom.Type {
	case "Point", "Polygon":
		return &Geometry{Type: geom.Type, Coordinates: geom.Coordinates}, nil

	case "MultiPolygon":
		// The destination schema accepts only Point/Polygon, so the first
		// polygon member wins and the rest are discarded.
		var polygons []json.RawMessage
		if err := json.Unmarshal(geom.Coordinates, &polygons); err != nil {
			return nil, &GeometryParseError{Err: fmt.Errorf("multipolygon coordinates: %w", err)}
		}
		if len(polygons) == 0 {
			return nil, &GeometryParseError{Err: errors.New("multipolygon has no members")}
		}
		slog.Info("degrading MultiPolygon to its first polygon member",
			"discarded_members", len(polygons)-1,
		)
		return &Geometry{Type: "Polygon", Coordinates: polygons[0]}, nil

	default:
		return nil, &UnsupportedGeometryTypeError{Type: geom.Type}
	}
}

// DocumentSource supplies geometry documents by file name. Ingestion asks it
// for the conventionally named document of each record, which keeps record
// construction free of I/O.
type DocumentSource interface {
	Lookup(name string) ([]byte, bool)
}

// MapDocumentSource is a DocumentSource backed by an in-memory map of file
// name to raw content.
type MapDocumentSource map[string][]byte

func (m MapDocumentSource) Lookup(name string) ([]byte, bool) {
	data, ok := m[name]
	return data, ok
}

// folioFileRegex matches the geometry file naming convention, e.g.
// "folio_PB2401001.geojson" -> "PB2401001". Plain .json is accepted too.
var folioFileRegex = regexp.MustCompile(`(?i)^folio_(.+)\.(geojson|json)$`)

// FolioFromFilename extracts the folio number from a conventionally named
// geometry file. The second return is false when the name does not follow
// the convention.
func FolioFromFilename(name string) (string, bool) {
	m := folioFileRegex.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// GeometryFileName returns the conventional document name for a folio.
func GeometryFileName(folio string) string {
	return "folio_" + folio + ".geojson"
}
