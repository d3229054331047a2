package core

// ingest.go turns the raw source table into structured records.
//
// The source file's first physical line is a non-data preamble and is
// discarded before the header is parsed. Header column names are preserved
// byte-exactly (several carry accidental whitespace) so the failed-records
// export can reproduce the source schema.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// ParseTable decodes the raw source table into header-keyed rows.
//
// The returned header slice preserves source column order for re-export.
// A table that cannot be decoded at all yields an IngestionError, which is
// fatal for the whole load.
func ParseTable(data []byte) (header []string, rows []Row, err error) {
	data = sanitizeUTF8(data)

	// Discard the preamble: the header row is the second physical line.
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, nil, &IngestionError{Err: errors.New("table has no data after preamble line")}
	}
	data = data[nl+1:]

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, &IngestionError{Err: err}
	}
	if len(records) == 0 {
		return nil, nil, &IngestionError{Err: errors.New("table has no header row")}
	}

	header = records[0]
	rows = make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isEmptyRow(rec) {
			continue
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// Ingest builds records from decoded rows in original order.
//
// Rows whose folio number is missing or blank are silently excluded. Ids are
// dense and ascending from zero. For each record, the conventionally named
// geometry document is requested from docs; if present and parseable it is
// attached and the record no longer needs geometry. A missing or unreadable
// document is informational, not an error — the record stays pending.
//
// docs may be nil, in which case every record is left pending geometry.
func Ingest(rows []Row, docs DocumentSource) []*InterventionRecord {
	records := make([]*InterventionRecord, 0, len(rows))

	for _, row := range rows {
		folio := row[ColFolio]
		if strings.TrimSpace(folio) == "" {
			continue
		}

		rec := &InterventionRecord{
			ID:              len(records),
			FolioNo:         folio,
			Region:          row[ColRegion],
			Municipio:       row[ColMunicipio],
			Predio:          row[ColPredio],
			Beneficiario:    row[ColBeneficiario],
			PlantDate:       row[ColPlantDate],
			Superficie:      row[ColSuperficie],
			PlantaEntregada: row[ColPlantaEntregada],
			Species:         ExtractSpecies(row),
			Validation:      Validate(row),
			OriginalRow:     row,
		}

		if docs != nil {
			if raw, ok := docs.Lookup(GeometryFileName(folio)); ok {
				if doc, err := ParseGeometryDocument(raw); err == nil {
					rec.Geometry = doc
					rec.Validation.NeedsGeoJSON = false
				} else {
					slog.Info("geometry document unreadable, record left pending",
						"folio", folio,
						"error", err,
					)
				}
			} else {
				slog.Debug("no geometry document found", "folio", folio)
			}
		}

		records = append(records, rec)
	}
	return records
}

// sanitizeUTF8 replaces invalid byte sequences with the Unicode replacement
// character so the CSV reader never chokes on stray Latin-1 bytes.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
