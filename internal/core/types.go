package core

import (
	"encoding/json"
)

// Row is a single decoded table row, keyed by header column name.
//
// Keys are kept byte-for-byte as they appear in the source header. Several
// columns in the source schema carry accidental surrounding whitespace and
// records must round-trip through the failed-records export with the original
// column names intact, so no trimming or case folding happens here.
type Row map[string]string

// Source schema column names. The odd spacing in ColPlantaEntregada is part
// of the schema, not a typo.
const (
	ColFolio           = "FOLIO No"
	ColRegion          = "NOMBRE DE LA REGION"
	ColMunicipio       = "MUNICIPIO PREDIO"
	ColPredio          = "NOMBRE DEL PREDIO"
	ColBeneficiario    = "BENEFICIARIO"
	ColPlantDate       = "FEHA DE ENTREGA"
	ColSuperficie      = "SUPERFICIE FINAL"
	ColPlantaEntregada = " PLANTA ENTREGADA "
)

// MaxSpeciesSlots is the number of positional species column pairs in the
// source schema. A record's species list never exceeds this.
const MaxSpeciesSlots = 6

// SpeciesEntry is one species/quantity pair extracted from a positional slot.
type SpeciesEntry struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Valid    bool   `json:"valid"` // name non-empty AND quantity > 0
}

// ValidationStatus is the derived validity of a record. It is recomputed on
// every ingestion and every edit, never mutated field by field.
type ValidationStatus struct {
	IsValid      bool     `json:"isValid"`
	Errors       []string `json:"errors"`
	NeedsGeoJSON bool     `json:"needsGeoJSON"`
}

// InterventionRecord is one planting intervention loaded from the source
// table. Records are created only by [Ingest], mutated only through the
// [Store], and identified by a dense id plus the folio number natural key.
type InterventionRecord struct {
	ID              int               `json:"id"`
	FolioNo         string            `json:"folioNo"`
	Region          string            `json:"region"`
	Municipio       string            `json:"municipio"`
	Predio          string            `json:"predio"`
	Beneficiario    string            `json:"beneficiario"`
	PlantDate       string            `json:"plantDate"` // raw M/D/YYYY form
	Superficie      string            `json:"superficie"`
	PlantaEntregada string            `json:"plantaEntregada"`
	Species         []SpeciesEntry    `json:"species"`
	Geometry        *GeometryDocument `json:"geometry,omitempty"`
	Validation      ValidationStatus  `json:"validation"`
	Edited          bool              `json:"edited"`

	// OriginalRow preserves the source row verbatim for the failed-records
	// export.
	OriginalRow Row `json:"originalRow"`
}

// Ready reports whether the record is eligible for submission: valid data
// plus an attached geometry document.
func (r *InterventionRecord) Ready() bool {
	return r.Validation.IsValid && !r.Validation.NeedsGeoJSON
}

// TreeCount returns the total quantity across all species entries.
func (r *InterventionRecord) TreeCount() int {
	total := 0
	for _, sp := range r.Species {
		total += sp.Quantity
	}
	return total
}

// Patch describes an edit to a record. Nil fields are left unchanged.
// Species entries are re-derived (trimmed names, recomputed Valid flags)
// before the record is re-validated.
type Patch struct {
	PlantDate *string        `json:"plantDate,omitempty"`
	Species   []SpeciesEntry `json:"species,omitempty"`
}

// Stats summarizes the current store contents for the review UI.
type Stats struct {
	Total          int `json:"total"`
	Ready          int `json:"ready"`
	Invalid        int `json:"invalid"`
	MissingGeoJSON int `json:"missingGeoJSON"`
	TotalTrees     int `json:"totalTrees"`
	Edited         int `json:"edited"`
	Deleted        int `json:"deleted"`
}

// RunProgress is emitted before each record is processed and once more after
// the loop completes.
type RunProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ProgressFunc receives run progress updates. It is invoked synchronously
// from the submission loop and must not block.
type ProgressFunc func(RunProgress)

// PlantedSpecies is one species entry in the submission payload. TreeCount is
// string-encoded by the destination schema.
type PlantedSpecies struct {
	OtherSpecies string `json:"otherSpecies"`
	TreeCount    string `json:"treeCount"`
}

// SubmissionPayload is the JSON body POSTed once per ready record.
type SubmissionPayload struct {
	Type             string           `json:"type"`
	CaptureMode      string           `json:"captureMode"`
	Geometry         *Geometry        `json:"geometry"`
	PlantedSpecies   []PlantedSpecies `json:"plantedSpecies"`
	PlantDate        string           `json:"plantDate"`
	RegistrationDate string           `json:"registrationDate"`
	PlantProject     string           `json:"plantProject"`
}

// SubmissionResponse carries the fields extracted from the remote service's
// otherwise opaque response, for the success log.
type SubmissionResponse struct {
	ID               string      `json:"id"`
	HID              string      `json:"hid"`
	TreesPlanted     json.Number `json:"treesPlanted"`
	PlantProject     string      `json:"plantProject"`
	PlantDate        string      `json:"plantDate"`
	RegistrationDate string      `json:"registrationDate"`
}

// ErrorDetail is the classified failure attached to an error log entry.
type ErrorDetail struct {
	Message string          `json:"message"`
	Code    int             `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// SuccessEntry is one success log record.
type SuccessEntry struct {
	FolioNo   string              `json:"folioNo"`
	Timestamp string              `json:"timestamp"`
	Payload   *SubmissionPayload  `json:"payload"`
	Response  *SubmissionResponse `json:"response"`
}

// ErrorEntry is one error log record. Payload is null when payload
// construction itself failed.
type ErrorEntry struct {
	FolioNo   string             `json:"folioNo"`
	Timestamp string             `json:"timestamp"`
	Payload   *SubmissionPayload `json:"payload"`
	Error     ErrorDetail        `json:"error"`
}

// SuccessLog accumulates successful submissions over one run.
type SuccessLog struct {
	StartTime       string         `json:"startTime"`
	EndTime         string         `json:"endTime,omitempty"`
	TotalSuccessful int            `json:"totalSuccessful"`
	Records         []SuccessEntry `json:"records"`
}

// ErrorLog accumulates per-record failures over one run.
type ErrorLog struct {
	StartTime   string       `json:"startTime"`
	EndTime     string       `json:"endTime,omitempty"`
	TotalErrors int          `json:"totalErrors"`
	Records     []ErrorEntry `json:"records"`
}

// RunResult is the aggregate outcome of one submission run.
type RunResult struct {
	TotalProcessed int                   `json:"totalProcessed"`
	SuccessCount   int                   `json:"successCount"`
	ErrorCount     int                   `json:"errorCount"`
	SuccessLog     SuccessLog            `json:"successLog"`
	ErrorLog       ErrorLog              `json:"errorLog"`
	FailedRecords  []*InterventionRecord `json:"failedRecords"`
}
