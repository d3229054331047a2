package core

// export.go bundles a finished run's artifacts into a zip archive:
// success_log.json and error_log.json (only when non-empty), a CSV of the
// failed records' original rows in source column order, and a summary with
// totals and the run configuration. The bearer credential is redacted in
// the persisted summary.

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// redactedPlaceholder replaces the bearer credential in persisted output.
const redactedPlaceholder = "[REDACTED]"

type runSummary struct {
	UploadDate     string        `json:"uploadDate"`
	TotalProcessed int           `json:"totalProcessed"`
	Successful     int           `json:"successful"`
	Failed         int           `json:"failed"`
	SuccessRate    string        `json:"successRate"`
	Configuration  summaryConfig `json:"configuration"`
}

type summaryConfig struct {
	APIURL       string `json:"apiUrl"`
	BearerToken  string `json:"bearerToken"`
	TenantKey    string `json:"tenantKey"`
	PlantProject string `json:"plantProject"`
}

// BuildResultsArchive produces the downloadable results bundle for one run.
// columns gives the source header order for the failed-records CSV; when
// empty, the column set is derived from the failed rows themselves.
func BuildResultsArchive(result *RunResult, cfg RunConfig, columns []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if len(result.SuccessLog.Records) > 0 {
		if err := writeJSONEntry(zw, "success_log.json", result.SuccessLog); err != nil {
			return nil, err
		}
	}
	if len(result.ErrorLog.Records) > 0 {
		if err := writeJSONEntry(zw, "error_log.json", result.ErrorLog); err != nil {
			return nil, err
		}
	}

	if len(result.FailedRecords) > 0 {
		csvData, err := failedRecordsCSV(result.FailedRecords, columns)
		if err != nil {
			return nil, err
		}
		w, err := zw.Create("failed_records.csv")
		if err != nil {
			return nil, fmt.Errorf("create archive entry: %w", err)
		}
		if _, err := w.Write(csvData); err != nil {
			return nil, fmt.Errorf("write failed records: %w", err)
		}
	}

	summary := runSummary{
		UploadDate:     time.Now().UTC().Format(time.RFC3339),
		TotalProcessed: result.TotalProcessed,
		Successful:     result.SuccessCount,
		Failed:         result.ErrorCount,
		SuccessRate:    successRate(result.SuccessCount, result.TotalProcessed),
		Configuration: summaryConfig{
			APIURL:       cfg.Endpoint,
			BearerToken:  redactedPlaceholder,
			TenantKey:    cfg.TenantKey,
			PlantProject: cfg.PlantProject,
		},
	}
	if err := writeJSONEntry(zw, "upload_summary.json", summary); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// successRate formats the percentage with one decimal, guarding the empty
// run.
func successRate(successful, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(successful)/float64(total)*100)
}

// failedRecordsCSV re-encodes the failed records' original rows.
func failedRecordsCSV(records []*InterventionRecord, columns []string) ([]byte, error) {
	if len(columns) == 0 {
		columns = deriveColumns(records)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = rec.OriginalRow[col]
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// deriveColumns collects the union of row keys, sorted for stability.
func deriveColumns(records []*InterventionRecord) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, rec := range records {
		for col := range rec.OriginalRow {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}
