package core

import (
	"errors"
	"testing"
	"time"
)

func readyRecord() *InterventionRecord {
	return &InterventionRecord{
		FolioNo:   "PB001",
		PlantDate: "3/15/2024",
		Species: []SpeciesEntry{
			{Name: "Pino", Quantity: 100, Valid: true},
			{Name: "Encino", Quantity: 0, Valid: false},
			{Name: "Cedro", Quantity: 50, Valid: true},
		},
		Geometry:   &GeometryDocument{Raw: []byte(`{"type":"Point","coordinates":[-99.1,19.4]}`)},
		Validation: ValidationStatus{IsValid: true, NeedsGeoJSON: false},
	}
}

func TestBuildPayload(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	payload, err := BuildPayload(readyRecord(), "proj_test", now)
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	if payload.Type != "multi-tree-registration" {
		t.Errorf("Type = %q", payload.Type)
	}
	if payload.CaptureMode != "external" {
		t.Errorf("CaptureMode = %q", payload.CaptureMode)
	}
	if payload.PlantProject != "proj_test" {
		t.Errorf("PlantProject = %q", payload.PlantProject)
	}
	if payload.PlantDate != "2024-03-15T00:00:00Z" {
		t.Errorf("PlantDate = %q", payload.PlantDate)
	}
	if payload.RegistrationDate != "2024-06-01T12:30:00Z" {
		t.Errorf("RegistrationDate = %q", payload.RegistrationDate)
	}

	// Invalid species filtered out, counts string-encoded
	if len(payload.PlantedSpecies) != 2 {
		t.Fatalf("PlantedSpecies = %d entries, want 2", len(payload.PlantedSpecies))
	}
	if payload.PlantedSpecies[0].OtherSpecies != "Pino" || payload.PlantedSpecies[0].TreeCount != "100" {
		t.Errorf("first species = %+v", payload.PlantedSpecies[0])
	}
	if payload.PlantedSpecies[1].OtherSpecies != "Cedro" || payload.PlantedSpecies[1].TreeCount != "50" {
		t.Errorf("second species = %+v", payload.PlantedSpecies[1])
	}

	if payload.Geometry.Type != "Point" {
		t.Errorf("Geometry.Type = %q", payload.Geometry.Type)
	}
}

func TestBuildPayload_Errors(t *testing.T) {
	now := time.Now()

	t.Run("bad date", func(t *testing.T) {
		rec := readyRecord()
		rec.PlantDate = "02/30/2024"

		_, err := BuildPayload(rec, "proj", now)
		var dateErr *DateParseError
		if !errors.As(err, &dateErr) {
			t.Errorf("error = %v, want *DateParseError", err)
		}
	})

	t.Run("no valid species", func(t *testing.T) {
		rec := readyRecord()
		rec.Species = []SpeciesEntry{{Name: "Pino", Quantity: 0, Valid: false}}

		if _, err := BuildPayload(rec, "proj", now); !errors.Is(err, ErrNoValidSpecies) {
			t.Errorf("error = %v, want ErrNoValidSpecies", err)
		}
	})

	t.Run("no geometry", func(t *testing.T) {
		rec := readyRecord()
		rec.Geometry = nil

		if _, err := BuildPayload(rec, "proj", now); !errors.Is(err, ErrNoGeometry) {
			t.Errorf("error = %v, want ErrNoGeometry", err)
		}
	})

	t.Run("unsupported geometry surfaces at payload time", func(t *testing.T) {
		rec := readyRecord()
		rec.Geometry = &GeometryDocument{Raw: []byte(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`)}

		_, err := BuildPayload(rec, "proj", now)
		var unsupported *UnsupportedGeometryTypeError
		if !errors.As(err, &unsupported) {
			t.Errorf("error = %v, want *UnsupportedGeometryTypeError", err)
		}
	})
}
