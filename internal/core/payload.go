package core

// payload.go builds the per-record submission body.

import (
	"strconv"
	"time"
)

const (
	payloadType        = "multi-tree-registration"
	payloadCaptureMode = "external"
)

// BuildPayload constructs the submission payload from a record's current
// state. It fails before any network call is made when the plant date cannot
// be parsed, when no valid species remain after filtering, or when geometry
// normalization fails.
func BuildPayload(rec *InterventionRecord, plantProject string, now time.Time) (*SubmissionPayload, error) {
	plantDate, err := ParsePlantDate(rec.PlantDate)
	if err != nil {
		return nil, err
	}

	var planted []PlantedSpecies
	for _, sp := range rec.Species {
		if !sp.Valid || sp.Quantity <= 0 {
			continue
		}
		planted = append(planted, PlantedSpecies{
			OtherSpecies: sp.Name,
			TreeCount:    strconv.Itoa(sp.Quantity),
		})
	}
	if len(planted) == 0 {
		return nil, ErrNoValidSpecies
	}

	geometry, err := NormalizeGeometry(rec.Geometry)
	if err != nil {
		return nil, err
	}

	return &SubmissionPayload{
		Type:             payloadType,
		CaptureMode:      payloadCaptureMode,
		Geometry:         geometry,
		PlantedSpecies:   planted,
		PlantDate:        plantDate.UTC().Format(time.RFC3339),
		RegistrationDate: now.UTC().Format(time.RFC3339),
		PlantProject:     plantProject,
	}, nil
}
