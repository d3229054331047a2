package core

// validation.go computes a record's ValidationStatus from its raw fields.
//
// Validation is pure and deterministic: the same date string and species list
// always produce the same status. Ingestion validates from the raw row;
// edits validate through ValidateFields directly, without re-encoding the
// species back into positional columns.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Validation error messages. These are user-facing and quoted verbatim in
// the review UI, so they are fixed strings rather than wrapped errors.
const (
	msgInvalidDate   = "Invalid or missing plant date"
	msgNoSpecies     = "No species data found"
	msgInvalidFormat = "%d invalid species entries"
)

// plantDateRegex is the strict source date format: 1-2 digit month and day,
// 4 digit year, slash separated.
var plantDateRegex = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)

// IsValidPlantDate reports whether s denotes a real calendar date in
// M/D/YYYY form. The round-trip through time.Date rejects dates like
// 02/30/2024 that would otherwise silently roll over into March.
func IsValidPlantDate(s string) bool {
	_, err := ParsePlantDate(s)
	return err == nil
}

// ParsePlantDate converts a strict M/D/YYYY string to a UTC midnight
// timestamp. Returns DateParseError for malformed strings and for calendar
// dates that do not exist.
func ParsePlantDate(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if !plantDateRegex.MatchString(trimmed) {
		return time.Time{}, &DateParseError{Value: s}
	}

	parts := strings.Split(trimmed, "/")
	month, _ := strconv.Atoi(parts[0])
	day, _ := strconv.Atoi(parts[1])
	year, _ := strconv.Atoi(parts[2])

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, &DateParseError{Value: s}
	}
	return t, nil
}

// speciesColumns returns the name and quantity column for a 1-based slot.
// Slot 1 uses the bare quantity column, slots 2-6 the suffixed variants.
func speciesColumns(slot int) (nameCol, qtyCol string) {
	nameCol = fmt.Sprintf("ESPECIE %d", slot)
	if slot == 1 {
		qtyCol = "CANTIDAD"
	} else {
		qtyCol = fmt.Sprintf("CANTIDAD_%d", slot-1)
	}
	return nameCol, qtyCol
}

// ExtractSpecies reads the positional species slots from a row.
//
// All six slots are always probed, so a gap (an empty slot followed by a
// filled one) does not break the scan. A slot contributes an entry only when
// its name is non-empty after trimming. Output preserves slot order.
func ExtractSpecies(row Row) []SpeciesEntry {
	var species []SpeciesEntry
	for slot := 1; slot <= MaxSpeciesSlots; slot++ {
		nameCol, qtyCol := speciesColumns(slot)

		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			continue
		}

		qty := ParseQuantity(row[qtyCol])
		species = append(species, SpeciesEntry{
			Name:     name,
			Quantity: qty,
			Valid:    qty > 0,
		})
	}
	return species
}

// ParseQuantity parses a tree count, tolerating thousands separators
// ("1,000" -> 1000) and surrounding whitespace. Missing or unparseable
// values yield 0, which marks the entry invalid downstream.
func ParseQuantity(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Validate computes the ValidationStatus for a raw table row.
func Validate(row Row) ValidationStatus {
	return ValidateFields(row[ColPlantDate], ExtractSpecies(row))
}

// ValidateFields computes the ValidationStatus for an explicit plant date
// and species list. Edits go through here directly so the same rules apply
// uniformly to ingestion and re-validation.
//
// NeedsGeoJSON is always initialized to true; callers clear it once a
// geometry document is attached.
func ValidateFields(plantDate string, species []SpeciesEntry) ValidationStatus {
	var errs []string

	if !IsValidPlantDate(plantDate) {
		errs = append(errs, msgInvalidDate)
	}

	if len(species) == 0 {
		errs = append(errs, msgNoSpecies)
	} else {
		invalid := 0
		for _, sp := range species {
			if !sp.Valid {
				invalid++
			}
		}
		if invalid > 0 {
			errs = append(errs, fmt.Sprintf(msgInvalidFormat, invalid))
		}
	}

	return ValidationStatus{
		IsValid:      len(errs) == 0,
		Errors:       errs,
		NeedsGeoJSON: true,
	}
}

// NormalizeSpecies re-derives the Valid flag (and trims names) on an edited
// species list, capping it at MaxSpeciesSlots. Entries whose trimmed name is
// empty are dropped, mirroring the slot-extraction rule.
func NormalizeSpecies(species []SpeciesEntry) []SpeciesEntry {
	out := make([]SpeciesEntry, 0, len(species))
	for _, sp := range species {
		if len(out) == MaxSpeciesSlots {
			break
		}
		sp.Name = strings.TrimSpace(sp.Name)
		if sp.Name == "" {
			continue
		}
		sp.Valid = sp.Quantity > 0
		out = append(out, sp)
	}
	return out
}
