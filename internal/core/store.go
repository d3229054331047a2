package core

// store.go holds the in-memory record collection between load and upload.
//
// Records live for one load only. Ids are assigned at ingestion and never
// reused: deletion removes a record but never renumbers the rest. The store
// is guarded by a RWMutex because web handlers may touch it concurrently,
// but a submission run assumes a single writer (the operator is reviewing,
// not racing the run).

import (
	"log/slog"
	"slices"
	"sync"
)

// Predicate selects records for bulk deletion.
type Predicate func(*InterventionRecord) bool

// MissingGeometry matches records that still need a geometry document,
// regardless of other validity.
func MissingGeometry(r *InterventionRecord) bool {
	return r.Validation.NeedsGeoJSON
}

// Invalid matches records not ready for upload: failed validation or
// missing geometry.
func Invalid(r *InterventionRecord) bool {
	return !r.Validation.IsValid || r.Validation.NeedsGeoJSON
}

// Store is the ordered, id-keyed collection of intervention records.
type Store struct {
	mu      sync.RWMutex
	records []*InterventionRecord
	deleted int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Load replaces the store contents with a freshly ingested record set.
// Deletion counters reset: a new load is a new lifetime.
func (s *Store) Load(records []*InterventionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = records
	s.deleted = 0
}

// All returns a snapshot slice of the records in load order. The slice is a
// copy; the records themselves are shared.
func (s *Store) All() []*InterventionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.records)
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Get returns the record with the given id.
func (s *Store) Get(id int) (*InterventionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.find(id)
	return rec, rec != nil
}

// find locates a record by id. Caller holds the lock.
func (s *Store) find(id int) *InterventionRecord {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// Update applies a patch to a record, marks it edited, and re-validates the
// patched fields through the shared validation rules. Geometry status is
// untouched: editing text fields does not affect whether a document is
// attached.
func (s *Store) Update(id int, patch Patch) (*InterventionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.find(id)
	if rec == nil {
		return nil, ErrRecordNotFound
	}

	if patch.PlantDate != nil {
		rec.PlantDate = *patch.PlantDate
	}
	if patch.Species != nil {
		rec.Species = NormalizeSpecies(patch.Species)
	}
	rec.Edited = true

	needsGeo := rec.Validation.NeedsGeoJSON
	rec.Validation = ValidateFields(rec.PlantDate, rec.Species)
	rec.Validation.NeedsGeoJSON = needsGeo

	return rec, nil
}

// AttachGeometry decodes a geometry document and attaches it to a record,
// clearing its pending-geometry state. On failure the record is unchanged
// and the error is returned to the caller.
func (s *Store) AttachGeometry(id int, raw []byte) error {
	doc, err := ParseGeometryDocument(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.find(id)
	if rec == nil {
		return ErrRecordNotFound
	}

	rec.Geometry = doc
	rec.Validation.NeedsGeoJSON = false
	return nil
}

// AttachAll attaches documents from a folio-keyed bulk source to every
// record whose folio is present. Unparseable documents are skipped and
// logged; they leave their record pending. Returns the number of records
// that received a document.
func (s *Store) AttachAll(docs map[string][]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	attached := 0
	for _, rec := range s.records {
		raw, ok := docs[rec.FolioNo]
		if !ok {
			continue
		}
		doc, err := ParseGeometryDocument(raw)
		if err != nil {
			slog.Info("geometry document unreadable, record left pending",
				"folio", rec.FolioNo,
				"error", err,
			)
			continue
		}
		rec.Geometry = doc
		rec.Validation.NeedsGeoJSON = false
		attached++
	}
	return attached
}

// Delete removes one record unconditionally.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.records {
		if rec.ID == id {
			s.records = slices.Delete(s.records, i, i+1)
			s.deleted++
			return nil
		}
	}
	return ErrRecordNotFound
}

// DeleteWhere removes all records matching the predicate and returns how
// many were removed. A zero-match set is a no-op reported as ErrNoMatches so
// callers can tell the operator nothing happened.
func (s *Store) DeleteWhere(pred Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for _, rec := range s.records {
		if pred(rec) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}

	if removed == 0 {
		return 0, ErrNoMatches
	}

	s.records = kept
	s.deleted += removed
	return removed, nil
}

// Stats computes the review summary over the current contents.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Total: len(s.records), Deleted: s.deleted}
	for _, rec := range s.records {
		if rec.Ready() {
			stats.Ready++
		} else {
			stats.Invalid++
		}
		if rec.Validation.NeedsGeoJSON {
			stats.MissingGeoJSON++
		}
		if rec.Edited {
			stats.Edited++
		}
		stats.TotalTrees += rec.TreeCount()
	}
	return stats
}
