package migrate

import (
	"fmt"

	"scalr-migrate/internal/hcl"
)

// UnmappedReferenceError reports a source workspace id that never went
// through the migration pass, usually because the selection patterns
// filtered it out. Callers drop the reference and continue.
type UnmappedReferenceError struct {
	SourceID string
}

func (e *UnmappedReferenceError) Error() string {
	return fmt.Sprintf("source workspace %s was not migrated in this run", e.SourceID)
}

// identityMap translates source workspace ids to the records synthesized for
// their target counterparts. It is filled during the workspace walk and read
// during consumer resolution, after every workspace exists.
type identityMap struct {
	records map[string]*hcl.Record
}

func newIdentityMap() *identityMap {
	return &identityMap{records: map[string]*hcl.Record{}}
}

// record registers the target record of a migrated source workspace. The
// record's ExternalID carries the target-assigned id.
func (m *identityMap) record(sourceID string, rec *hcl.Record) {
	if sourceID == "" {
		return
	}
	m.records[sourceID] = rec
}

func (m *identityMap) resolve(sourceID string) (*hcl.Record, error) {
	rec, ok := m.records[sourceID]
	if !ok {
		return nil, &UnmappedReferenceError{SourceID: sourceID}
	}
	return rec, nil
}
