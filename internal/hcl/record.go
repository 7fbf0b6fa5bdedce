package hcl

import "strings"

// Kind separates managed resource blocks from read-only data source blocks.
type Kind string

const (
	KindResource Kind = "resource"
	KindData     Kind = "data"
)

// Record is one declarative block of the artifact: a resource the migration
// created, or a data source referencing an object that already existed.
type Record struct {
	Kind Kind
	Type string
	Name string
	Body *Body

	// ExternalID is the target-assigned object id, captured on creation so
	// an import binding can be emitted for the block.
	ExternalID string
}

// NormalizeName converts an object name into a valid HCL identifier.
func NormalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "-", "_"))
}

func NewResource(recordType, name string) *Record {
	return &Record{Kind: KindResource, Type: recordType, Name: NormalizeName(name), Body: NewBody()}
}

func NewData(recordType, name string) *Record {
	return &Record{Kind: KindData, Type: recordType, Name: NormalizeName(name), Body: NewBody()}
}

// Set delegates to the body and returns the record for chaining.
func (r *Record) Set(key string, v Value) *Record {
	r.Body.Set(key, v)
	return r
}

// Address is the block's configuration address, e.g. scalr_workspace.demo
// or data.scalr_environment.prod.
func (r *Record) Address() string {
	if r.Kind == KindData {
		return "data." + r.Type + "." + r.Name
	}
	return r.Type + "." + r.Name
}

// RefAddress is the id expression other blocks use to reference this one.
func (r *Record) RefAddress() string {
	return r.Address() + ".id"
}
