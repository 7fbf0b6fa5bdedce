// Package client holds the JSON:API plumbing shared by the TFC and Scalr
// gateways: the document envelope, the error taxonomy and the retrying
// executor every remote call goes through.
package client

import "encoding/json"

// Resource is a single JSON:API object. T is the service-specific attributes
// shape; relationships stay loosely typed because each endpoint mixes
// to-one data, to-many data and link-only entries.
type Resource[T any] struct {
	ID            string                   `json:"id,omitempty"`
	Type          string                   `json:"type"`
	Attributes    T                        `json:"attributes"`
	Relationships map[string]*Relationship `json:"relationships,omitempty"`
	Links         map[string]string        `json:"links,omitempty"`
}

// Document wraps a single primary resource.
type Document[T any] struct {
	Data Resource[T] `json:"data"`
}

// CollectionDocument wraps a resource listing plus its pagination metadata.
type CollectionDocument[T any] struct {
	Data []Resource[T] `json:"data"`
	Meta *Meta         `json:"meta,omitempty"`
}

// Relationship covers the three shapes the services use: a to-one linkage,
// a to-many linkage, or a link-only entry that must be fetched separately.
// Data stays raw because the same document can mix all three.
type Relationship struct {
	Data  json.RawMessage    `json:"data,omitempty"`
	Links *RelationshipLinks `json:"links,omitempty"`
}

// One decodes a to-one linkage, returning nil for null, absent or to-many
// data.
func (r *Relationship) One() *ResourceIdentifier {
	if r == nil || len(r.Data) == 0 {
		return nil
	}
	var ident ResourceIdentifier
	if err := json.Unmarshal(r.Data, &ident); err != nil || ident.ID == "" {
		return nil
	}
	return &ident
}

// Many decodes a to-many linkage, returning nil for anything else.
func (r *Relationship) Many() []ResourceIdentifier {
	if r == nil || len(r.Data) == 0 {
		return nil
	}
	var idents []ResourceIdentifier
	if err := json.Unmarshal(r.Data, &idents); err != nil {
		return nil
	}
	return idents
}

// ManyRelationship is the request form of a to-many linkage.
type ManyRelationship struct {
	Data []ResourceIdentifier `json:"data"`
}

type ResourceIdentifier struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type RelationshipLinks struct {
	Related string `json:"related,omitempty"`
	Self    string `json:"self,omitempty"`
}

type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination mirrors the meta block both services emit. TFC workspace
// listings advance on next-page, variable set listings only publish
// total-pages, so both survive the round trip.
type Pagination struct {
	CurrentPage int  `json:"current-page"`
	NextPage    *int `json:"next-page"`
	PrevPage    *int `json:"prev-page"`
	TotalPages  int  `json:"total-pages"`
	TotalCount  int  `json:"total-count"`
}

// Next returns the next page number, or 0 when the walk is done. When the
// server withholds next-page, the walk advances on current-page until
// total-pages is reached.
func (p *Pagination) Next() int {
	if p == nil {
		return 0
	}
	if p.NextPage != nil {
		return *p.NextPage
	}
	if p.CurrentPage > 0 && p.CurrentPage < p.TotalPages {
		return p.CurrentPage + 1
	}
	return 0
}

// ToOne builds a singular relationship entry for a create request.
func ToOne(resourceType, id string) *Relationship {
	raw, _ := json.Marshal(ResourceIdentifier{ID: id, Type: resourceType})
	return &Relationship{Data: raw}
}

// ToMany builds a to-many relationship payload for a relationship update.
func ToMany(resourceType string, ids []string) *ManyRelationship {
	rel := &ManyRelationship{Data: make([]ResourceIdentifier, 0, len(ids))}
	for _, id := range ids {
		rel.Data = append(rel.Data, ResourceIdentifier{ID: id, Type: resourceType})
	}
	return rel
}

// Encode marshals a request document for the commons client, which sends
// strings verbatim.
func Encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
