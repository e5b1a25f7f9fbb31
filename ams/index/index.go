// Package index maintains the search index of AMS objects.
package index

import (
	"context"
	"encoding/json"

	"github.com/teranos/AMS/errors"
)

// Document is the indexed representation of one object
type Document struct {
	ID        string                 `json:"id"`
	Model     string                 `json:"has_model"`
	ParentID  string                 `json:"parent_id,omitempty"`
	MemberIDs []string               `json:"member_ids,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// NewDocument builds a document whose fields are the JSON form of attrs
func NewDocument(id, model, parentID string, attrs interface{}) (Document, error) {
	doc := Document{ID: id, Model: model, ParentID: parentID}
	if attrs == nil {
		return doc, nil
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return Document{}, errors.Wrapf(err, "encode %s %s for indexing", model, id)
	}
	if err := json.Unmarshal(payload, &doc.Fields); err != nil {
		return Document{}, errors.Wrapf(err, "%s %s does not index as an object", model, id)
	}
	return doc, nil
}

// Index stores documents by id.
// Delete of an absent id is not an error.
type Index interface {
	Save(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Document, error)
	IDs(ctx context.Context) ([]string, error)
}
