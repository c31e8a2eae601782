// Package document holds the document value exchanged with persistence
// backends and the query builder handle that filters mutate in place.
package document

import (
	"fmt"
	"maps"
)

const (
	// KeyField is the storage identifier assigned by the backend.
	KeyField = "_id"
	// IDField is the public identifier exposed when virtual IDs are enabled.
	IDField = "id"
)

// Document is a schemaless record as stored by a backend.
type Document map[string]any

// From converts v into a Document. It accepts Document and map[string]any.
func From(v any) (Document, bool) {
	switch d := v.(type) {
	case Document:
		return d, true
	case map[string]any:
		return Document(d), true
	default:
		return nil, false
	}
}

// Clone returns a deep copy of nested maps and slices. Leaf values are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return t.Clone()
	case map[string]any:
		return map[string]any(Document(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Merge writes every top-level key of patch into d.
func (d Document) Merge(patch Document) {
	maps.Copy(d, patch)
}

// IDString renders a storage identifier as a string. Values exposing a Hex
// method (Mongo ObjectIDs) use their hex form.
func IDString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case interface{ Hex() string }:
		return t.Hex()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// WithVirtualID sets the public id field from the storage identifier.
// Documents without a storage identifier are returned unchanged.
func WithVirtualID(d Document) Document {
	if d == nil {
		return d
	}
	if key, ok := d[KeyField]; ok && key != nil {
		d[IDField] = IDString(key)
	}
	return d
}
