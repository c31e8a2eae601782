// Package store provides the persistence models the CRUD service runs
// against: an in-process model, a SQLite model and a MongoDB model. All of
// them build document.Query handles and execute them when asked.
package store

import (
	"context"
	"fmt"

	"github.com/hyperengineering/docservice/internal/document"
)

// Model is the document-store contract consumed by the service layer.
type Model interface {
	// Find builds a query over the collection with the given conditions.
	Find(conditions map[string]any) *document.Query

	// FindByID builds a query for a single document.
	FindByID(id string) *document.Query

	// FindByIDAndUpdate builds an atomic find-and-replace of the top-level
	// fields in data. The executed query returns the updated document.
	FindByIDAndUpdate(id string, data document.Document, opts UpdateOptions) *document.Query

	// FindByIDAndRemove builds an atomic find-and-delete. The executed query
	// returns the removed document.
	FindByIDAndRemove(id string) *document.Query

	// Save persists a new document and returns it as stored.
	Save(ctx context.Context, data document.Document) (document.Document, error)
}

// UpdateOptions tune FindByIDAndUpdate.
type UpdateOptions struct {
	// Upsert inserts the document when the id does not exist.
	Upsert bool
}

// ModelOptions configure a model bound to one collection.
type ModelOptions struct {
	// Collection is the collection (or logical table) name.
	Collection string

	// VirtualID adds the public id field, derived from the storage
	// identifier, to every returned document.
	VirtualID bool

	// Unique lists fields that must not repeat across documents. Documents
	// without the field are not constrained.
	Unique []string
}

func (o ModelOptions) validate() error {
	if err := ValidateName(o.Collection); err != nil {
		return err
	}
	for _, f := range o.Unique {
		if err := ValidateFieldName(f); err != nil {
			return fmt.Errorf("unique field: %w", err)
		}
	}
	return nil
}

// present prepares a stored document for the caller.
func (o ModelOptions) present(d document.Document, p document.Projection) document.Document {
	if len(p) > 0 {
		d = p.Apply(d)
	} else {
		d = d.Clone()
	}
	if o.VirtualID {
		document.WithVirtualID(d)
	}
	return d
}
