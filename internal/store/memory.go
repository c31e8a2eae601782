package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hyperengineering/docservice/internal/document"
	"github.com/oklog/ulid/v2"
)

// MemoryModel keeps one collection in process memory. Results are returned
// in insertion order unless sorted.
type MemoryModel struct {
	opts ModelOptions

	mu    sync.RWMutex
	docs  map[string]document.Document
	order []string
}

// NewMemoryModel creates an empty in-memory collection.
func NewMemoryModel(opts ModelOptions) (*MemoryModel, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &MemoryModel{
		opts: opts,
		docs: make(map[string]document.Document),
	}, nil
}

func (m *MemoryModel) Find(conditions map[string]any) *document.Query {
	return document.NewQuery(m, document.OpFind, conditions)
}

func (m *MemoryModel) FindByID(id string) *document.Query {
	q := document.NewQuery(m, document.OpFindByID, nil)
	q.ID = id
	return q
}

func (m *MemoryModel) FindByIDAndUpdate(id string, data document.Document, opts UpdateOptions) *document.Query {
	q := document.NewQuery(m, document.OpFindByIDAndUpdate, nil)
	q.ID = id
	q.Update = data.Clone()
	q.Upsert = opts.Upsert
	return q
}

func (m *MemoryModel) FindByIDAndRemove(id string) *document.Query {
	q := document.NewQuery(m, document.OpFindByIDAndRemove, nil)
	q.ID = id
	return q
}

// Save stores a copy of data, assigning a ULID storage identifier when the
// payload has none.
func (m *MemoryModel) Save(ctx context.Context, data document.Document) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := data.Clone()
	if doc == nil {
		doc = document.Document{}
	}
	if key, ok := doc[document.KeyField]; !ok || key == nil {
		doc[document.KeyField] = ulid.Make().String()
	}
	key := document.IDString(doc[document.KeyField])

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docs[key]; exists {
		return nil, m.duplicate("_id_", document.KeyField, key)
	}
	if err := m.checkUnique(doc, ""); err != nil {
		return nil, err
	}
	m.docs[key] = doc
	m.order = append(m.order, key)

	return m.opts.present(doc, nil), nil
}

// Exec implements document.Executor.
func (m *MemoryModel) Exec(ctx context.Context, q *document.Query) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := q.Options()

	switch q.Op {
	case document.OpFind:
		m.mu.RLock()
		docs := make([]document.Document, 0, len(m.order))
		for _, key := range m.order {
			docs = append(docs, m.docs[key])
		}
		results, err := document.Apply(docs, q.Conditions, opts)
		m.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		if m.opts.VirtualID {
			for _, d := range results {
				document.WithVirtualID(d)
			}
		}
		return results, nil

	case document.OpFindByID:
		m.mu.RLock()
		defer m.mu.RUnlock()
		doc, err := m.lookup(q)
		if err != nil {
			return nil, err
		}
		return m.opts.present(doc, opts.Projection), nil

	case document.OpFindByIDAndUpdate:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.update(q, opts.Projection)

	case document.OpFindByIDAndRemove:
		m.mu.Lock()
		defer m.mu.Unlock()
		doc, err := m.lookup(q)
		if err != nil {
			return nil, err
		}
		delete(m.docs, q.ID)
		m.order = slices.DeleteFunc(m.order, func(k string) bool { return k == q.ID })
		return m.opts.present(doc, opts.Projection), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOp, q.Op)
	}
}

// lookup returns the stored document for q.ID if it also satisfies the
// query's conditions. Callers hold the lock.
func (m *MemoryModel) lookup(q *document.Query) (document.Document, error) {
	doc, ok := m.docs[q.ID]
	if !ok {
		return nil, ErrNotFound
	}
	match, err := document.Match(doc, q.Conditions)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (m *MemoryModel) update(q *document.Query, p document.Projection) (any, error) {
	patch := q.Update.Clone()
	delete(patch, document.KeyField)

	doc, err := m.lookup(q)
	if errors.Is(err, ErrNotFound) && q.Upsert {
		doc = document.Document{document.KeyField: q.ID}
		if err := m.checkUnique(patch, ""); err != nil {
			return nil, err
		}
		doc.Merge(patch)
		m.docs[q.ID] = doc
		m.order = append(m.order, q.ID)
		return m.opts.present(doc, p), nil
	}
	if err != nil {
		return nil, err
	}

	updated := doc.Clone()
	updated.Merge(patch)
	if err := m.checkUnique(updated, q.ID); err != nil {
		return nil, err
	}
	m.docs[q.ID] = updated
	return m.opts.present(updated, p), nil
}

// checkUnique reports a duplicate when another document shares a unique
// field value with doc. Callers hold the lock.
func (m *MemoryModel) checkUnique(doc document.Document, self string) error {
	for _, field := range m.opts.Unique {
		value, ok := document.Lookup(doc, field)
		if !ok || value == nil {
			continue
		}
		cond := map[string]any{field: value}
		for key, other := range m.docs {
			if key == self {
				continue
			}
			if match, _ := document.Match(other, cond); match {
				return m.duplicate(field+"_1", field, value)
			}
		}
	}
	return nil
}

func (m *MemoryModel) duplicate(index, field string, value any) error {
	return duplicateKeyError(fmt.Sprintf(
		"E11000 duplicate key error collection: %s index: %s dup key: { %s: %v }",
		m.opts.Collection, index, field, value))
}

var _ Model = (*MemoryModel)(nil)
