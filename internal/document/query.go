package document

import (
	"context"
	"fmt"
	"maps"
)

// Op identifies the persistence operation a Query executes.
type Op int

const (
	OpFind Op = iota
	OpFindByID
	OpFindByIDAndUpdate
	OpFindByIDAndRemove
)

func (o Op) String() string {
	switch o {
	case OpFind:
		return "find"
	case OpFindByID:
		return "findById"
	case OpFindByIDAndUpdate:
		return "findByIdAndUpdate"
	case OpFindByIDAndRemove:
		return "findByIdAndRemove"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Executor runs a built query against a backend.
type Executor interface {
	Exec(ctx context.Context, q *Query) (any, error)
}

// FindOptions are the modifiers accumulated on a Query.
type FindOptions struct {
	Sort       []SortField
	Limit      int64
	Skip       int64
	Projection Projection
}

// Query is a mutable builder handle. Filters modify it in place and the
// backend executes it; later filters observe earlier modifications.
type Query struct {
	Op     Op
	ID     string
	Update Document
	Upsert bool

	// Conditions are the residual filter conditions. Filters may delete keys.
	Conditions map[string]any

	opts FindOptions
	err  error
	exec Executor
}

// NewQuery creates a query for op. The conditions map is copied.
func NewQuery(exec Executor, op Op, conditions map[string]any) *Query {
	c := make(map[string]any, len(conditions))
	maps.Copy(c, conditions)
	return &Query{Op: op, Conditions: c, exec: exec}
}

// Sort sets the sort order. An invalid spec is recorded and reported by Exec.
func (q *Query) Sort(spec any) *Query {
	fields, err := ParseSort(spec)
	if err != nil {
		q.SetErr(err)
		return q
	}
	q.opts.Sort = fields
	return q
}

// Limit caps the number of results. Zero means no limit.
func (q *Query) Limit(n int64) *Query {
	if n < 0 {
		q.SetErr(fmt.Errorf("%w: negative limit %d", ErrInvalidDirective, n))
		return q
	}
	q.opts.Limit = n
	return q
}

// Skip drops the first n results.
func (q *Query) Skip(n int64) *Query {
	if n < 0 {
		q.SetErr(fmt.Errorf("%w: negative skip %d", ErrInvalidDirective, n))
		return q
	}
	q.opts.Skip = n
	return q
}

// Select restricts the returned fields.
func (q *Query) Select(spec any) *Query {
	p, err := ParseProjection(spec)
	if err != nil {
		q.SetErr(err)
		return q
	}
	q.opts.Projection = p
	return q
}

// SetErr records an error that Exec returns instead of running the query.
// The first recorded error wins.
func (q *Query) SetErr(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Err returns the first error recorded while building.
func (q *Query) Err() error {
	return q.err
}

// Options returns the accumulated modifiers.
func (q *Query) Options() FindOptions {
	return q.opts
}

// Exec runs the query on its backend.
func (q *Query) Exec(ctx context.Context) (any, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.exec == nil {
		return nil, ErrNoExecutor
	}
	return q.exec.Exec(ctx, q)
}
