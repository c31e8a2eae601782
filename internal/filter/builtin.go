package filter

import (
	"context"
	"fmt"

	"github.com/hyperengineering/docservice/internal/document"
)

// Directive keys recognised in Params.Query.
const (
	DirectiveSort   = "$sort"
	DirectiveLimit  = "$limit"
	DirectiveSkip   = "$skip"
	DirectiveSelect = "$select"
)

var directives = []string{DirectiveSort, DirectiveLimit, DirectiveSkip, DirectiveSelect}

// StripIdentifiers removes the public and storage identifier fields from a
// write payload. Storage identifiers are immutable once assigned.
func StripIdentifiers(_ context.Context, value any, params *Params, done Callback, next Next) {
	if data, ok := document.From(value); ok {
		delete(data, document.IDField)
		delete(data, document.KeyField)
	}
	next(nil, value, params, done)
}

// QuerySpecialDirectives applies $sort, $limit, $skip and $select from
// params.Query to the query, in that order, and removes the four directive
// keys from the query's conditions. Unusable directive values are recorded
// on the query and reported when it executes.
func QuerySpecialDirectives(_ context.Context, value any, params *Params, done Callback, next Next) {
	q, ok := value.(*document.Query)
	if !ok || params == nil || params.Query == nil {
		next(nil, value, params, done)
		return
	}

	pq := params.Query
	if v, ok := pq[DirectiveSort]; ok {
		q.Sort(v)
	}
	if v, ok := pq[DirectiveLimit]; ok {
		if n, err := document.ToInt64(v); err != nil {
			q.SetErr(fmt.Errorf("%w: %s: %v", document.ErrInvalidDirective, DirectiveLimit, err))
		} else {
			q.Limit(n)
		}
	}
	if v, ok := pq[DirectiveSkip]; ok {
		if n, err := document.ToInt64(v); err != nil {
			q.SetErr(fmt.Errorf("%w: %s: %v", document.ErrInvalidDirective, DirectiveSkip, err))
		} else {
			q.Skip(n)
		}
	}
	if v, ok := pq[DirectiveSelect]; ok {
		q.Select(v)
	}

	for _, key := range directives {
		delete(q.Conditions, key)
	}
	next(nil, q, params, done)
}

// RenameIdentifier is a params filter that moves a public id condition onto
// the storage identifier when no storage identifier condition is present.
func RenameIdentifier(_ context.Context, value any, params *Params, done Callback, next Next) {
	p, ok := value.(*Params)
	if ok && p != nil && p.Query != nil {
		id, hasID := p.Query[document.IDField]
		if _, hasKey := p.Query[document.KeyField]; hasID && id != nil && !hasKey {
			p.Query[document.KeyField] = id
			delete(p.Query, document.IDField)
		}
	}
	next(nil, value, params, done)
}
