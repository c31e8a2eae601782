// Package filter defines the hook contract used by the CRUD service: ordered
// per-operation, per-stage filter lists, the built-in defaults, the merge of
// caller filters after built-ins, and the runner that folds a list into one
// filter.
package filter

import (
	"context"
	"maps"
)

// Operation is one of the five service calls.
type Operation string

const (
	OpFind   Operation = "find"
	OpGet    Operation = "get"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpRemove Operation = "remove"
)

// Stage is a hook point inside an operation.
type Stage string

const (
	StageParams  Stage = "params"
	StageQuery   Stage = "query"
	StageReqData Stage = "reqData"
	StageResData Stage = "resData"
)

// Operations lists every operation in a fixed order.
var Operations = []Operation{OpFind, OpGet, OpCreate, OpUpdate, OpRemove}

var stages = map[Operation][]Stage{
	OpFind:   {StageParams, StageQuery, StageResData},
	OpGet:    {StageQuery, StageResData},
	OpCreate: {StageReqData, StageResData},
	OpUpdate: {StageReqData, StageQuery, StageResData},
	OpRemove: {StageQuery, StageResData},
}

// Stages returns the valid stages of op in execution order.
func Stages(op Operation) []Stage {
	return append([]Stage(nil), stages[op]...)
}

// Params are the call-time parameters threaded through every stage.
type Params struct {
	// Query holds filter conditions and the $sort, $limit, $skip and
	// $select directives.
	Query map[string]any

	// Values carries caller-defined data between filters.
	Values map[string]any
}

// Conditions returns a shallow copy of the query conditions.
func (p *Params) Conditions() map[string]any {
	if p == nil {
		return map[string]any{}
	}
	c := make(map[string]any, len(p.Query))
	maps.Copy(c, p.Query)
	return c
}

// Callback is the terminal callback of an operation.
type Callback func(result any, err error)

// Next continues a filter chain. A non-nil err aborts the remaining filters
// of the stage.
type Next func(err error, value any, params *Params, done Callback)

// Func is a filter. It must call next exactly once before returning, or call
// done to end the operation early.
type Func func(ctx context.Context, value any, params *Params, done Callback, next Next)

// Config maps operations and stages to ordered filter lists.
type Config map[Operation]map[Stage][]Func

// Get returns the filters for op and stage.
func (c Config) Get(op Operation, stage Stage) []Func {
	return c[op][stage]
}

// Add appends filters to op and stage and returns c for chaining.
func (c Config) Add(op Operation, stage Stage, fns ...Func) Config {
	if c[op] == nil {
		c[op] = map[Stage][]Func{}
	}
	c[op][stage] = append(c[op][stage], fns...)
	return c
}
