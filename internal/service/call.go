package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/docservice/internal/document"
	"github.com/hyperengineering/docservice/internal/filter"
)

// call is the state of one operation invocation: the current params, the
// current terminal callback and the eventual response.
type call struct {
	svc     *Service
	op      filter.Operation
	started time.Time

	params *filter.Params
	done   filter.Callback

	mu       sync.Mutex
	finished bool
	result   any
	err      error
}

func (s *Service) begin(op filter.Operation, params *filter.Params) *call {
	if params == nil {
		params = &filter.Params{}
	}
	c := &call{svc: s, op: op, params: params, started: time.Now()}
	c.done = c.terminal
	return c
}

// terminal is the callback every stage receives. The first invocation wins.
// A response carrying neither a result nor an error becomes ErrEmptyResponse.
func (c *call) terminal(result any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		slog.Warn("ignoring repeated response",
			"component", "service",
			"service", c.svc.name,
			"operation", string(c.op),
		)
		return
	}
	c.finished = true
	if err == nil && result == nil {
		err = ErrEmptyResponse
	}
	if err != nil {
		c.err = normalizeError(c.op, err)
		return
	}
	c.result = result
}

func (c *call) isFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// run passes value through the compiled pipeline of stage. It returns false
// when the operation has already responded (early exit or error).
func (c *call) run(ctx context.Context, stage filter.Stage, value any) (any, bool) {
	var (
		out     any
		reached bool
	)
	c.svc.pipelines[c.op][stage](ctx, value, c.params, c.done,
		func(err error, v any, p *filter.Params, done filter.Callback) {
			reached = true
			if p != nil {
				c.params = p
			}
			if done != nil {
				c.done = done
			}
			if err != nil {
				c.done(nil, err)
				return
			}
			out = v
		})

	if !reached || c.isFinished() {
		return nil, false
	}
	return out, true
}

// payload runs the reqData stage and returns the filtered document.
func (c *call) payload(ctx context.Context, data document.Document) (document.Document, bool) {
	v, ok := c.run(ctx, filter.StageReqData, data)
	if !ok {
		return nil, false
	}
	doc, isDoc := document.From(v)
	if !isDoc {
		c.fail(stageValueError(filter.StageReqData, v))
		return nil, false
	}
	return doc, true
}

// execute runs the query stage, executes the query and responds.
func (c *call) execute(ctx context.Context, q *document.Query) {
	v, ok := c.run(ctx, filter.StageQuery, q)
	if !ok {
		return
	}
	q, isQuery := v.(*document.Query)
	if !isQuery || q == nil {
		c.fail(stageValueError(filter.StageQuery, v))
		return
	}

	result, err := q.Exec(ctx)
	if err != nil {
		c.fail(err)
		return
	}
	c.respond(ctx, result)
}

// respond runs the resData stage and delivers the result.
func (c *call) respond(ctx context.Context, result any) {
	v, ok := c.run(ctx, filter.StageResData, result)
	if !ok {
		return
	}
	c.done(v, nil)
}

func (c *call) fail(err error) {
	c.done(nil, err)
}

func (c *call) finish() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.finished {
		slog.Warn("operation finished without a response",
			"component", "service",
			"service", c.svc.name,
			"operation", string(c.op),
		)
		return nil, ErrNoResponse
	}

	slog.Debug("operation completed",
		"component", "service",
		"service", c.svc.name,
		"operation", string(c.op),
		"ok", c.err == nil,
		"duration_ms", time.Since(c.started).Milliseconds(),
	)
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func stageValueError(stage filter.Stage, v any) error {
	return fmt.Errorf("%w: %s stage produced %T", ErrStageValue, stage, v)
}
