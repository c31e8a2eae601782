// Package service implements the CRUD adapter: five operations that run a
// persistence model through ordered, per-stage filter pipelines.
//
// Every operation is a fixed sequence. find runs params filters, builds a
// query from the params' conditions, runs query filters, executes and runs
// resData filters. get and remove build a by-id query and continue from the
// query stage. create runs reqData filters and saves. update runs reqData
// filters, builds a find-and-update by id (never upserting) and continues
// from the query stage. The first error from any filter or from the model
// ends the operation after being normalized.
package service

import (
	"context"
	"sync"

	"github.com/hyperengineering/docservice/internal/document"
	"github.com/hyperengineering/docservice/internal/filter"
	"github.com/hyperengineering/docservice/internal/store"
)

// CRUD is the service-call contract.
type CRUD interface {
	Find(ctx context.Context, params *filter.Params) (any, error)
	Get(ctx context.Context, id string, params *filter.Params) (any, error)
	Create(ctx context.Context, data document.Document, params *filter.Params) (any, error)
	Update(ctx context.Context, id string, data document.Document, params *filter.Params) (any, error)
	Remove(ctx context.Context, id string, params *filter.Params) (any, error)
}

// Host resolves sibling services by name.
type Host interface {
	Service(name string) (CRUD, error)
}

// Service is the CRUD adapter bound to one model.
type Service struct {
	name      string
	model     store.Model
	pipelines map[filter.Operation]map[filter.Stage]filter.Func

	mu   sync.RWMutex
	host Host
}

// Option configures a Service.
type Option func(*Service)

// WithName labels the service in logs.
func WithName(name string) Option {
	return func(s *Service) {
		s.name = name
	}
}

// New creates a service over model. The caller's filters run after the
// built-in filters of the same operation and stage. The merged
// configuration is compiled once and never changes afterwards.
func New(model store.Model, filters filter.Config, opts ...Option) *Service {
	s := &Service{
		model:     model,
		pipelines: make(map[filter.Operation]map[filter.Stage]filter.Func),
	}
	for _, opt := range opts {
		opt(s)
	}

	for op, byStage := range filter.Merge(filter.Defaults(), filters) {
		s.pipelines[op] = make(map[filter.Stage]filter.Func, len(byStage))
		for st, fns := range byStage {
			s.pipelines[op][st] = filter.Compile(fns)
		}
	}
	return s
}

// Name returns the label set with WithName.
func (s *Service) Name() string {
	return s.name
}

// Find runs the find pipeline and returns the matching documents.
func (s *Service) Find(ctx context.Context, params *filter.Params) (any, error) {
	c := s.begin(filter.OpFind, params)

	v, ok := c.run(ctx, filter.StageParams, c.params)
	if !ok {
		return c.finish()
	}
	p, isParams := v.(*filter.Params)
	if !isParams || p == nil {
		c.fail(stageValueError(filter.StageParams, v))
		return c.finish()
	}
	c.params = p

	c.execute(ctx, s.model.Find(p.Conditions()))
	return c.finish()
}

// Get runs the get pipeline for one document.
func (s *Service) Get(ctx context.Context, id string, params *filter.Params) (any, error) {
	c := s.begin(filter.OpGet, params)
	c.execute(ctx, s.model.FindByID(id))
	return c.finish()
}

// Create runs the create pipeline and returns the saved document.
func (s *Service) Create(ctx context.Context, data document.Document, params *filter.Params) (any, error) {
	c := s.begin(filter.OpCreate, params)

	payload, ok := c.payload(ctx, data)
	if !ok {
		return c.finish()
	}
	saved, err := s.model.Save(ctx, payload)
	if err != nil {
		c.fail(err)
		return c.finish()
	}
	c.respond(ctx, saved)
	return c.finish()
}

// Update runs the update pipeline and returns the updated document.
func (s *Service) Update(ctx context.Context, id string, data document.Document, params *filter.Params) (any, error) {
	c := s.begin(filter.OpUpdate, params)

	payload, ok := c.payload(ctx, data)
	if !ok {
		return c.finish()
	}
	c.execute(ctx, s.model.FindByIDAndUpdate(id, payload, store.UpdateOptions{Upsert: false}))
	return c.finish()
}

// Remove runs the remove pipeline and returns the removed document.
func (s *Service) Remove(ctx context.Context, id string, params *filter.Params) (any, error) {
	c := s.begin(filter.OpRemove, params)
	c.execute(ctx, s.model.FindByIDAndRemove(id))
	return c.finish()
}

// Setup binds the host used by Lookup.
func (s *Service) Setup(host Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.host = host
}

// Lookup resolves a sibling service through the host bound by Setup.
func (s *Service) Lookup(name string) (CRUD, error) {
	s.mu.RLock()
	host := s.host
	s.mu.RUnlock()

	if host == nil {
		return nil, ErrNotSetup
	}
	return host.Service(name)
}

var _ CRUD = (*Service)(nil)
