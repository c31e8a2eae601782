package filter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Identity forwards its inputs unchanged.
func Identity(_ context.Context, value any, params *Params, done Callback, next Next) {
	next(nil, value, params, done)
}

// Compile folds fns into one filter with the same contract. Filters run in
// list order; each sees the value, params and callback forwarded by its
// predecessor. The first error stops the list and is handed to the final
// next together with the values the failing filter forwarded. A filter that
// calls done directly ends the chain without reaching the final next.
func Compile(fns []Func) Func {
	if len(fns) == 0 {
		return Identity
	}
	chain := slices.Clone(fns)

	return func(ctx context.Context, value any, params *Params, done Callback, next Next) {
		for i, fn := range chain {
			s := &step{position: i}
			fn(ctx, value, params, s.wrap(done), s.next)

			r := s.close()
			switch {
			case r.responded:
				return
			case !r.called:
				next(fmt.Errorf("%w (position %d)", ErrNextNotCalled, i), value, params, done)
				return
			case r.err != nil:
				next(r.err, r.value, r.params, r.done)
				return
			}
			value, params, done = r.value, r.params, r.done
		}
		next(nil, value, params, done)
	}
}

// outcome is how one filter invocation continued.
type outcome struct {
	called    bool
	responded bool
	err       error
	value     any
	params    *Params
	done      Callback
}

// step guards the outcome of one filter invocation.
type step struct {
	position int

	mu     sync.Mutex
	closed bool
	out    outcome
}

func (s *step) next(err error, value any, params *Params, done Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out.called || s.out.responded || s.closed {
		slog.Warn("ignoring repeated or late call to next",
			"component", "filter",
			"position", s.position,
		)
		return
	}
	s.out = outcome{called: true, err: err, value: value, params: params, done: done}
}

func (s *step) wrap(done Callback) Callback {
	return func(result any, err error) {
		s.mu.Lock()
		if !s.closed && !s.out.called {
			s.out.responded = true
		}
		s.mu.Unlock()
		done(result, err)
	}
}

// close freezes the step; later calls to next are ignored.
func (s *step) close() outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.out
}
