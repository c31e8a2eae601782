// Package app is the host that services register with. Registration calls
// the service's Setup hook so services can resolve each other by name.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hyperengineering/docservice/internal/service"
	"github.com/hyperengineering/docservice/internal/store"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrServiceExists   = errors.New("service already registered")
)

// SetupHook is implemented by services that want a reference to the host.
type SetupHook interface {
	Setup(host service.Host)
}

// App holds the registered services. The zero value is not usable; call New.
type App struct {
	mu       sync.RWMutex
	services map[string]service.CRUD
}

// New creates an empty host.
func New() *App {
	return &App{services: make(map[string]service.CRUD)}
}

// Use registers svc under name and calls its Setup hook.
func (a *App) Use(name string, svc service.CRUD) error {
	if err := store.ValidateName(name); err != nil {
		return err
	}

	a.mu.Lock()
	if _, exists := a.services[name]; exists {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceExists, name)
	}
	a.services[name] = svc
	a.mu.Unlock()

	// Setup runs outside the lock so the hook may call back into the host.
	if hook, ok := svc.(SetupHook); ok {
		hook.Setup(a)
	}

	slog.Debug("service registered",
		"component", "app",
		"action", "service_registered",
		"service", name,
	)
	return nil
}

// Service returns the service registered under name.
func (a *App) Service(name string) (service.CRUD, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	svc, ok := a.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return svc, nil
}

// Names returns the registered service names in sorted order.
func (a *App) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.services))
	for name := range a.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

var _ service.Host = (*App)(nil)
