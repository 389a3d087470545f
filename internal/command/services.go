package command

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ServiceRegistry lets toolsets share long-lived values, such as AWS client
// caches, with each other and with out-of-tree toolsets.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: map[string]any{}}
}

func (r *ServiceRegistry) Register(name string, svc any) error {
	if r == nil {
		return errors.New("service registry is nil")
	}
	if name == "" {
		return errors.New("service name required")
	}
	if svc == nil {
		return fmt.Errorf("service %s: value required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}
	r.services[name] = svc
	return nil
}

func (r *ServiceRegistry) Get(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	return svc, ok
}

// Lookup returns the service registered under name if it has type T.
func Lookup[T any](r *ServiceRegistry, name string) (T, bool) {
	var zero T
	svc, ok := r.Get(name)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	return typed, ok
}

func (r *ServiceRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.services))
	for key := range r.services {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
