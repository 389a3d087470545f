package command

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

type ToolsetFactory func() Toolset

type toolsetRegistry struct {
	mu        sync.RWMutex
	factories map[string]ToolsetFactory
}

var toolsets = toolsetRegistry{factories: map[string]ToolsetFactory{}}

// RegisterToolset makes a toolset available by id. Toolset packages call it
// from init.
func RegisterToolset(id string, factory ToolsetFactory) error {
	if id == "" {
		return errors.New("toolset id required")
	}
	if factory == nil {
		return fmt.Errorf("toolset %s: factory required", id)
	}
	toolsets.mu.Lock()
	defer toolsets.mu.Unlock()
	if _, exists := toolsets.factories[id]; exists {
		return fmt.Errorf("toolset %s already registered", id)
	}
	toolsets.factories[id] = factory
	return nil
}

func MustRegisterToolset(id string, factory ToolsetFactory) {
	if err := RegisterToolset(id, factory); err != nil {
		panic(err)
	}
}

func ToolsetFactoryFor(id string) (ToolsetFactory, bool) {
	toolsets.mu.RLock()
	defer toolsets.mu.RUnlock()
	factory, ok := toolsets.factories[id]
	return factory, ok
}

func RegisteredToolsets() []string {
	toolsets.mu.RLock()
	defer toolsets.mu.RUnlock()
	ids := make([]string, 0, len(toolsets.factories))
	for id := range toolsets.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
