package handler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Module installs a set of handlers into a registry. Handler packages register their
// module from init(), so importing the package makes it available by name.
type Module func(r *Registry) error

var (
	modules   = make(map[string]Module)
	modulesMu sync.RWMutex
)

// RegisterModule makes a handler module available under name (case-insensitive).
// Registering the same name twice replaces the earlier module.
func RegisterModule(name string, m Module) {
	modulesMu.Lock()
	defer modulesMu.Unlock()

	modules[strings.ToLower(name)] = m
}

// GetModule returns the module registered under name, or nil.
func GetModule(name string) Module {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	return modules[strings.ToLower(name)]
}

// ListModules returns the names of all registered modules, sorted.
func ListModules() []string {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// ApplyModules installs the named modules into r in order.
func ApplyModules(r *Registry, names ...string) error {
	for _, name := range names {
		m := GetModule(name)
		if m == nil {
			return fmt.Errorf("unknown handler module %q (available: %s)", name, strings.Join(ListModules(), ", "))
		}
		if err := m(r); err != nil {
			return fmt.Errorf("failed to install handler module %q: %w", name, err)
		}
	}
	return nil
}
