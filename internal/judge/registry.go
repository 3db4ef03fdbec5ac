package judge

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps the judge model tag stored on a room to its implementation.
type Registry struct {
	mu           sync.RWMutex
	judges       map[string]Judge
	defaultModel string
}

func NewRegistry(defaultModel string) *Registry {
	return &Registry{
		judges:       make(map[string]Judge),
		defaultModel: normalizeModel(defaultModel),
	}
}

func (r *Registry) Register(model string, j Judge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.judges[normalizeModel(model)] = j
}

func (r *Registry) Lookup(model string) (Judge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.judges[normalizeModel(model)]
	return j, ok
}

// Resolve turns a caller-supplied tag into the canonical registered tag. An
// empty tag selects the default model.
func (r *Registry) Resolve(model string) (string, bool) {
	model = normalizeModel(model)
	if model == "" {
		model = r.defaultModel
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.judges[model]; !ok {
		return "", false
	}
	return model, true
}

func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]string, 0, len(r.judges))
	for model := range r.judges {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

func normalizeModel(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}
