package agent

import (
	"fmt"

	"github.com/agentship/agentship/pkg/registry"
)

// Registry holds the built agents by name.
type Registry struct {
	*registry.BaseRegistry[*Agent]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[*Agent]()}
}

func (r *Registry) GetAgent(name string) (*Agent, error) {
	agent, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("agent '%s' not found", name)
	}
	return agent, nil
}
