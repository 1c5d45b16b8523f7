package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Constructor builds one agent from the shared dependencies.
type Constructor func(Deps) Agent

// ErrUnknownAgentType indicates a registry lookup for an unregistered type.
var ErrUnknownAgentType = errors.New("unknown agent type")

// Registry maps stable agent_type strings to constructors. The dynamic
// dispatch surface of the system: spawning is always by type name.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: map[string]Constructor{}}
}

// DefaultRegistry returns a registry with every built-in agent registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(AgentTypeDecomposer, func(d Deps) Agent { return NewDecomposer(d) })
	r.Register(AgentTypePlanner, func(d Deps) Agent { return NewPlanner(d) })
	r.Register(AgentTypeSearch, func(d Deps) Agent { return NewSearchAgent(d) })
	r.Register(AgentTypeAggregator, func(d Deps) Agent { return NewAggregator(d) })
	r.Register(AgentTypeSummarizer, func(d Deps) Agent { return NewSummarizer(d) })
	r.Register(AgentTypeReasoner, func(d Deps) Agent { return NewReasoner(d) })
	r.Register(AgentTypeArtifact, func(d Deps) Agent { return NewArtifactAgent(d) })
	return r
}

// Register binds an agent type to its constructor, replacing any previous
// binding.
func (r *Registry) Register(agentType string, c Constructor) {
	r.constructors[agentType] = c
}

// Spawn constructs one agent by type.
func (r *Registry) Spawn(agentType string, deps Deps) (Agent, error) {
	c, ok := r.constructors[agentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, agentType)
	}
	return c(deps), nil
}

// Types returns the registered agent types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Fleet is the set of agents spawned for one worker process.
type Fleet struct {
	agents []Agent
}

// SpawnAll constructs and starts every registered agent. On a start
// failure the already-started agents are stopped before returning.
func (r *Registry) SpawnAll(ctx context.Context, deps Deps) (*Fleet, error) {
	fleet := &Fleet{}
	for _, agentType := range r.Types() {
		agent, err := r.Spawn(agentType, deps)
		if err != nil {
			fleet.Stop()
			return nil, err
		}
		if err := agent.Start(ctx); err != nil {
			fleet.Stop()
			return nil, fmt.Errorf("failed to start agent %s: %w", agentType, err)
		}
		fleet.agents = append(fleet.agents, agent)
	}
	return fleet, nil
}

// Stop stops every agent in the fleet. Idempotent.
func (f *Fleet) Stop() {
	for _, a := range f.agents {
		_ = a.Stop()
	}
}

// Agents returns the spawned agents.
func (f *Fleet) Agents() []Agent {
	return f.agents
}
