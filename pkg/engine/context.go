package engine

import (
	"fmt"
	"sync"
)

// Context holds the outputs published during one run. Each slot is written
// once, by the engine on behalf of the slot's step, and read by dependents.
type Context struct {
	mu    sync.RWMutex
	slots map[StepID]Outputs
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{slots: make(map[StepID]Outputs)}
}

func (c *Context) publish(id StepID, outputs Outputs) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[id]; ok {
		return fmt.Errorf("step %q: %w", id, errSlotWritten)
	}
	c.slots[id] = outputs.Clone()
	return nil
}

// Outputs returns a copy of the outputs published by id.
func (c *Context) Outputs(id StepID) (Outputs, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out, ok := c.slots[id]
	if !ok {
		return nil, false
	}
	return out.Clone(), true
}

// inputsFor builds the view of def's direct dependencies.
func (c *Context) inputsFor(def Definition) Inputs {
	c.mu.RLock()
	defer c.mu.RUnlock()

	in := Inputs{step: def.ID, outputs: make(map[StepID]Outputs, len(def.DependsOn))}
	for _, dep := range def.DependsOn {
		if out, ok := c.slots[dep]; ok {
			in.outputs[dep] = out.Clone()
		}
	}
	return in
}
