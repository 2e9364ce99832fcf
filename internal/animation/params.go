package animation

import (
	"slices"
	"sync"
)

// Params holds the current values of a fixed schema. Embedding *Params
// provides the Schema, Parameters and SetParameters methods of Animation.
type Params struct {
	mu     sync.RWMutex
	schema []ParameterSchema
	values Values
}

// NewParams returns a parameter set initialised with the schema defaults.
func NewParams(schema ...ParameterSchema) *Params {
	return &Params{schema: schema, values: Defaults(schema)}
}

// Schema returns a copy of the parameter descriptions.
func (p *Params) Schema() []ParameterSchema {
	return slices.Clone(p.schema)
}

// Parameters returns a copy of the current values.
func (p *Params) Parameters() Values {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values.Clone()
}

// SetParameters applies vs atomically: either every value is valid and
// applied, or nothing changes.
func (p *Params) SetParameters(vs Values) error {
	if err := CheckValues(p.schema, vs); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range vs {
		p.values[k] = v
	}
	return nil
}

// Has reports whether id belongs to this schema.
func (p *Params) Has(id string) bool {
	_, ok := Lookup(p.schema, id)
	return ok
}

// Get returns the current value of id.
func (p *Params) Get(id string) Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values[id]
}

// Reset restores the defaults.
func (p *Params) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = Defaults(p.schema)
}
