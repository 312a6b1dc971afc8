// Package function defines the canonical function record indexed by fnindex,
// the request shapes used to create and mutate it, and the text projections
// ("views") that are embedded for retrieval.
package function

import (
	"maps"
	"slices"
	"time"
)

// ParamType is the closed set of parameter value types.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
)

// Valid reports whether t is one of the known parameter types.
func (t ParamType) Valid() bool {
	switch t {
	case ParamString, ParamNumber, ParamBoolean, ParamObject, ParamArray:
		return true
	}
	return false
}

// Parameter describes a single named argument of a function.
type Parameter struct {
	Type        ParamType  `json:"type"`
	Description string     `json:"description,omitempty"`
	Required    bool       `json:"required,omitempty"`
	Default     any        `json:"default,omitempty"`
	Enum        []any      `json:"enum,omitempty"`
	Items       *Parameter `json:"items,omitempty"`
}

// Example is a sample invocation of a function.
type Example struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	Context string `json:"context,omitempty"`
}

// PerformanceMetrics carries optional runtime statistics reported for a
// function by its owners.
type PerformanceMetrics struct {
	AvgLatencyMs float64 `json:"avg_latency_ms,omitempty"`
	SuccessRate  float64 `json:"success_rate,omitempty"`
	CallCount    int64   `json:"call_count,omitempty"`
}

// Function is a registered, retrievable description of a callable.
type Function struct {
	// ID is assigned once by the registry and never changes.
	ID string `json:"function_id"`

	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Category     string               `json:"category,omitempty"`
	Subcategory  string               `json:"subcategory,omitempty"`
	Parameters   map[string]Parameter `json:"parameters,omitempty"`
	UseCases     []string             `json:"use_cases,omitempty"`
	Examples     []Example            `json:"examples,omitempty"`
	Dependencies []string             `json:"dependencies,omitempty"`

	// Tags are lowercase, unique and non-empty. See NormalizeTags.
	Tags []string `json:"tags,omitempty"`

	Version     string              `json:"version"`
	LastUpdated time.Time           `json:"last_updated"`
	Performance *PerformanceMetrics `json:"performance_metrics,omitempty"`
}

// Clone returns a deep copy of f so callers can mutate it without touching a
// stored record.
func (f *Function) Clone() *Function {
	if f == nil {
		return nil
	}

	out := *f
	if f.Parameters != nil {
		out.Parameters = make(map[string]Parameter, len(f.Parameters))
		for k, p := range f.Parameters {
			out.Parameters[k] = p.clone()
		}
	}
	out.UseCases = slices.Clone(f.UseCases)
	out.Examples = slices.Clone(f.Examples)
	out.Dependencies = slices.Clone(f.Dependencies)
	out.Tags = slices.Clone(f.Tags)
	if f.Performance != nil {
		perf := *f.Performance
		out.Performance = &perf
	}
	return &out
}

func (p Parameter) clone() Parameter {
	out := p
	out.Enum = slices.Clone(p.Enum)
	if p.Items != nil {
		items := p.Items.clone()
		out.Items = &items
	}
	return out
}

// ParameterNames returns the parameter names in sorted order.
func (f *Function) ParameterNames() []string {
	return slices.Sorted(maps.Keys(f.Parameters))
}
